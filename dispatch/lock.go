package dispatch

import (
	"context"

	"github.com/lumenhq/surfdeck/protocol"
)

// lockJS installs a transparent shield that swallows end-user input and
// shows a small release badge. Idempotent; re-running leaves the existing
// shield in place.
const lockJS = `() => {
	if (document.getElementById('__sdLockShield')) return false;
	const shield = document.createElement('div');
	shield.id = '__sdLockShield';
	shield.style.cssText = 'position:fixed;inset:0;z-index:2147483647;' +
		'background:transparent;cursor:not-allowed;';
	shield.addEventListener('click', (e) => { e.stopPropagation(); e.preventDefault(); }, true);
	shield.addEventListener('keydown', (e) => { e.stopPropagation(); e.preventDefault(); }, true);
	const badge = document.createElement('div');
	badge.id = '__sdLockBadge';
	badge.textContent = 'session locked';
	badge.style.cssText = 'position:absolute;top:8px;right:8px;padding:4px 10px;' +
		'border-radius:4px;background:rgba(0,0,0,0.65);color:#fff;' +
		'font:12px sans-serif;pointer-events:none;';
	shield.appendChild(badge);
	document.documentElement.appendChild(shield);
	return true;
}`

const unlockJS = `() => {
	const shield = document.getElementById('__sdLockShield');
	if (!shield) return false;
	shield.remove();
	return true;
}`

// handleLock enters lock mode: end-user interaction is blocked and the
// overlay stays visible across operations until an explicit unlock.
func (d *Dispatcher) handleLock(ctx context.Context, op protocol.Operation) protocol.Result {
	if !d.locked.Load() {
		if _, err := d.sf.Eval(ctx, lockJS); err != nil {
			return protocol.Fail(err)
		}
		d.locked.Store(true)
		d.stream.SendState(State{Kind: StateLocked, Active: true})
		d.stream.SendState(State{Kind: StateOverlay, Active: true})
	}
	return protocol.OK(map[string]any{"locked": true})
}

// handleUnlock leaves lock mode. Unlocking is always explicit; no other
// operation clears the lock as a side effect.
func (d *Dispatcher) handleUnlock(ctx context.Context, op protocol.Operation) protocol.Result {
	if d.locked.Load() {
		if _, err := d.sf.Eval(ctx, unlockJS); err != nil {
			return protocol.Fail(err)
		}
		d.locked.Store(false)
		d.stream.SendState(State{Kind: StateOverlay, Active: false})
		d.stream.SendState(State{Kind: StateUnlocked, Active: true})
	}
	return protocol.OK(map[string]any{"locked": false})
}
