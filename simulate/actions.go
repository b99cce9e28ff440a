package simulate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// ClickOptions selects button and multiplicity for Click.
type ClickOptions struct {
	Button string // "left" (default), "right", "middle"
	Count  int    // 1 (default) or 2
}

// Click runs the aim pipeline and fires a synthetic mouse press sequence on
// the target, falling back to rod's native click when synthetic dispatch
// fails (detached nodes, cross-origin frames).
func (s *Simulator) Click(ctx context.Context, target string, opts ClickOptions) error {
	if opts.Count == 0 {
		opts.Count = 1
	}
	if _, err := s.aim(ctx, target); err != nil {
		return err
	}
	el, err := s.res.Resolve(ctx, target)
	if err != nil {
		return err
	}

	button := 0
	switch opts.Button {
	case "", "left":
	case "middle":
		button = 1
	case "right":
		button = 2
	default:
		return fmt.Errorf("simulate: unknown mouse button %q", opts.Button)
	}

	if _, err := el.Eval(clickJS, opts.Count, button); err != nil {
		s.log.Debug("synthetic click failed, using native click",
			"target", target, "error", err)
		if nerr := el.Click(nativeButton(button), opts.Count); nerr != nil {
			return evalErr("click", nerr)
		}
	}
	return nil
}

func nativeButton(button int) proto.InputMouseButton {
	switch button {
	case 1:
		return proto.InputMouseButtonMiddle
	case 2:
		return proto.InputMouseButtonRight
	default:
		return proto.InputMouseButtonLeft
	}
}

// Fill focuses the target, replaces its value through the prototype value
// setter and fires input+change, so controlled inputs update their model.
func (s *Simulator) Fill(ctx context.Context, target, value string) error {
	if _, err := s.aim(ctx, target); err != nil {
		return err
	}
	el, err := s.res.Resolve(ctx, target)
	if err != nil {
		return err
	}
	if _, err := el.Eval(fillJS, value); err != nil {
		return evalErr("fill", err)
	}
	return nil
}

// Type focuses the target and sends the text through platform keyboard
// input, one key event pair per rune, with an optional per-key delay.
func (s *Simulator) Type(ctx context.Context, target, text string, delay time.Duration) error {
	if _, err := s.aim(ctx, target); err != nil {
		return err
	}
	el, err := s.res.Resolve(ctx, target)
	if err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return evalErr("type focus", err)
	}
	page := s.sf.Page().Context(ctx)
	if delay <= 0 {
		if err := page.InsertText(text); err != nil {
			return evalErr("type", err)
		}
		return nil
	}
	for _, r := range text {
		if err := page.InsertText(string(r)); err != nil {
			return evalErr("type", err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Press sends a key or a modifier combo ("Control+Shift+p") to the page.
// No geometry is involved, so no cursor emission happens.
func (s *Simulator) Press(ctx context.Context, combo string) error {
	keys, err := parseCombo(combo)
	if err != nil {
		return err
	}
	actions := s.sf.Page().Context(ctx).KeyActions()
	for _, k := range keys[:len(keys)-1] {
		actions = actions.Press(k)
	}
	actions = actions.Type(keys[len(keys)-1])
	if err := actions.Do(); err != nil {
		return evalErr("press", err)
	}
	return nil
}

// parseCombo splits "Control+Shift+p" into rod key constants, modifiers
// first and exactly one terminal key last.
func parseCombo(combo string) ([]input.Key, error) {
	parts := strings.Split(combo, "+")
	keys := make([]input.Key, 0, len(parts))
	for _, p := range parts {
		k, err := lookupKey(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("simulate: empty key combo")
	}
	return keys, nil
}

func lookupKey(name string) (input.Key, error) {
	switch strings.ToLower(name) {
	case "control", "ctrl":
		return input.ControlLeft, nil
	case "shift":
		return input.ShiftLeft, nil
	case "alt":
		return input.AltLeft, nil
	case "meta", "cmd", "command":
		return input.MetaLeft, nil
	case "enter", "return":
		return input.Enter, nil
	case "tab":
		return input.Tab, nil
	case "escape", "esc":
		return input.Escape, nil
	case "backspace":
		return input.Backspace, nil
	case "delete":
		return input.Delete, nil
	case "arrowup", "up":
		return input.ArrowUp, nil
	case "arrowdown", "down":
		return input.ArrowDown, nil
	case "arrowleft", "left":
		return input.ArrowLeft, nil
	case "arrowright", "right":
		return input.ArrowRight, nil
	case "home":
		return input.Home, nil
	case "end":
		return input.End, nil
	case "pageup":
		return input.PageUp, nil
	case "pagedown":
		return input.PageDown, nil
	case "space":
		return input.Space, nil
	}
	if r := []rune(name); len(r) == 1 {
		return input.Key(r[0]), nil
	}
	return 0, fmt.Errorf("simulate: unknown key %q", name)
}

// Hover moves the platform pointer to the target and fires the synthetic
// pointer-enter sequence. Both paths run: the real pointer drives CSS
// :hover, the synthetic events reach JS listeners on elements the platform
// pointer cannot settle on.
func (s *Simulator) Hover(ctx context.Context, target string) error {
	pos, err := s.aim(ctx, target)
	if err != nil {
		return err
	}
	el, err := s.res.Resolve(ctx, target)
	if err != nil {
		return err
	}
	if err := s.sf.Page().Context(ctx).Mouse.MoveTo(proto.Point{X: pos.X, Y: pos.Y}); err != nil {
		return evalErr("hover move", err)
	}
	if _, err := el.Eval(hoverJS); err != nil {
		return evalErr("hover", err)
	}
	return nil
}

// Drag fires a synthetic drag sequence from source to destination at their
// rect midpoints. The sequence carries no dataTransfer payload; drop
// handlers that require one will not respond.
func (s *Simulator) Drag(ctx context.Context, source, dest string) error {
	if _, err := s.aim(ctx, source); err != nil {
		return err
	}
	src, err := s.res.Resolve(ctx, source)
	if err != nil {
		return err
	}
	dst, err := s.res.Resolve(ctx, dest)
	if err != nil {
		return err
	}
	if _, err := src.Eval(dragJS, dst.Object); err != nil {
		return evalErr("drag", err)
	}
	return nil
}

// SelectOptions selects the entries of a <select> matching the given
// values, labels or texts, and returns the option values that took.
func (s *Simulator) SelectOptions(ctx context.Context, target string, values []string) ([]string, error) {
	if _, err := s.aim(ctx, target); err != nil {
		return nil, err
	}
	el, err := s.res.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	res, err := el.Eval(selectJS, values)
	if err != nil {
		return nil, evalErr("select", err)
	}
	var picked []string
	if err := res.Value.Unmarshal(&picked); err != nil {
		return nil, evalErr("select decode", err)
	}
	return picked, nil
}

// SetChecked drives a checkbox or radio to the wanted state. Reports
// whether the state changed.
func (s *Simulator) SetChecked(ctx context.Context, target string, checked bool) (bool, error) {
	if _, err := s.aim(ctx, target); err != nil {
		return false, err
	}
	el, err := s.res.Resolve(ctx, target)
	if err != nil {
		return false, err
	}
	res, err := el.Eval(checkJS, checked)
	if err != nil {
		return false, evalErr("check", err)
	}
	return res.Value.Bool(), nil
}

// ScrollIntoView brings the target into the viewport and emits its
// post-scroll cursor position.
func (s *Simulator) ScrollIntoView(ctx context.Context, target string) error {
	// ElementRect scrolls as a side effect, so aim lands on the final rect.
	_, err := s.aim(ctx, target)
	return err
}
