// Package dispatch executes protocol operations against one surface. One
// operation runs at a time; every accepted operation yields exactly one
// result carrying the operation's ID, no matter what the handler does —
// panics included.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lumenhq/surfdeck/conlog"
	"github.com/lumenhq/surfdeck/download"
	"github.com/lumenhq/surfdeck/navwait"
	"github.com/lumenhq/surfdeck/netcap"
	"github.com/lumenhq/surfdeck/oplog"
	"github.com/lumenhq/surfdeck/protocol"
	"github.com/lumenhq/surfdeck/refs"
	"github.com/lumenhq/surfdeck/simulate"
	"github.com/lumenhq/surfdeck/surface"
)

type handlerFunc func(ctx context.Context, op protocol.Operation) protocol.Result

// Config carries the dispatcher's collaborators. Surface, Refs, Sim and
// Wait are required; the rest degrade gracefully when nil.
type Config struct {
	Surface  *surface.Surface
	Refs     *refs.Session
	Sim      *simulate.Simulator
	Wait     *navwait.Waiter
	Download *download.Engine
	Network  *netcap.Recorder
	Console  *conlog.Buffer
	Ops      *oplog.Logger
	Stream   *Stream
	Logger   *slog.Logger
}

// Dispatcher serializes operations over one surface.
type Dispatcher struct {
	sf      *surface.Surface
	refs    *refs.Session
	sim     *simulate.Simulator
	wait    *navwait.Waiter
	dl      *download.Engine
	net     *netcap.Recorder
	console *conlog.Buffer
	ops     *oplog.Logger
	stream  *Stream
	log     *slog.Logger

	handlers map[protocol.Kind]handlerFunc

	// gate serializes Dispatch; held for the whole operation.
	gate chan struct{}

	// locked is written only by the lock/unlock handlers, which run under
	// the gate; atomic so Locked can be read from other goroutines.
	locked atomic.Bool
}

// New builds a dispatcher and validates that every known operation kind has
// a handler; a gap is a programming error surfaced at startup, not at
// request time.
func New(cfg Config) (*Dispatcher, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	stream := cfg.Stream
	if stream == nil {
		stream = NewStream(0)
	}
	d := &Dispatcher{
		sf:      cfg.Surface,
		refs:    cfg.Refs,
		sim:     cfg.Sim,
		wait:    cfg.Wait,
		dl:      cfg.Download,
		net:     cfg.Network,
		console: cfg.Console,
		ops:     cfg.Ops,
		stream:  stream,
		log:     log,
		gate:    make(chan struct{}, 1),
	}
	d.handlers = d.buildHandlers()
	for _, k := range protocol.KnownKinds() {
		if d.handlers[k] == nil {
			return nil, fmt.Errorf("dispatch: no handler for operation kind %q", k)
		}
	}
	return d, nil
}

// Stream returns the visualization stream.
func (d *Dispatcher) Stream() *Stream { return d.stream }

// Locked reports whether lock mode is active.
func (d *Dispatcher) Locked() bool { return d.locked.Load() }

// Dispatch runs one operation to completion and returns its result. Calls
// are serialized; a second caller blocks until the first finishes or its
// context expires.
func (d *Dispatcher) Dispatch(ctx context.Context, op protocol.Operation) protocol.Result {
	select {
	case d.gate <- struct{}{}:
	case <-ctx.Done():
		res := protocol.Fail(ctx.Err())
		res.ID = op.ID
		return res
	}
	defer func() { <-d.gate }()

	start := time.Now()
	res := d.run(ctx, op)
	res.ID = op.ID

	if d.ops != nil {
		d.ops.Record(ctx, oplog.Entry{
			OpID:     op.ID,
			Kind:     string(op.Type),
			Success:  res.Success,
			Error:    res.Error,
			Duration: time.Since(start),
		})
	}
	d.log.Debug("operation dispatched",
		"id", op.ID, "kind", op.Type, "success", res.Success,
		"duration", time.Since(start))
	return res
}

// run looks up and executes the handler, converting panics into failed
// results so the dispatcher survives any handler bug.
func (d *Dispatcher) run(ctx context.Context, op protocol.Operation) (res protocol.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic", "kind", op.Type, "panic", r)
			res = protocol.Failf("internal error in %s: %v", op.Type, r)
		}
	}()

	h, ok := d.handlers[op.Type]
	if !ok {
		return protocol.Fail(&protocol.ErrUnknownOperation{Type: op.Type})
	}

	action := isSimulatedAction(op.Type)
	if action && !d.locked.Load() {
		d.stream.SendState(State{Kind: StateOverlay, Active: true})
		d.stream.SendAction(ActionSummary{
			Kind:   string(op.Type),
			Target: op.String("ref") + op.String("selector"),
		})
	}
	d.stream.SendState(State{Kind: StateOperating, Active: true, Detail: string(op.Type)})

	res = h(ctx, op)

	// A document swap retires every outstanding ref, even when the load
	// only partially succeeded.
	if invalidatesRefs(op.Type) && d.refs != nil {
		d.refs.Invalidate()
	}

	d.stream.SendState(State{Kind: StateOperating, Active: false, Detail: string(op.Type)})
	if action && !d.locked.Load() {
		d.stream.SendState(State{Kind: StateOverlay, Active: false})
	}
	return res
}

// isSimulatedAction reports whether the kind drives user-level input and
// should be framed by overlay and summary signals.
func isSimulatedAction(k protocol.Kind) bool {
	switch k {
	case protocol.KindClick, protocol.KindFill, protocol.KindType,
		protocol.KindPress, protocol.KindSelect, protocol.KindCheck,
		protocol.KindHover, protocol.KindDrag, protocol.KindScroll:
		return true
	}
	return false
}

// invalidatesRefs reports whether the kind replaces the document and thus
// the element table.
func invalidatesRefs(k protocol.Kind) bool {
	switch k {
	case protocol.KindNavigate, protocol.KindReload,
		protocol.KindBack, protocol.KindForward:
		return true
	}
	return false
}
