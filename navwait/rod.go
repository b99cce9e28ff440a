package navwait

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"

	"github.com/lumenhq/surfdeck/surface"
)

// New binds a waiter to a live surface.
func New(sf *surface.Surface, log *slog.Logger) *Waiter {
	return &Waiter{
		Pending: sf.PendingRequests,
		WaitLoad: func(ctx context.Context) error {
			return sf.Page().Context(ctx).WaitLoad()
		},
		WaitDOMContentLoaded: func(ctx context.Context) error {
			p := sf.Page().Context(ctx)
			// The event only fires once per document; check readyState
			// first in case it already has.
			if res, err := p.Eval(`() => document.readyState`); err == nil && res.Value.Str() != "loading" {
				return nil
			}
			p.WaitEvent(&proto.PageDomContentEventFired{})()
			return ctx.Err()
		},
		Logger: log,
	}
}
