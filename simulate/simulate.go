// Package simulate performs user-level actions against a surface: clicks,
// form input, keyboard, hover and drag. Geometry-bearing actions run a fixed
// pipeline so the visualization consumer sees the cursor arrive before the
// page reacts: resolve the target rect, map it to screen coordinates, emit
// the cursor position, wait the settle delay, then act.
package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"

	"github.com/lumenhq/surfdeck/surface"
)

// settleDelay is the pause between cursor emission and the action itself,
// long enough for the consumer to render the cursor at its new position.
const settleDelay = 250 * time.Millisecond

// Resolver maps a ref or CSS selector to a live element and its geometry.
// *refs.Session is the production implementation.
type Resolver interface {
	Resolve(ctx context.Context, target string) (*rod.Element, error)
	ElementRect(ctx context.Context, target string) (surface.Rect, error)
}

// CursorFunc receives screen-space cursor positions for the viz stream.
type CursorFunc func(surface.CursorPosition)

// Config carries the simulator's collaborators.
type Config struct {
	Surface  *surface.Surface
	Resolver Resolver
	// Cursor is invoked before each geometry-bearing action. Nil disables
	// emission but keeps the settle delay so action timing stays uniform.
	Cursor CursorFunc
	// Settle overrides the default settle delay. Zero means the default;
	// negative disables the delay (tests).
	Settle time.Duration
	Logger *slog.Logger
}

// Simulator executes actions one at a time. It is not safe for concurrent
// use; the dispatcher serializes operations before they reach it.
type Simulator struct {
	sf     *surface.Surface
	res    Resolver
	cursor CursorFunc
	settle time.Duration
	log    *slog.Logger
}

// New builds a simulator from cfg.
func New(cfg Config) *Simulator {
	settle := cfg.Settle
	switch {
	case settle == 0:
		settle = settleDelay
	case settle < 0:
		settle = 0
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{
		sf:     cfg.Surface,
		res:    cfg.Resolver,
		cursor: cfg.Cursor,
		settle: settle,
		log:    log,
	}
}

// aim runs the shared front half of every geometry-bearing action: rect,
// screen transform, cursor emission, settle. It returns the screen position
// the action should land on.
func (s *Simulator) aim(ctx context.Context, target string) (surface.CursorPosition, error) {
	rect, err := s.res.ElementRect(ctx, target)
	if err != nil {
		return surface.CursorPosition{}, err
	}
	pos := s.sf.Transform().ApplyRect(rect)
	if s.cursor != nil {
		s.cursor(pos)
	}
	if s.settle > 0 {
		select {
		case <-time.After(s.settle):
		case <-ctx.Done():
			return pos, ctx.Err()
		}
	}
	return pos, nil
}

func evalErr(action string, err error) error {
	return fmt.Errorf("simulate: %s: %w", action, err)
}
