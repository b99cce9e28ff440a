// Package navwait turns navigation wait policies into load states. A wait
// never hangs: every policy is bounded by the operation timeout and resolves
// to a terminal state instead of blocking the dispatcher.
package navwait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// WaitUntil is the wait policy requested by a navigation operation.
type WaitUntil string

const (
	// UntilNone returns as soon as the navigation has been issued.
	UntilNone WaitUntil = "none"
	// UntilLoad resolves on the window load event.
	UntilLoad WaitUntil = "load"
	// UntilDOMContentLoaded resolves on DOMContentLoaded.
	UntilDOMContentLoaded WaitUntil = "domcontentloaded"
	// UntilNetworkIdle resolves once the page has loaded and the pending
	// request count has stayed at zero for a settle window.
	UntilNetworkIdle WaitUntil = "networkidle"
)

// LoadState is the terminal outcome of a wait.
type LoadState string

const (
	StateComplete LoadState = "complete"
	StateTimeout  LoadState = "timeout"
	StateError    LoadState = "error"
)

// ParseWaitUntil validates a policy string. Empty means UntilLoad.
func ParseWaitUntil(s string) (WaitUntil, error) {
	switch WaitUntil(s) {
	case "":
		return UntilLoad, nil
	case UntilNone, UntilLoad, UntilDOMContentLoaded, UntilNetworkIdle:
		return WaitUntil(s), nil
	}
	return "", fmt.Errorf("navwait: unknown waitUntil %q", s)
}

// Tolerable reports whether a navigation error is expected noise rather
// than a failed load. Chrome aborts the provisional load when a redirect or
// an auth handshake supersedes it, which surfaces as net::ERR_ABORTED.
func Tolerable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "net::ERR_ABORTED")
}

const (
	defaultPoll   = 200 * time.Millisecond
	defaultSettle = 500 * time.Millisecond
)

// Waiter binds the wait state machine to a page. The function fields are
// the only contact surface with the browser, so the machine itself runs
// against fakes in tests.
type Waiter struct {
	// Pending returns the in-flight request count, fed by CDP network
	// events on the surface.
	Pending func() int
	// WaitLoad blocks until the window load event or ctx expiry.
	WaitLoad func(ctx context.Context) error
	// WaitDOMContentLoaded blocks until DOMContentLoaded or ctx expiry.
	WaitDOMContentLoaded func(ctx context.Context) error
	// Poll is the pending-count poll interval. Zero means 200ms.
	Poll time.Duration
	// Settle is how long the count must hold at zero. Zero means 500ms.
	Settle time.Duration
	Logger *slog.Logger
}

func (w *Waiter) poll() time.Duration {
	if w.Poll > 0 {
		return w.Poll
	}
	return defaultPoll
}

func (w *Waiter) settle() time.Duration {
	if w.Settle > 0 {
		return w.Settle
	}
	return defaultSettle
}

func (w *Waiter) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Wait runs the policy and returns the terminal state. The returned error
// carries detail only when the state is StateError; timeout is a state, not
// an error, so callers report it inside a successful result.
func (w *Waiter) Wait(ctx context.Context, until WaitUntil, timeout time.Duration) (LoadState, error) {
	if until == UntilNone {
		return StateComplete, nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wait := w.WaitLoad
	if until == UntilDOMContentLoaded {
		wait = w.WaitDOMContentLoaded
	}
	if err := wait(ctx); err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
			return StateTimeout, nil
		case Tolerable(err):
			w.logger().Debug("navigation aborted by a superseding load", "error", err)
		default:
			return StateError, fmt.Errorf("navwait: load: %w", err)
		}
	}
	if until != UntilNetworkIdle {
		return StateComplete, nil
	}
	return w.waitIdle(ctx)
}

// waitIdle polls the pending count until it holds at zero for the settle
// window. The surrounding deadline converts a busy page into StateTimeout.
func (w *Waiter) waitIdle(ctx context.Context) (LoadState, error) {
	ticker := time.NewTicker(w.poll())
	defer ticker.Stop()

	var zeroSince time.Time
	for {
		if w.Pending() == 0 {
			if zeroSince.IsZero() {
				zeroSince = time.Now()
			} else if time.Since(zeroSince) >= w.settle() {
				return StateComplete, nil
			}
		} else {
			zeroSince = time.Time{}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return StateTimeout, nil
		}
	}
}
