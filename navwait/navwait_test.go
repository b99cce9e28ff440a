package navwait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func immediate(context.Context) error { return nil }

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestParseWaitUntil(t *testing.T) {
	for _, s := range []string{"none", "load", "domcontentloaded", "networkidle"} {
		got, err := ParseWaitUntil(s)
		if err != nil {
			t.Fatalf("ParseWaitUntil(%q): %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseWaitUntil(%q) = %q", s, got)
		}
	}
	if got, err := ParseWaitUntil(""); err != nil || got != UntilLoad {
		t.Errorf("empty policy: got (%q, %v), want (load, nil)", got, err)
	}
	if _, err := ParseWaitUntil("idle"); err == nil {
		t.Error("unknown policy should fail")
	}
}

func TestWait_NoneReturnsImmediately(t *testing.T) {
	w := &Waiter{WaitLoad: blockUntilDone, WaitDOMContentLoaded: blockUntilDone}
	start := time.Now()
	state, err := w.Wait(context.Background(), UntilNone, time.Second)
	if err != nil || state != StateComplete {
		t.Fatalf("got (%q, %v), want (complete, nil)", state, err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("none policy must not wait")
	}
}

func TestWait_LoadComplete(t *testing.T) {
	w := &Waiter{WaitLoad: immediate}
	state, err := w.Wait(context.Background(), UntilLoad, time.Second)
	if err != nil || state != StateComplete {
		t.Fatalf("got (%q, %v), want (complete, nil)", state, err)
	}
}

func TestWait_DOMContentLoadedUsesItsOwnEvent(t *testing.T) {
	var domCalls atomic.Int32
	w := &Waiter{
		WaitLoad: func(context.Context) error {
			t.Error("load waiter must not run for domcontentloaded")
			return nil
		},
		WaitDOMContentLoaded: func(context.Context) error {
			domCalls.Add(1)
			return nil
		},
	}
	state, err := w.Wait(context.Background(), UntilDOMContentLoaded, time.Second)
	if err != nil || state != StateComplete {
		t.Fatalf("got (%q, %v), want (complete, nil)", state, err)
	}
	if domCalls.Load() != 1 {
		t.Errorf("dom waiter calls: %d", domCalls.Load())
	}
}

func TestWait_TimeoutIsAStateNotAnError(t *testing.T) {
	w := &Waiter{WaitLoad: blockUntilDone}
	start := time.Now()
	state, err := w.Wait(context.Background(), UntilLoad, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout must not surface as an error: %v", err)
	}
	if state != StateTimeout {
		t.Fatalf("state: got %q, want timeout", state)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("wait ran %v past a 50ms timeout", elapsed)
	}
}

func TestWait_AbortedLoadIsTolerated(t *testing.T) {
	w := &Waiter{WaitLoad: func(context.Context) error {
		return errors.New("navigation failed: net::ERR_ABORTED")
	}}
	state, err := w.Wait(context.Background(), UntilLoad, time.Second)
	if err != nil || state != StateComplete {
		t.Fatalf("got (%q, %v), want (complete, nil)", state, err)
	}
}

func TestWait_LoadFailureIsError(t *testing.T) {
	loadErr := errors.New("navigation failed: net::ERR_NAME_NOT_RESOLVED")
	w := &Waiter{WaitLoad: func(context.Context) error { return loadErr }}
	state, err := w.Wait(context.Background(), UntilLoad, time.Second)
	if state != StateError {
		t.Fatalf("state: got %q, want error", state)
	}
	if !errors.Is(err, loadErr) {
		t.Fatalf("err: got %v, want wrapped %v", err, loadErr)
	}
}

func TestWait_NetworkIdleHoldsSettleWindow(t *testing.T) {
	// Pending drains after three polls, then the settle window must still
	// elapse before complete.
	var polls atomic.Int32
	w := &Waiter{
		WaitLoad: immediate,
		Pending: func() int {
			if polls.Add(1) <= 3 {
				return 2
			}
			return 0
		},
		Poll:   5 * time.Millisecond,
		Settle: 40 * time.Millisecond,
	}
	start := time.Now()
	state, err := w.Wait(context.Background(), UntilNetworkIdle, time.Second)
	if err != nil || state != StateComplete {
		t.Fatalf("got (%q, %v), want (complete, nil)", state, err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("resolved in %v, settle window not held", elapsed)
	}
}

func TestWait_NetworkIdleSettleRestartsOnNewRequests(t *testing.T) {
	// Zero, then a late request, then zero again: the settle clock must
	// restart rather than credit the first quiet stretch.
	seq := []int{0, 0, 1}
	var i atomic.Int32
	var burstAt time.Time
	w := &Waiter{
		WaitLoad: immediate,
		Pending: func() int {
			n := int(i.Add(1)) - 1
			if n < len(seq) {
				if seq[n] > 0 {
					burstAt = time.Now()
				}
				return seq[n]
			}
			return 0
		},
		Poll:   5 * time.Millisecond,
		Settle: 25 * time.Millisecond,
	}
	state, err := w.Wait(context.Background(), UntilNetworkIdle, time.Second)
	if err != nil || state != StateComplete {
		t.Fatalf("got (%q, %v), want (complete, nil)", state, err)
	}
	if burstAt.IsZero() {
		t.Fatal("pending burst never observed")
	}
	if quiet := time.Since(burstAt); quiet < 25*time.Millisecond {
		t.Errorf("resolved %v after the burst, settle window did not restart", quiet)
	}
}

func TestWait_NetworkIdleBusyPageTimesOut(t *testing.T) {
	w := &Waiter{
		WaitLoad: immediate,
		Pending:  func() int { return 4 },
		Poll:     5 * time.Millisecond,
	}
	start := time.Now()
	state, err := w.Wait(context.Background(), UntilNetworkIdle, 60*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout must not surface as an error: %v", err)
	}
	if state != StateTimeout {
		t.Fatalf("state: got %q, want timeout", state)
	}
	// Wall clock bounded by timeout plus one poll interval.
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("busy wait ran %v past its bound", elapsed)
	}
}

func TestTolerable(t *testing.T) {
	if !Tolerable(errors.New("page load err: net::ERR_ABORTED")) {
		t.Error("ERR_ABORTED should be tolerable")
	}
	if Tolerable(errors.New("net::ERR_CONNECTION_REFUSED")) {
		t.Error("connection refused is a real failure")
	}
	if Tolerable(nil) {
		t.Error("nil is not tolerable")
	}
}
