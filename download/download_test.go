package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeFetcher scripts per-URL behavior and tracks concurrency.
type fakeFetcher struct {
	mu       sync.Mutex
	fail     map[string]int // failures remaining per URL
	failErr  error
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	fetches  atomic.Int32
	urls     map[string]string // target -> resolved URL
}

func (f *fakeFetcher) ResolveURL(ctx context.Context, target, attribute string) (string, error) {
	if u, ok := f.urls[target]; ok {
		return u, nil
	}
	return "", nil
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.fetches.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	f.mu.Lock()
	remaining := f.fail[url]
	if remaining > 0 {
		f.fail[url] = remaining - 1
	}
	f.mu.Unlock()
	if remaining > 0 {
		err := f.failErr
		if err == nil {
			err = errors.New("fetch refused")
		}
		return nil, "", err
	}
	return []byte("payload-" + url), "text/plain", nil
}

func probeFail(context.Context, string) error { return errors.New("unreachable") }

func newEngine(f Fetcher, sink Sink, probe func(context.Context, string) error) *Engine {
	if probe == nil {
		probe = probeFail
	}
	return New(Config{Fetcher: f, Sink: sink, Probe: probe})
}

func urlItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{URL: fmt.Sprintf("https://files.example.com/%d", i), FilePath: fmt.Sprintf("/tmp/f%d", i)}
	}
	return items
}

func TestRun_BoundsConcurrency(t *testing.T) {
	f := &fakeFetcher{delay: 20 * time.Millisecond}
	e := newEngine(f, nil, nil)

	sum := e.Run(context.Background(), urlItems(5), Options{Concurrent: 2})
	if sum.Successful != 5 || sum.Failed != 0 {
		t.Fatalf("summary: %d ok / %d failed, want 5/0", sum.Successful, sum.Failed)
	}
	if p := f.peak.Load(); p > 2 {
		t.Errorf("peak concurrency %d, want <= 2", p)
	}
}

func TestRun_ContinueOnErrorFalseStopsQueue(t *testing.T) {
	items := urlItems(5)
	f := &fakeFetcher{fail: map[string]int{items[1].URL: 99}}
	e := newEngine(f, nil, nil)

	sum := e.Run(context.Background(), items, Options{Concurrent: 1})
	if sum.Outcomes[0].Status != StatusSuccess {
		t.Errorf("item 0: %+v", sum.Outcomes[0])
	}
	if sum.Outcomes[1].Status != StatusFailed {
		t.Errorf("item 1: %+v", sum.Outcomes[1])
	}
	for i := 2; i < 5; i++ {
		if sum.Outcomes[i].Status != StatusSkipped {
			t.Errorf("item %d: got %q, want skipped", i, sum.Outcomes[i].Status)
		}
	}
	if sum.Successful != 1 || sum.Failed != 1 || sum.Skipped != 3 {
		t.Errorf("summary: %d ok / %d failed / %d skipped, want 1/1/3",
			sum.Successful, sum.Failed, sum.Skipped)
	}
}

func TestRun_ContinueOnErrorTrueRunsAll(t *testing.T) {
	items := urlItems(4)
	f := &fakeFetcher{fail: map[string]int{items[0].URL: 99, items[2].URL: 99}}
	e := newEngine(f, nil, nil)

	sum := e.Run(context.Background(), items, Options{Concurrent: 1, ContinueOnError: true})
	if sum.Successful != 2 || sum.Failed != 2 {
		t.Fatalf("summary: %d ok / %d failed, want 2/2", sum.Successful, sum.Failed)
	}
	for _, o := range sum.Outcomes {
		if o.Status == StatusSkipped {
			t.Errorf("no item should be skipped: %+v", o)
		}
	}
}

func TestRun_RetriesWithoutBackoff(t *testing.T) {
	items := urlItems(1)
	f := &fakeFetcher{fail: map[string]int{items[0].URL: 2}}
	e := newEngine(f, nil, nil)

	start := time.Now()
	sum := e.Run(context.Background(), items, Options{Retry: 2})
	if sum.Outcomes[0].Status != StatusSuccess {
		t.Fatalf("outcome: %+v", sum.Outcomes[0])
	}
	if sum.Outcomes[0].Retries != 2 {
		t.Errorf("retries: %d, want 2", sum.Outcomes[0].Retries)
	}
	if f.fetches.Load() != 3 {
		t.Errorf("fetch attempts: %d, want 3", f.fetches.Load())
	}
	// Attempts follow each other immediately.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("retries took %v, backoff not expected", elapsed)
	}
}

func TestRun_RetryExhaustedFails(t *testing.T) {
	items := urlItems(1)
	f := &fakeFetcher{fail: map[string]int{items[0].URL: 99}}
	e := newEngine(f, nil, nil)

	sum := e.Run(context.Background(), items, Options{Retry: 1, ContinueOnError: true})
	o := sum.Outcomes[0]
	if o.Status != StatusFailed || o.Retries != 1 {
		t.Errorf("outcome: %+v", o)
	}
	if f.fetches.Load() != 2 {
		t.Errorf("fetch attempts: %d, want 2", f.fetches.Load())
	}
}

func TestRun_ProbeClassifiesFailures(t *testing.T) {
	items := urlItems(1)

	f := &fakeFetcher{fail: map[string]int{items[0].URL: 99}, failErr: errors.New("TypeError: Failed to fetch")}
	reachable := newEngine(f, nil, func(context.Context, string) error { return nil })
	sum := reachable.Run(context.Background(), items, Options{})
	if !strings.Contains(sum.Outcomes[0].Error, "blocked by cross-origin policy") {
		t.Errorf("reachable probe: %q", sum.Outcomes[0].Error)
	}

	f = &fakeFetcher{fail: map[string]int{items[0].URL: 99}, failErr: errors.New("TypeError: Failed to fetch")}
	dead := newEngine(f, nil, probeFail)
	sum = dead.Run(context.Background(), items, Options{})
	if !strings.Contains(sum.Outcomes[0].Error, "network failure") {
		t.Errorf("dead probe: %q", sum.Outcomes[0].Error)
	}
}

func TestRun_DataURLDecodedLocally(t *testing.T) {
	f := &fakeFetcher{}
	var sunk []byte
	sink := func(item Item, data []byte, o Outcome) error {
		sunk = data
		return nil
	}
	e := newEngine(f, sink, nil)

	items := []Item{{URL: "data:text/plain;base64,aGVsbG8=", FilePath: "/tmp/hello.txt"}}
	sum := e.Run(context.Background(), items, Options{})
	o := sum.Outcomes[0]
	if o.Status != StatusSuccess || o.MimeType != "text/plain" || o.Size != 5 {
		t.Fatalf("outcome: %+v", o)
	}
	if string(sunk) != "hello" {
		t.Errorf("payload: %q", sunk)
	}
	if f.fetches.Load() != 0 {
		t.Error("data URL must not hit the network")
	}
}

func TestRun_UnsafeURLRejectedBeforeFetch(t *testing.T) {
	f := &fakeFetcher{}
	e := newEngine(f, nil, nil)
	items := []Item{
		{URL: "http://127.0.0.1/secret", FilePath: "/tmp/a"},
		{URL: "http://10.0.0.8/internal", FilePath: "/tmp/b"},
		{URL: "ftp://example.com/x", FilePath: "/tmp/c"},
	}
	sum := e.Run(context.Background(), items, Options{ContinueOnError: true})
	for i, o := range sum.Outcomes {
		if o.Status != StatusFailed {
			t.Errorf("item %d: %+v", i, o)
		}
	}
	if f.fetches.Load() != 0 {
		t.Error("unsafe URLs must be rejected before any fetch")
	}
}

func TestRun_ResolvesElementURL(t *testing.T) {
	f := &fakeFetcher{urls: map[string]string{"@e3": "https://cdn.example.com/pic.png"}}
	e := newEngine(f, nil, nil)

	sum := e.Run(context.Background(), []Item{{Ref: "@e3", FilePath: "/tmp/pic.png"}}, Options{})
	o := sum.Outcomes[0]
	if o.Status != StatusSuccess || o.URL != "https://cdn.example.com/pic.png" {
		t.Errorf("outcome: %+v", o)
	}
}

func TestRun_ElementWithoutURLFails(t *testing.T) {
	f := &fakeFetcher{}
	e := newEngine(f, nil, nil)
	sum := e.Run(context.Background(), []Item{{Selector: "div.empty", FilePath: "/tmp/x"}}, Options{})
	o := sum.Outcomes[0]
	if o.Status != StatusFailed || !strings.Contains(o.Error, "no downloadable URL") {
		t.Errorf("outcome: %+v", o)
	}
}

func TestRun_SinkErrorFailsItem(t *testing.T) {
	f := &fakeFetcher{}
	sink := func(Item, []byte, Outcome) error { return errors.New("disk full") }
	e := newEngine(f, sink, nil)
	sum := e.Run(context.Background(), urlItems(1), Options{})
	o := sum.Outcomes[0]
	if o.Status != StatusFailed || !strings.Contains(o.Error, "disk full") {
		t.Errorf("outcome: %+v", o)
	}
}

func TestRun_SummaryTotals(t *testing.T) {
	f := &fakeFetcher{}
	e := newEngine(f, nil, nil)
	sum := e.Run(context.Background(), urlItems(3), Options{})
	if sum.Total != 3 || sum.Successful != 3 {
		t.Fatalf("summary: %+v", sum)
	}
	var want int64
	for _, o := range sum.Outcomes {
		want += o.Size
	}
	if sum.TotalSize != want {
		t.Errorf("total size: %d, want %d", sum.TotalSize, want)
	}
	if sum.Duration <= 0 {
		t.Error("duration not recorded")
	}
}
