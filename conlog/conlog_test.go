package conlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAppend_AssignsIDs(t *testing.T) {
	b := NewBuffer(nil)
	e := b.Append(Entry{Level: "log", Message: "hello"})
	if !strings.HasPrefix(e.ID, "log_") {
		t.Errorf("ID %q lacks log_ prefix", e.ID)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not defaulted")
	}
}

func TestRing_EvictsOldestAtCapacity(t *testing.T) {
	b := NewBuffer(nil)
	for i := 0; i < maxEntries+50; i++ {
		b.Append(Entry{Level: "log", Message: fmt.Sprintf("msg %d", i)})
	}
	if b.Len() != maxEntries {
		t.Fatalf("len: got %d, want %d", b.Len(), maxEntries)
	}
	got := b.Query(Filter{}, 1, 0)
	if len(got) != 1 || got[0].Message != "msg 50" {
		t.Errorf("oldest surviving entry: %+v, want msg 50", got)
	}
}

func TestQuery_Filters(t *testing.T) {
	b := NewBuffer(nil)
	base := time.Now()
	b.Append(Entry{Level: "error", Message: "boom in app.js", Source: "https://site/app.js", Timestamp: base})
	b.Append(Entry{Level: "log", Message: "ready", Source: "https://site/main.js", Timestamp: base.Add(time.Second)})
	b.Append(Entry{Level: "warn", Message: "slow request", Source: "browser", Timestamp: base.Add(2 * time.Second)})

	if got := b.Query(Filter{Level: "ERROR"}, 0, 0); len(got) != 1 || got[0].Message != "boom in app.js" {
		t.Errorf("level filter: %+v", got)
	}
	if got := b.Query(Filter{TextPattern: "SLOW"}, 0, 0); len(got) != 1 || got[0].Level != "warn" {
		t.Errorf("text filter: %+v", got)
	}
	if got := b.Query(Filter{SourcePattern: "main.js"}, 0, 0); len(got) != 1 || got[0].Message != "ready" {
		t.Errorf("source filter: %+v", got)
	}
	if got := b.Query(Filter{Since: base.Add(500 * time.Millisecond)}, 0, 0); len(got) != 2 {
		t.Errorf("since filter: got %d entries, want 2", len(got))
	}
}

func TestQuery_Pagination(t *testing.T) {
	b := NewBuffer(nil)
	for i := 0; i < 10; i++ {
		b.Append(Entry{Level: "log", Message: fmt.Sprintf("m%d", i)})
	}
	got := b.Query(Filter{}, 3, 4)
	if len(got) != 3 || got[0].Message != "m4" || got[2].Message != "m6" {
		t.Errorf("page: %+v", got)
	}
	if got := b.Query(Filter{}, 5, 100); len(got) != 0 {
		t.Errorf("offset past end: %+v", got)
	}
}

func TestClear(t *testing.T) {
	b := NewBuffer(nil)
	b.Append(Entry{Level: "log", Message: "x"})
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("len after clear: %d", b.Len())
	}
}

func TestCollect_ResolvesAtCount(t *testing.T) {
	b := NewBuffer(nil)
	b.Append(Entry{Level: "error", Message: "before collect"})

	var wg sync.WaitGroup
	wg.Add(1)
	var got Collection
	go func() {
		defer wg.Done()
		got = b.Collect(context.Background(), Filter{Level: "error"}, 2, 5*time.Second)
	}()

	// Give the collector time to register.
	waitListeners(t, b, 1)
	b.Append(Entry{Level: "log", Message: "noise"})
	b.Append(Entry{Level: "error", Message: "first"})
	b.Append(Entry{Level: "error", Message: "second"})
	wg.Wait()

	if got.TimedOut {
		t.Fatal("collect timed out")
	}
	if len(got.Entries) != 2 || got.Entries[0].Message != "first" || got.Entries[1].Message != "second" {
		t.Errorf("collected: %+v", got.Entries)
	}
	if b.Listeners() != 0 {
		t.Errorf("listeners after collect: %d, want 0", b.Listeners())
	}
}

func TestCollect_TimeoutReturnsPartial(t *testing.T) {
	b := NewBuffer(nil)
	var wg sync.WaitGroup
	wg.Add(1)
	var got Collection
	go func() {
		defer wg.Done()
		got = b.Collect(context.Background(), Filter{}, 5, 50*time.Millisecond)
	}()

	waitListeners(t, b, 1)
	b.Append(Entry{Level: "log", Message: "only one"})
	wg.Wait()

	if !got.TimedOut {
		t.Fatal("expected TimedOut")
	}
	if len(got.Entries) != 1 {
		t.Errorf("partial entries: %d, want 1", len(got.Entries))
	}
	if b.Listeners() != 0 {
		t.Errorf("listeners after timeout: %d, want 0", b.Listeners())
	}
}

func TestCollect_CanceledContextDeregisters(t *testing.T) {
	b := NewBuffer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Collect(ctx, Filter{}, 1, time.Minute)
	}()
	waitListeners(t, b, 1)
	cancel()
	wg.Wait()
	if b.Listeners() != 0 {
		t.Errorf("listeners after cancel: %d, want 0", b.Listeners())
	}
}

func waitListeners(t *testing.T, b *Buffer, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for b.Listeners() != n {
		if time.Now().After(deadline) {
			t.Fatalf("listeners never reached %d", n)
		}
		time.Sleep(time.Millisecond)
	}
}
