// Package conlog buffers console output from the page. Entries accumulate
// across navigations in a bounded ring and can be queried after the fact or
// collected live while a page is producing them.
package conlog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lumenhq/surfdeck/idgen"
)

// maxEntries bounds the ring; the oldest entry is evicted first.
const maxEntries = 1000

// Entry is one console message.
type Entry struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"` // log, info, warn, error, debug
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // script URL or "browser"
}

// Filter narrows queries and collections. Zero fields match everything;
// patterns are case-insensitive substrings.
type Filter struct {
	Level         string
	TextPattern   string
	SourcePattern string
	Since         time.Time
}

// Match reports whether the entry passes the filter.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" && !strings.EqualFold(f.Level, e.Level) {
		return false
	}
	if f.TextPattern != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.TextPattern)) {
		return false
	}
	if f.SourcePattern != "" && !strings.Contains(strings.ToLower(e.Source), strings.ToLower(f.SourcePattern)) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

type listener struct {
	filter Filter
	ch     chan Entry
}

// Buffer is the console ring plus the live-collection listener list. Safe
// for concurrent use; the CDP event goroutine appends while operations read.
type Buffer struct {
	mu        sync.Mutex
	entries   []Entry
	listeners map[int]*listener
	nextID    int
	newID     idgen.Generator
}

// NewBuffer returns an empty buffer. gen mints entry IDs; nil uses the
// package default.
func NewBuffer(gen idgen.Generator) *Buffer {
	if gen == nil {
		gen = idgen.Prefixed("log_", idgen.Default)
	}
	return &Buffer{listeners: make(map[int]*listener), newID: gen}
}

// Append records an entry, assigning it an ID, and feeds live collectors.
func (b *Buffer) Append(e Entry) Entry {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.ID = b.newID()

	b.mu.Lock()
	b.entries = append(b.entries, e)
	if len(b.entries) > maxEntries {
		b.entries = b.entries[len(b.entries)-maxEntries:]
	}
	for _, l := range b.listeners {
		if l.filter.Match(e) {
			select {
			case l.ch <- e:
			default: // collector already has its count
			}
		}
	}
	b.mu.Unlock()
	return e
}

// Query returns buffered entries passing the filter, oldest first, sliced
// by offset and limit. limit <= 0 means no limit.
func (b *Buffer) Query(f Filter, limit, offset int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	if offset >= len(out) {
		return []Entry{}
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear drops all buffered entries. Live collectors are unaffected.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.entries = nil
	b.mu.Unlock()
}

// Listeners returns the number of registered live collectors.
func (b *Buffer) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Collection is the outcome of a Collect call.
type Collection struct {
	Entries  []Entry `json:"entries"`
	TimedOut bool    `json:"timedOut"`
}

// Collect blocks until count matching entries have arrived or the timeout
// elapses, returning whatever was gathered. The listener is always removed
// before returning. Only entries appended after the call starts are
// considered; use Query for history.
func (b *Buffer) Collect(ctx context.Context, f Filter, count int, timeout time.Duration) Collection {
	if count <= 0 {
		count = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	l := &listener{filter: f, ch: make(chan Entry, count)}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	got := make([]Entry, 0, count)
	for len(got) < count {
		select {
		case e := <-l.ch:
			got = append(got, e)
		case <-timer.C:
			return Collection{Entries: got, TimedOut: true}
		case <-ctx.Done():
			return Collection{Entries: got, TimedOut: true}
		}
	}
	return Collection{Entries: got}
}
