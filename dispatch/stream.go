package dispatch

import (
	"sync/atomic"

	"github.com/lumenhq/surfdeck/surface"
)

// StateKind labels a surface state change on the stream.
type StateKind string

const (
	StateReady     StateKind = "ready"
	StateOperating StateKind = "operating"
	StateLocked    StateKind = "locked"
	StateUnlocked  StateKind = "unlocked"
	StateOverlay   StateKind = "overlay"
)

// State is one state signal.
type State struct {
	Kind   StateKind `json:"kind"`
	Active bool      `json:"active,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// ActionSummary describes one simulated action for the visualization
// consumer.
type ActionSummary struct {
	Kind   string `json:"kind"`
	Target string `json:"target,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Stream carries visualization signals over bounded channels. Sends never
// block: a slow or absent consumer drops signals instead of stalling the
// dispatcher.
type Stream struct {
	Cursor  chan surface.CursorPosition
	Actions chan ActionSummary
	States  chan State

	dropped atomic.Int64
}

// NewStream allocates a stream with the given per-channel buffer. Zero
// means 16.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	return &Stream{
		Cursor:  make(chan surface.CursorPosition, buffer),
		Actions: make(chan ActionSummary, buffer),
		States:  make(chan State, buffer),
	}
}

// SendCursor offers a cursor position; reports whether it was accepted.
func (s *Stream) SendCursor(p surface.CursorPosition) bool {
	select {
	case s.Cursor <- p:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// SendAction offers an action summary.
func (s *Stream) SendAction(a ActionSummary) bool {
	select {
	case s.Actions <- a:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// SendState offers a state signal.
func (s *Stream) SendState(st State) bool {
	select {
	case s.States <- st:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Dropped returns how many signals were discarded because a channel was
// full.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}
