// Package refs maintains the ref/element mapping for one execution surface
// and builds snapshots and queries over the current page tree.
//
// A ref ("@eN") is an opaque handle minted during a snapshot or query pass.
// Refs are unique and monotonically increasing within a generation; a full
// snapshot (or a navigation) bumps the generation, after which every prior
// ref resolves to "not found". Live element references are held page-side in
// window.__sdRefs, tagged with the generation, so a stale ref can never
// resolve against a rebuilt tree.
package refs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/lumenhq/surfdeck/protocol"
	"github.com/lumenhq/surfdeck/surface"
)

// SnapshotLine is one emitted element: its ref, computed role, accessible
// name, and truncated diagnostic attributes. Ordering is depth-first
// pre-order over the page tree.
type SnapshotLine struct {
	Ref   string            `json:"ref"`
	Role  string            `json:"role"`
	Name  string            `json:"name,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Snapshot is the result of one full snapshot pass.
type Snapshot struct {
	Lines     []SnapshotLine `json:"lines"`
	Truncated bool           `json:"truncated"`
	Text      string         `json:"text"`
}

// SnapshotOptions controls which elements a snapshot emits.
type SnapshotOptions struct {
	InteractiveOnly bool
	MaxElements     int
	IncludeImages   bool
	IncludeLinks    bool
}

// resolveTimeout bounds selector lookups so a missing element reports
// "not found" instead of hanging on rod's default retry loop.
const resolveTimeout = 3 * time.Second

// Session owns the ref table for one surface.
type Session struct {
	sf *surface.Surface

	mu    sync.Mutex
	gen   uint64
	next  int
	table map[string]SnapshotLine // valid refs of the current generation
}

// NewSession creates an empty session bound to a surface.
func NewSession(sf *surface.Surface) *Session {
	return &Session{sf: sf, gen: 0, next: 1, table: make(map[string]SnapshotLine)}
}

// Generation returns the current generation tag.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Invalidate bumps the generation without building a snapshot. Called on
// navigation and reload so stale refs fail deterministically.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bumpLocked()
}

func (s *Session) bumpLocked() {
	s.gen++
	s.next = 1
	s.table = make(map[string]SnapshotLine)
}

// Snapshot rebuilds the ref table from a fresh depth-first walk of the page
// tree. All refs from earlier generations are invalidated.
func (s *Session) Snapshot(ctx context.Context, opts SnapshotOptions) (*Snapshot, error) {
	s.mu.Lock()
	s.bumpLocked()
	gen := s.gen
	start := s.next
	s.mu.Unlock()

	res, err := s.sf.Eval(ctx, walkerJS, map[string]any{
		"gen":             gen,
		"start":           start,
		"interactiveOnly": opts.InteractiveOnly,
		"maxElements":     opts.MaxElements,
		"includeImages":   opts.IncludeImages,
		"includeLinks":    opts.IncludeLinks,
	})
	if err != nil {
		return nil, fmt.Errorf("refs: snapshot walk: %w", err)
	}

	var out struct {
		Lines     []SnapshotLine `json:"lines"`
		Truncated bool           `json:"truncated"`
		Next      int            `json:"next"`
	}
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("refs: decode snapshot: %w", err)
	}

	s.mu.Lock()
	if s.gen == gen { // only record if no concurrent invalidation happened
		s.next = out.Next
		for _, l := range out.Lines {
			s.table[l.Ref] = l
		}
	}
	s.mu.Unlock()

	return &Snapshot{
		Lines:     out.Lines,
		Truncated: out.Truncated,
		Text:      FormatLines(out.Lines, out.Truncated),
	}, nil
}

// QuerySelector assigns refs additively to every element matching the
// selector, reusing refs for elements already tracked in this generation.
// The existing table is not cleared, so prior action targets stay valid.
func (s *Session) QuerySelector(ctx context.Context, selector string) ([]SnapshotLine, error) {
	s.mu.Lock()
	gen := s.gen
	start := s.next
	s.mu.Unlock()

	res, err := s.sf.Eval(ctx, queryJS, selector, gen, start)
	if err != nil {
		return nil, fmt.Errorf("refs: query %q: %w", selector, err)
	}

	var out struct {
		Lines []SnapshotLine `json:"lines"`
		Next  int            `json:"next"`
	}
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil, fmt.Errorf("refs: decode query: %w", err)
	}

	s.mu.Lock()
	if s.gen == gen {
		s.next = out.Next
		for _, l := range out.Lines {
			s.table[l.Ref] = l
		}
	}
	s.mu.Unlock()

	return out.Lines, nil
}

// Resolve maps a ref or CSS selector to the live element. Stale refs and
// unmatched selectors return protocol.ErrElementNotFound.
func (s *Session) Resolve(ctx context.Context, target string) (*rod.Element, error) {
	if strings.HasPrefix(target, "@") {
		s.mu.Lock()
		_, known := s.table[target]
		gen := s.gen
		s.mu.Unlock()
		if !known {
			return nil, &protocol.ErrElementNotFound{Target: target}
		}
		el, err := s.sf.Page().Context(ctx).Timeout(resolveTimeout).ElementByJS(rod.Eval(`(ref, gen) => {
			const reg = window.__sdRefs;
			if (!reg || reg.gen !== gen || !reg.els[ref]) return null;
			return reg.els[ref];
		}`, target, gen))
		if err != nil {
			return nil, &protocol.ErrElementNotFound{Target: target}
		}
		return el, nil
	}

	el, err := s.sf.Page().Context(ctx).Timeout(resolveTimeout).Element(target)
	if err != nil {
		return nil, &protocol.ErrElementNotFound{Target: target}
	}
	return el, nil
}

// ElementRect scrolls the target into view and returns its viewport
// bounding box.
func (s *Session) ElementRect(ctx context.Context, target string) (surface.Rect, error) {
	el, err := s.Resolve(ctx, target)
	if err != nil {
		return surface.Rect{}, err
	}
	if err := el.ScrollIntoView(); err != nil {
		return surface.Rect{}, fmt.Errorf("refs: scroll into view: %w", err)
	}
	shape, err := el.Shape()
	if err != nil {
		return surface.Rect{}, fmt.Errorf("refs: element shape: %w", err)
	}
	box := shape.Box()
	return surface.Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

// Selector builds a unique CSS selector for the target element, preferring
// id, then stable attributes, then an nth-child path.
func (s *Session) Selector(ctx context.Context, target string) (string, error) {
	el, err := s.Resolve(ctx, target)
	if err != nil {
		return "", err
	}
	res, err := el.Eval(selectorJS)
	if err != nil {
		return "", fmt.Errorf("refs: build selector: %w", err)
	}
	return res.Value.Str(), nil
}

// Attribute returns one attribute of the target, nil when absent.
func (s *Session) Attribute(ctx context.Context, target, name string) (*string, error) {
	el, err := s.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return nil, fmt.Errorf("refs: attribute %q: %w", name, err)
	}
	return v, nil
}

// Text returns the rendered text of the target.
func (s *Session) Text(ctx context.Context, target string) (string, error) {
	el, err := s.Resolve(ctx, target)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("refs: element text: %w", err)
	}
	return text, nil
}

// Known reports whether a ref is valid in the current generation.
func (s *Session) Known(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.table[ref]
	return ok
}

// FormatLines renders snapshot lines as the textual listing sent to the
// controller, one element per line.
func FormatLines(lines []SnapshotLine, truncated bool) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Ref)
		b.WriteByte(' ')
		b.WriteString(l.Role)
		if l.Name != "" {
			fmt.Fprintf(&b, " %q", l.Name)
		}
		for _, k := range []string{"href", "src", "disabled", "checked", "required", "readonly"} {
			if v, ok := l.Attrs[k]; ok {
				if v == "true" {
					fmt.Fprintf(&b, " [%s]", k)
				} else {
					fmt.Fprintf(&b, " %s=%s", k, v)
				}
			}
		}
		b.WriteByte('\n')
	}
	if truncated {
		b.WriteString("... (truncated)\n")
	}
	return b.String()
}
