package surface

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Surface is one live execution surface: a Chrome page plus the emulation
// and in-flight request state the engine needs to drive it. All operations
// for a session target the same Surface.
type Surface struct {
	page *rod.Page
	log  *slog.Logger

	mu       sync.Mutex
	profile  *DeviceProfile // nil when no emulation is active
	rendered Size           // rendered-surface size reported by the host UI

	pending *pendingCounter
}

// Size is a width/height pair in CSS pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

const defaultViewportWidth = 1280
const defaultViewportHeight = 800

func newSurface(ctx context.Context, page *rod.Page, log *slog.Logger) *Surface {
	s := &Surface{
		page:    page.Context(ctx),
		log:     log,
		pending: newPendingCounter(),
	}
	s.pending.attach(s.page)
	return s
}

// Page exposes the underlying rod page for collaborating subsystems
// (refs, simulate, navwait, netcap, conlog).
func (s *Surface) Page() *rod.Page { return s.page }

// Navigate issues a navigation. Completion is the wait state machine's job;
// this only starts the load.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	if err := s.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("surface: navigate %s: %w", url, err)
	}
	return nil
}

// Back navigates one entry back in session history.
func (s *Surface) Back(ctx context.Context) error {
	if err := s.page.Context(ctx).NavigateBack(); err != nil {
		return fmt.Errorf("surface: back: %w", err)
	}
	return nil
}

// Forward navigates one entry forward in session history.
func (s *Surface) Forward(ctx context.Context) error {
	if err := s.page.Context(ctx).NavigateForward(); err != nil {
		return fmt.Errorf("surface: forward: %w", err)
	}
	return nil
}

// Reload reloads the current document.
func (s *Surface) Reload(ctx context.Context) error {
	if err := s.page.Context(ctx).Reload(); err != nil {
		return fmt.Errorf("surface: reload: %w", err)
	}
	return nil
}

// URL returns the current document URL.
func (s *Surface) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("surface: page info: %w", err)
	}
	return info.URL, nil
}

// Title returns the current document title.
func (s *Surface) Title(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("surface: page info: %w", err)
	}
	return info.Title, nil
}

// Eval runs a JS function in the page and returns its result.
func (s *Surface) Eval(ctx context.Context, js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	res, err := s.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("surface: eval: %w", err)
	}
	return res, nil
}

// HTML returns the serialized outer HTML of the document.
func (s *Surface) HTML(ctx context.Context) (string, error) {
	res, err := s.Eval(ctx, `() => document.documentElement.outerHTML`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Text returns the visible text content of the document body.
func (s *Surface) Text(ctx context.Context) (string, error) {
	res, err := s.Eval(ctx, `() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Scroll scrolls the document by the given deltas, or an element when
// selector is non-empty.
func (s *Surface) Scroll(ctx context.Context, selector string, dx, dy float64) error {
	if selector != "" {
		_, err := s.Eval(ctx, `(sel, dx, dy) => {
			const el = document.querySelector(sel);
			if (!el) throw new Error("no element: " + sel);
			el.scrollBy(dx, dy);
		}`, selector, dx, dy)
		return err
	}
	_, err := s.Eval(ctx, `(dx, dy) => window.scrollBy(dx, dy)`, dx, dy)
	return err
}

// Storage reads or writes web storage. kind is "local" or "session";
// a nil value pointer reads, otherwise writes. An empty key with a read
// returns all entries.
func (s *Surface) Storage(ctx context.Context, kind, key string, value *string) (map[string]string, error) {
	store := "localStorage"
	if kind == "session" {
		store = "sessionStorage"
	}
	if value != nil {
		_, err := s.Eval(ctx, fmt.Sprintf(`(k, v) => %s.setItem(k, v)`, store), key, *value)
		return nil, err
	}
	if key != "" {
		res, err := s.Eval(ctx, fmt.Sprintf(`(k) => %s.getItem(k)`, store), key)
		if err != nil {
			return nil, err
		}
		if res.Value.Nil() {
			return map[string]string{}, nil
		}
		return map[string]string{key: res.Value.Str()}, nil
	}
	res, err := s.Eval(ctx, fmt.Sprintf(`() => {
		const out = {};
		for (let i = 0; i < %s.length; i++) {
			const k = %s.key(i);
			out[k] = %s.getItem(k);
		}
		return out;
	}`, store, store, store))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for k, v := range res.Value.Map() {
		out[k] = v.Str()
	}
	return out, nil
}

// PendingRequests returns the number of in-flight network requests, the
// signal the networkidle wait polls.
func (s *Surface) PendingRequests() int {
	return s.pending.count()
}

// Close closes the page.
func (s *Surface) Close() error {
	if s.page != nil {
		return s.page.Close()
	}
	return nil
}

// pendingCounter tracks in-flight requests from CDP network events.
type pendingCounter struct {
	mu       sync.Mutex
	inflight map[proto.NetworkRequestID]struct{}
}

func newPendingCounter() *pendingCounter {
	return &pendingCounter{inflight: make(map[proto.NetworkRequestID]struct{})}
}

func (p *pendingCounter) attach(page *rod.Page) {
	go page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			p.mu.Lock()
			p.inflight[e.RequestID] = struct{}{}
			p.mu.Unlock()
		},
		func(e *proto.NetworkLoadingFinished) {
			p.mu.Lock()
			delete(p.inflight, e.RequestID)
			p.mu.Unlock()
		},
		func(e *proto.NetworkLoadingFailed) {
			p.mu.Lock()
			delete(p.inflight, e.RequestID)
			p.mu.Unlock()
		},
	)()
}

func (p *pendingCounter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}
