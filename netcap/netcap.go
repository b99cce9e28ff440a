// Package netcap records the page's fetch and XHR traffic. The recorder
// owns a Go-side ring buffer, so captures survive navigation; the page-side
// wrapping is delegated to a Primitives implementation and restored exactly
// on stop.
package netcap

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lumenhq/surfdeck/idgen"
)

const (
	defaultMaxRequests = 100
	defaultBodyLimit   = 2048
)

// Capture is one recorded request/response pair.
type Capture struct {
	ID           string        `json:"id"`
	Method       string        `json:"method"`
	URL          string        `json:"url"`
	Status       int           `json:"status"`
	RequestBody  string        `json:"requestBody,omitempty"`
	ResponseBody string        `json:"responseBody,omitempty"`
	ContentType  string        `json:"contentType,omitempty"`
	StartTime    time.Time     `json:"startTime"`
	Duration     time.Duration `json:"duration"`
	Size         int           `json:"size"`
	Error        string        `json:"error,omitempty"`
}

// Hook receives captures from the page side.
type Hook func(Capture)

// Primitives is the page-level capability the recorder decorates: install
// wraps the page's network entry points and routes reports into the hook,
// restore puts the originals back. Install then Restore must leave the page
// exactly as found.
type Primitives interface {
	Install(hook Hook) error
	Restore() error
}

// Config tunes the recorder.
type Config struct {
	// MaxRequests bounds the ring buffer; oldest captures are evicted.
	// Zero means 100.
	MaxRequests int
	// BodyLimit is the per-body byte cap. Zero means 2048.
	BodyLimit int
	// IDs mints capture IDs; nil uses the package default.
	IDs idgen.Generator
}

func (c *Config) applyDefaults() {
	if c.MaxRequests <= 0 {
		c.MaxRequests = defaultMaxRequests
	}
	if c.BodyLimit <= 0 {
		c.BodyLimit = defaultBodyLimit
	}
	if c.IDs == nil {
		c.IDs = idgen.Prefixed("net_", idgen.Default)
	}
}

// Recorder buffers captures while active. Start and Stop are idempotent;
// the buffer clears on Stop or explicit Clear, never on navigation.
type Recorder struct {
	prim Primitives
	cfg  Config

	mu     sync.Mutex
	active bool
	buf    []Capture
}

// NewRecorder builds an inactive recorder over the given primitives.
func NewRecorder(prim Primitives, cfg Config) *Recorder {
	cfg.applyDefaults()
	return &Recorder{prim: prim, cfg: cfg}
}

// Start installs the page wrapping and begins buffering. Starting an
// active recorder is a no-op.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = true
	r.mu.Unlock()

	if err := r.prim.Install(r.record); err != nil {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		return fmt.Errorf("netcap: install: %w", err)
	}
	return nil
}

// Stop restores the page and drops the buffer. Stopping an inactive
// recorder is a no-op.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = false
	r.buf = nil
	r.mu.Unlock()

	if err := r.prim.Restore(); err != nil {
		return fmt.Errorf("netcap: restore: %w", err)
	}
	return nil
}

// Active reports whether the recorder is capturing.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Clear drops buffered captures without touching the page wrapping.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.buf = nil
	r.mu.Unlock()
}

// record is the hook handed to the primitives. Late reports arriving after
// Stop are dropped.
func (r *Recorder) record(c Capture) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}

	c.ID = r.cfg.IDs()
	c.RequestBody = truncate(c.RequestBody, r.cfg.BodyLimit)
	c.ResponseBody = truncate(c.ResponseBody, r.cfg.BodyLimit)
	if c.StartTime.IsZero() {
		c.StartTime = time.Now()
	}

	r.buf = append(r.buf, c)
	if len(r.buf) > r.cfg.MaxRequests {
		r.buf = r.buf[len(r.buf)-r.cfg.MaxRequests:]
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... (truncated)"
}

// Filter narrows Query results. Patterns are case-insensitive substrings.
type Filter struct {
	URLPattern string
	Method     string
	ErrorsOnly bool
	Offset     int
	Limit      int
}

func (f Filter) match(c Capture) bool {
	if f.URLPattern != "" && !strings.Contains(strings.ToLower(c.URL), strings.ToLower(f.URLPattern)) {
		return false
	}
	if f.Method != "" && !strings.EqualFold(f.Method, c.Method) {
		return false
	}
	if f.ErrorsOnly && c.Error == "" && c.Status < 400 {
		return false
	}
	return true
}

// Query returns matching captures oldest first, sliced by the filter's
// offset and limit, plus the total match count before slicing.
func (r *Recorder) Query(f Filter) ([]Capture, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Capture, 0, len(r.buf))
	for _, c := range r.buf {
		if f.match(c) {
			out = append(out, c)
		}
	}
	total := len(out)
	if f.Offset >= len(out) {
		return []Capture{}, total
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total
}
