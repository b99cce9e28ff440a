// Package download fetches batches of page resources through the page's own
// network context, so cookies and session state apply, with a bounded worker
// pool and per-item retries. The batch itself never fails: every item yields
// an outcome and the caller reads the aggregate summary.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	defaultConcurrent = 3
	defaultTimeout    = 30 * time.Second
)

// Item is one download request. Exactly one of Ref, Selector or URL names
// the source; FilePath is where the controller should persist the payload;
// Attribute optionally overrides the per-tag URL resolution.
type Item struct {
	Ref       string `json:"ref,omitempty"`
	Selector  string `json:"selector,omitempty"`
	URL       string `json:"url,omitempty"`
	FilePath  string `json:"filePath"`
	Attribute string `json:"attribute,omitempty"`
}

// target returns the element target, empty when the item carries a URL.
func (i Item) target() string {
	if i.Ref != "" {
		return i.Ref
	}
	return i.Selector
}

// Options tunes a batch run.
type Options struct {
	// Retry is the number of extra attempts after a failed fetch. Attempts
	// follow each other immediately; there is no inter-attempt backoff.
	Retry int
	// Timeout bounds each attempt. Zero means 30s.
	Timeout time.Duration
	// ContinueOnError keeps the batch going past failures. When false, the
	// first failure stops queued items; running workers finish and report.
	ContinueOnError bool
	// Concurrent is the worker pool size. Zero means 3.
	Concurrent int
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Concurrent <= 0 {
		o.Concurrent = defaultConcurrent
	}
	if o.Retry < 0 {
		o.Retry = 0
	}
}

// Outcome statuses. An item is skipped, never failed, when the batch shed
// it before its fetch ran: cancellation, or an earlier failure with
// ContinueOnError off.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Outcome is the per-item verdict.
type Outcome struct {
	FilePath string `json:"filePath"`
	URL      string `json:"url,omitempty"`
	Status   string `json:"status"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	Error    string `json:"error,omitempty"`
	Retries  int    `json:"retries"`
}

// Summary aggregates a batch. Failed counts real fetch and persist
// failures; items the batch never attempted land in Skipped.
type Summary struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	TotalSize  int64         `json:"totalSize"`
	Duration   time.Duration `json:"duration"`
	Outcomes   []Outcome     `json:"outcomes"`
}

// Fetcher is the page-level capability the engine runs on: resolving an
// element to its resource URL and fetching a URL inside the page's network
// context. The rod implementation lives in this package; tests fake it.
type Fetcher interface {
	ResolveURL(ctx context.Context, target, attribute string) (string, error)
	Fetch(ctx context.Context, url string) (data []byte, mime string, err error)
}

// Sink receives each successful payload; the controller persists it at the
// item's FilePath. A sink error fails the item.
type Sink func(item Item, data []byte, outcome Outcome) error

// Config carries the engine's collaborators.
type Config struct {
	Fetcher Fetcher
	Sink    Sink
	// Probe classifies terminal fetch failures out-of-band. Nil uses an
	// HTTP HEAD without the browser's cookies.
	Probe  func(ctx context.Context, url string) error
	Logger *slog.Logger
}

// Engine runs download batches. Safe for use by one dispatcher goroutine;
// the internal pool fans out per batch.
type Engine struct {
	fetch Fetcher
	sink  Sink
	probe func(ctx context.Context, url string) error
	log   *slog.Logger
}

// New builds an engine from cfg.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	probe := cfg.Probe
	if probe == nil {
		probe = headProbe
	}
	return &Engine{fetch: cfg.Fetcher, sink: cfg.Sink, probe: probe, log: log}
}

// Run executes the batch and always returns a summary; item failures are
// recorded, never escalated.
func (e *Engine) Run(ctx context.Context, items []Item, opts Options) *Summary {
	opts.applyDefaults()
	start := time.Now()

	outcomes := make([]Outcome, len(items))
	sem := semaphore.NewWeighted(int64(opts.Concurrent))
	var stop atomic.Bool
	var wg sync.WaitGroup

	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = Outcome{FilePath: item.FilePath, Status: StatusSkipped, Error: "batch canceled"}
			continue
		}
		if stop.Load() {
			sem.Release(1)
			outcomes[i] = Outcome{FilePath: item.FilePath, Status: StatusSkipped, Error: "batch stopped after earlier failure"}
			continue
		}
		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = e.runItem(ctx, item, opts)
			if outcomes[i].Status == StatusFailed && !opts.ContinueOnError {
				stop.Store(true)
			}
		}(i, item)
	}
	wg.Wait()

	sum := &Summary{Total: len(items), Duration: time.Since(start), Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			sum.Successful++
			sum.TotalSize += o.Size
		case StatusSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	return sum
}

// runItem resolves the item's URL, fetches with retries and hands the
// payload to the sink.
func (e *Engine) runItem(ctx context.Context, item Item, opts Options) Outcome {
	out := Outcome{FilePath: item.FilePath, Status: StatusFailed}

	rawURL := item.URL
	if rawURL == "" {
		target := item.target()
		if target == "" {
			out.Error = "item names no ref, selector or url"
			return out
		}
		resolved, err := e.fetch.ResolveURL(ctx, target, item.Attribute)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		if resolved == "" {
			out.Error = fmt.Sprintf("no downloadable URL on %s", target)
			return out
		}
		rawURL = resolved
	}
	out.URL = rawURL

	if err := ValidateURL(rawURL); err != nil {
		out.Error = err.Error()
		return out
	}

	if strings.HasPrefix(rawURL, "data:") {
		data, mime, err := DecodeDataURL(rawURL)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		return e.deliver(item, data, mime, out)
	}

	var data []byte
	var mime string
	var err error
	for attempt := 0; attempt <= opts.Retry; attempt++ {
		if attempt > 0 {
			out.Retries = attempt
		}
		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		data, mime, err = e.fetch.Fetch(attemptCtx, rawURL)
		cancel()
		if err == nil {
			return e.deliver(item, data, mime, out)
		}
		if ctx.Err() != nil {
			break
		}
	}
	out.Error = e.classify(ctx, rawURL, err)
	return out
}

// deliver inspects the payload and pushes it through the sink.
func (e *Engine) deliver(item Item, data []byte, mime string, out Outcome) Outcome {
	out.Size = int64(len(data))
	out.MimeType, out.Pages = inspect(data, mime)
	if e.sink != nil {
		if err := e.sink(item, data, out); err != nil {
			out.Status = StatusFailed
			out.Error = fmt.Sprintf("persist: %v", err)
			return out
		}
	}
	out.Status = StatusSuccess
	out.Error = ""
	return out
}

// classify disambiguates a terminal in-page fetch failure. The in-page
// fetch cannot tell a cross-origin block from a dead host; a cookie-less
// probe from outside the browser can: if the probe reaches the server, the
// browser-side failure was a policy block.
func (e *Engine) classify(ctx context.Context, url string, err error) string {
	if err == nil {
		return "fetch failed"
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if perr := e.probe(probeCtx, url); perr == nil {
		return fmt.Sprintf("blocked by cross-origin policy (resource reachable out of the page context): %v", err)
	}
	return fmt.Sprintf("network failure: %v", err)
}

// headProbe is the default out-of-band reachability check.
func headProbe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode >= 500 {
		return fmt.Errorf("download: probe status %d", res.StatusCode)
	}
	return nil
}
