package netcap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"
)

const bindingName = "__sdNetReport"

// PagePrimitives wraps a live page's fetch and XHR entry points. Install
// exposes the report binding and injects the wrapper both into the current
// document and into every new one, so captures continue across navigation.
type PagePrimitives struct {
	page *rod.Page
	log  *slog.Logger

	mu         sync.Mutex
	stopExpose func() error
	removeInit func() error
}

// NewPagePrimitives binds to a page. log may be nil.
func NewPagePrimitives(page *rod.Page, log *slog.Logger) *PagePrimitives {
	if log == nil {
		log = slog.Default()
	}
	return &PagePrimitives{page: page, log: log}
}

// Install wires the reporting binding and the wrappers.
func (p *PagePrimitives) Install(hook Hook) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stop, err := p.page.Expose(bindingName, func(j gson.JSON) (any, error) {
		c, err := decodeReport(j)
		if err != nil {
			p.log.Warn("undecodable network report", "error", err)
			return nil, nil
		}
		hook(c)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("netcap: expose binding: %w", err)
	}

	remove, err := p.page.EvalOnNewDocument(`(` + wrapJS + `)();`)
	if err != nil {
		_ = stop()
		return fmt.Errorf("netcap: init script: %w", err)
	}
	if _, err := p.page.Eval(wrapJS); err != nil {
		_ = remove()
		_ = stop()
		return fmt.Errorf("netcap: wrap current document: %w", err)
	}

	p.stopExpose = stop
	p.removeInit = remove
	return nil
}

// Restore unwraps the live document and removes the init script and the
// binding, leaving the page as found.
func (p *PagePrimitives) Restore() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.page.Eval(unwrapJS); err != nil {
		return fmt.Errorf("netcap: unwrap document: %w", err)
	}
	if p.removeInit != nil {
		if err := p.removeInit(); err != nil {
			return fmt.Errorf("netcap: remove init script: %w", err)
		}
		p.removeInit = nil
	}
	if p.stopExpose != nil {
		if err := p.stopExpose(); err != nil {
			return fmt.Errorf("netcap: remove binding: %w", err)
		}
		p.stopExpose = nil
	}
	return nil
}

type wireCapture struct {
	Method       string `json:"method"`
	URL          string `json:"url"`
	Status       int    `json:"status"`
	RequestBody  string `json:"requestBody"`
	ResponseBody string `json:"responseBody"`
	ContentType  string `json:"contentType"`
	Start        int64  `json:"start"` // ms since epoch
	Duration     int64  `json:"duration"`
	Size         int    `json:"size"`
	Error        string `json:"error"`
}

// decodeReport accepts the payload either as a JSON string (the binding's
// native form) or as an already-parsed object.
func decodeReport(j gson.JSON) (Capture, error) {
	raw := j.Str()
	if raw == "" {
		raw = j.JSON("", "")
	}
	var w wireCapture
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Capture{}, err
	}
	return Capture{
		Method:       w.Method,
		URL:          w.URL,
		Status:       w.Status,
		RequestBody:  w.RequestBody,
		ResponseBody: w.ResponseBody,
		ContentType:  w.ContentType,
		StartTime:    time.UnixMilli(w.Start),
		Duration:     time.Duration(w.Duration) * time.Millisecond,
		Size:         w.Size,
		Error:        w.Error,
	}, nil
}
