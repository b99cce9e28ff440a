package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lumenhq/surfdeck/conlog"
	"github.com/lumenhq/surfdeck/dispatch"
	"github.com/lumenhq/surfdeck/download"
	"github.com/lumenhq/surfdeck/idgen"
	"github.com/lumenhq/surfdeck/internal/config"
	"github.com/lumenhq/surfdeck/navwait"
	"github.com/lumenhq/surfdeck/netcap"
	"github.com/lumenhq/surfdeck/oplog"
	"github.com/lumenhq/surfdeck/refs"
	"github.com/lumenhq/surfdeck/simulate"
	"github.com/lumenhq/surfdeck/surface"
)

// session binds one execution surface to its dispatcher and capture state.
type session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	sf     *surface.Surface
	disp   *dispatch.Dispatcher
	stream *dispatch.Stream
	net    *netcap.Recorder

	stopConsole func()
}

var sessionIDs = idgen.Prefixed("sess_", idgen.Default)

func newSession(ctx context.Context, mgr *surface.Manager, cfg *config.Config, ops *oplog.Logger, log *slog.Logger) (*session, error) {
	sf, err := mgr.OpenSurface(ctx)
	if err != nil {
		return nil, err
	}

	id := sessionIDs()
	log = log.With("session", id)

	refSession := refs.NewSession(sf)
	stream := dispatch.NewStream(cfg.Session.VizBuffer)

	sim := simulate.New(simulate.Config{
		Surface:  sf,
		Resolver: refSession,
		Cursor:   func(p surface.CursorPosition) { stream.SendCursor(p) },
		Settle:   cfg.Session.Settle,
		Logger:   log,
	})

	console := conlog.NewBuffer(idgen.Prefixed("log_", idgen.Default))
	stopConsole := conlog.Attach(sf.Page(), console)

	recorder := netcap.NewRecorder(netcap.NewPagePrimitives(sf.Page(), log), netcap.Config{})

	engine := download.New(download.Config{
		Fetcher: download.NewPageFetcher(sf, refSession),
		Sink:    fileSink(filepath.Join(cfg.Session.DownloadDir, id)),
		Logger:  log,
	})

	disp, err := dispatch.New(dispatch.Config{
		Surface:  sf,
		Refs:     refSession,
		Sim:      sim,
		Wait:     navwait.New(sf, log),
		Download: engine,
		Network:  recorder,
		Console:  console,
		Ops:      ops,
		Stream:   stream,
		Logger:   log,
	})
	if err != nil {
		stopConsole()
		sf.Close()
		return nil, err
	}

	return &session{
		ID:          id,
		CreatedAt:   time.Now(),
		sf:          sf,
		disp:        disp,
		stream:      stream,
		net:         recorder,
		stopConsole: stopConsole,
	}, nil
}

// Close releases the page and every subscription hanging off it.
func (s *session) Close() error {
	if s.net.Active() {
		s.net.Stop()
	}
	s.stopConsole()
	return s.sf.Close()
}

// fileSink persists downloaded payloads under dir, confining item paths so
// a crafted filePath cannot escape it.
func fileSink(dir string) download.Sink {
	return func(item download.Item, data []byte, _ download.Outcome) error {
		rel := filepath.Clean("/" + item.FilePath)
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	}
}

// sessionHub owns the live sessions for this process.
type sessionHub struct {
	mgr *surface.Manager
	cfg *config.Config
	ops *oplog.Logger
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func newHub(mgr *surface.Manager, cfg *config.Config, ops *oplog.Logger, log *slog.Logger) *sessionHub {
	return &sessionHub{
		mgr:      mgr,
		cfg:      cfg,
		ops:      ops,
		log:      log,
		sessions: make(map[string]*session),
	}
}

func (h *sessionHub) Create(ctx context.Context) (*session, error) {
	s, err := newSession(ctx, h.mgr, h.cfg, h.ops, h.log)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
	h.log.Info("session created", "session", s.ID)
	return s, nil
}

func (h *sessionHub) Get(id string) (*session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *sessionHub) Remove(id string) error {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	h.log.Info("session closed", "session", id)
	return s.Close()
}

func (h *sessionHub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]*session)
	h.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
