// Command surfdeck runs one browser execution surface behind a typed
// operation protocol, reachable over HTTP or as an MCP stdio server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/lumenhq/surfdeck/dbopen"
	"github.com/lumenhq/surfdeck/internal/config"
	"github.com/lumenhq/surfdeck/oplog"
	"github.com/lumenhq/surfdeck/surface"
)

func main() {
	configPath := flag.String("config", os.Getenv("SURFDECK_CONFIG"), "path to YAML config (optional)")
	mcpMode := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	// Logs go to stderr so MCP stdio framing on stdout stays clean.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.Storage.OplogDB, dbopen.WithMkdirAll(), dbopen.WithSchema(oplog.Schema))
	if err != nil {
		logger.Error("oplog db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	ops := oplog.New(db)

	// Retention sweeper.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := ops.Cleanup(ctx, cfg.Storage.OplogRetention); err != nil {
					logger.Warn("oplog cleanup", "error", err)
				} else if n > 0 {
					logger.Debug("oplog cleanup", "removed", n)
				}
			}
		}
	}()

	mgr := surface.NewManager(surface.ManagerConfig{
		RemoteURL:        cfg.Browser.Remote,
		Headless:         cfg.Browser.Headless,
		Stealth:          cfg.Browser.Stealth,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})
	if err := mgr.Start(ctx); err != nil {
		logger.Error("browser start", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	hub := newHub(mgr, cfg, ops, logger)
	defer hub.CloseAll()

	if *mcpMode || os.Getenv("MCP_TRANSPORT") == "stdio" {
		runMCP(ctx, hub, logger)
		return
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(hub, cfg.Server.AuthTokenHash, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("surfdeck listening", "addr", cfg.Server.Addr, "auth", cfg.Server.AuthTokenHash != "")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", "error", err)
		os.Exit(1)
	}
}

// runMCP opens a single session and serves it over stdio until the context
// ends.
func runMCP(ctx context.Context, hub *sessionHub, logger *slog.Logger) {
	sess, err := hub.Create(ctx)
	if err != nil {
		logger.Error("open session", "error", err)
		os.Exit(1)
	}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "surfdeck",
		Version: "1.0.0",
	}, nil)
	registerMCP(srv, sess)

	logger.Info("MCP stdio server ready", "session", sess.ID)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("mcp server", "error", err)
		os.Exit(1)
	}
}
