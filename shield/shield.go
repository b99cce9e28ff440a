// Package shield provides the HTTP hardening middleware for the surfdeck
// API: security headers, request body limits, per-request IDs and logging,
// and per-IP rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(64*1024, "/health") {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// Stack returns the standard middleware stack: RequestID → SecurityHeaders →
// MaxBody → RateLimiter. excludePrefixes bypass rate limiting.
func Stack(maxBody int64, excludePrefixes ...string) []func(http.Handler) http.Handler {
	rl := NewRateLimiter(DefaultRateLimit(), excludePrefixes...)
	return []func(http.Handler) http.Handler{
		RequestID,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		rl.Middleware,
	}
}

// GetLogger retrieves the per-request logger from the context. Returns
// slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
