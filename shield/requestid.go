package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lumenhq/surfdeck/idgen"
	"github.com/lumenhq/surfdeck/kit"
)

var requestIDs = idgen.Prefixed("req_", idgen.Default)

// RequestID mints an ID for each request and injects it into the context,
// the response headers, and a per-request structured logger stored under
// LoggerKey.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestIDs()

		ctx := kit.WithRequestID(r.Context(), id)
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		w.Header().Set("X-Request-ID", id)

		logger := slog.Default().With(
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
