package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumenhq/surfdeck/idgen"
	"github.com/lumenhq/surfdeck/kit"
	"github.com/lumenhq/surfdeck/protocol"
	"github.com/lumenhq/surfdeck/shield"
)

var opIDs = idgen.Prefixed("op_", idgen.Default)

// newRouter builds the HTTP API: session lifecycle, operation dispatch, and
// the visualization websocket.
func newRouter(hub *sessionHub, authTokenHash string, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(4<<20, "/health") {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(bearerAuth(authTokenHash, log))

		pr.Post("/sessions", func(w http.ResponseWriter, r *http.Request) {
			s, err := hub.Create(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusCreated, s)
		})

		pr.Delete("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := hub.Remove(chi.URLParam(r, "id")); err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
		})

		pr.Post("/sessions/{id}/op", opHandler(hub))
		pr.Get("/sessions/{id}/viz", vizHandler(hub, log))
	})

	return r
}

// opHandler decodes one Operation and dispatches it. The Result is always
// 200; protocol failures travel in the body, not as HTTP status codes.
func opHandler(hub *sessionHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := hub.Get(chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}

		var op protocol.Operation
		if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if op.ID == "" {
			op.ID = opIDs()
		}

		ctx := kit.WithSessionID(r.Context(), sess.ID)
		res := sess.disp.Dispatch(ctx, op)
		writeJSON(w, http.StatusOK, res)
	}
}

// bearerAuth compares the Authorization bearer token against a bcrypt hash.
// An empty hash disables authentication.
func bearerAuth(hash string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
				log.Warn("rejected request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
