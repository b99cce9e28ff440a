package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/lumenhq/surfdeck/dispatch"
	"github.com/lumenhq/surfdeck/surface"
)

// vizEnvelope is one outbound websocket frame: exactly one of the payload
// fields is set, discriminated by Type.
type vizEnvelope struct {
	Type   string                  `json:"type"` // cursor | action | state
	Cursor *surface.CursorPosition `json:"cursor,omitempty"`
	Action *dispatch.ActionSummary `json:"action,omitempty"`
	State  *dispatch.State         `json:"state,omitempty"`
}

// vizInbound is a frame from the host UI. renderedSize reports the size at
// which the host renders the surface, which feeds the cursor coordinate
// transform under device emulation.
type vizInbound struct {
	Type   string `json:"type"` // renderedSize
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// vizHandler upgrades to a websocket and forwards the session's
// visualization stream until the client goes away. Frames the client cannot
// keep up with are dropped upstream by the stream's bounded channels.
// Inbound frames update per-session state; see vizInbound.
func vizHandler(hub *sessionHub, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := hub.Get(chi.URLParam(r, "id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			log.Warn("viz accept failed", "error", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go vizReadLoop(ctx, cancel, conn, sess, log)

		stream := sess.stream
		for {
			var env vizEnvelope
			select {
			case <-ctx.Done():
				return
			case p := <-stream.Cursor:
				env = vizEnvelope{Type: "cursor", Cursor: &p}
			case a := <-stream.Actions:
				env = vizEnvelope{Type: "action", Action: &a}
			case st := <-stream.States:
				env = vizEnvelope{Type: "state", State: &st}
			}

			data, err := json.Marshal(env)
			if err != nil {
				log.Warn("viz marshal failed", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

// vizReadLoop drains inbound frames. A read error means the client is gone,
// which cancels the writer too.
func vizReadLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *session, log *slog.Logger) {
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var in vizInbound
		if err := json.Unmarshal(data, &in); err != nil {
			log.Warn("viz inbound frame undecodable", "error", err)
			continue
		}
		applyVizInbound(sess, in, log)
	}
}

// applyVizInbound routes one decoded inbound frame to session state.
func applyVizInbound(sess *session, in vizInbound, log *slog.Logger) {
	switch in.Type {
	case "renderedSize":
		if in.Width <= 0 || in.Height <= 0 {
			log.Warn("viz renderedSize out of range", "width", in.Width, "height", in.Height)
			return
		}
		sess.sf.SetRenderedSize(surface.Size{Width: in.Width, Height: in.Height})
	default:
		log.Warn("viz inbound frame of unknown type", "type", in.Type)
	}
}
