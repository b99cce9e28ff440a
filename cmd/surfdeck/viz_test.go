package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/lumenhq/surfdeck/dispatch"
	"github.com/lumenhq/surfdeck/surface"
)

// vizTestSession builds a hub holding one session with just the pieces the
// viz handler touches: a bare surface and a stream.
func vizTestSession(t *testing.T) (*sessionHub, *session) {
	t.Helper()
	hub := &sessionHub{log: testLogger(), sessions: make(map[string]*session)}
	sess := &session{ID: "sess_viz", sf: &surface.Surface{}, stream: dispatch.NewStream(4)}
	hub.sessions[sess.ID] = sess
	return hub, sess
}

func TestApplyVizInbound_RenderedSizeFeedsTransform(t *testing.T) {
	sess := &session{sf: &surface.Surface{}}

	applyVizInbound(sess, vizInbound{Type: "renderedSize", Width: 640, Height: 400}, testLogger())

	tr := sess.sf.Transform()
	if tr.Rendered != (surface.Size{Width: 640, Height: 400}) {
		t.Fatalf("rendered = %+v, want 640x400", tr.Rendered)
	}
	// Default viewport is 1280x800, so the reported size halves both axes.
	if tr.ScaleX() != 0.5 || tr.ScaleY() != 0.5 {
		t.Errorf("scale = %v/%v, want 0.5/0.5", tr.ScaleX(), tr.ScaleY())
	}
	pos := tr.Apply(100, 80)
	if pos.X != 50 || pos.Y != 40 {
		t.Errorf("Apply(100,80) = %+v, want 50,40", pos)
	}
}

func TestApplyVizInbound_RejectsBadSizes(t *testing.T) {
	sess := &session{sf: &surface.Surface{}}

	applyVizInbound(sess, vizInbound{Type: "renderedSize", Width: 0, Height: 400}, testLogger())
	applyVizInbound(sess, vizInbound{Type: "renderedSize", Width: 640, Height: -1}, testLogger())
	applyVizInbound(sess, vizInbound{Type: "bogus", Width: 640, Height: 400}, testLogger())

	if tr := sess.sf.Transform(); !tr.Identity() {
		t.Errorf("transform diverged from identity: %+v", tr)
	}
}

func TestVizHandler_RenderedSizeOverWebsocket(t *testing.T) {
	hub, sess := vizTestSession(t)
	r := chi.NewRouter()
	r.Get("/sessions/{id}/viz", vizHandler(hub, testLogger()))
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/sess_viz/viz"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	frame := `{"type":"renderedSize","width":390,"height":844}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := surface.Size{Width: 390, Height: 844}
	deadline := time.Now().Add(3 * time.Second)
	for sess.sf.Transform().Rendered != want {
		if time.Now().After(deadline) {
			t.Fatalf("rendered size never reached the surface: %+v", sess.sf.Transform())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The forward path still works after inbound traffic.
	sess.stream.SendCursor(surface.CursorPosition{X: 12, Y: 34})
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env vizEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	if env.Type != "cursor" || env.Cursor == nil || env.Cursor.X != 12 {
		t.Errorf("frame = %+v, want cursor at x=12", env)
	}
}
