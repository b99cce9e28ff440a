package refs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/lumenhq/surfdeck/protocol"
	"github.com/lumenhq/surfdeck/surface"
)

// walkerFixture nests the interactive elements inside wrapper divs so the
// flattening behaviour is observable: each wrapper chain holds exactly one
// element worth a line.
const walkerFixture = `<!DOCTYPE html>
<html><head><title>walker fixture</title></head><body>
<div class="wrap"><div class="inner"><button id="save">Save</button></div></div>
<div class="wrap"><a id="docs" href="/docs">Docs</a></div>
<input id="name" placeholder="Name">
<span>decorative text</span>
</body></html>`

// newBrowserSession opens a real page over the fixture. Hosts without a
// Chrome binary skip, as does -short.
func newBrowserSession(t *testing.T) (*Session, *surface.Surface) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no chrome binary on this host")
	}

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := surface.NewManager(surface.ManagerConfig{Headless: true, Logger: log})
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("manager start: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	sf, err := mgr.OpenSurface(ctx)
	if err != nil {
		t.Fatalf("open surface: %v", err)
	}
	t.Cleanup(func() { sf.Close() })

	if err := sf.Navigate(ctx, "data:text/html,"+url.PathEscape(walkerFixture)); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := sf.Page().WaitLoad(); err != nil {
		t.Fatalf("wait load: %v", err)
	}
	return NewSession(sf), sf
}

func TestSnapshot_InteractiveOnlyFlattensWrappers(t *testing.T) {
	s, _ := newBrowserSession(t)
	ctx := context.Background()

	snap, err := s.Snapshot(ctx, SnapshotOptions{InteractiveOnly: true})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// The wrapper divs and the span emit no lines; only the button, the
	// link and the input survive, in document order.
	if len(snap.Lines) != 3 {
		t.Fatalf("lines = %d (%q), want 3", len(snap.Lines), snap.Text)
	}
	wantRoles := []string{"button", "link", "textbox"}
	for i, l := range snap.Lines {
		if l.Role != wantRoles[i] {
			t.Errorf("line %d role = %q, want %q", i, l.Role, wantRoles[i])
		}
		if l.Tag == "div" || l.Tag == "span" {
			t.Errorf("line %d: wrapper tag %q leaked into the snapshot", i, l.Tag)
		}
	}
	if snap.Lines[0].Ref != "@e1" || snap.Lines[2].Ref != "@e3" {
		t.Errorf("refs not minted in walk order: %+v", snap.Lines)
	}
	if snap.Truncated {
		t.Error("three elements under no cap must not truncate")
	}
}

func TestSnapshot_MaxElementsTruncates(t *testing.T) {
	s, _ := newBrowserSession(t)
	ctx := context.Background()

	snap, err := s.Snapshot(ctx, SnapshotOptions{InteractiveOnly: true, MaxElements: 2})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Lines) != 2 {
		t.Fatalf("lines = %d, want the cap of 2", len(snap.Lines))
	}
	if !snap.Truncated {
		t.Error("hitting the cap must set truncated")
	}
	if !s.Known("@e2") || s.Known("@e3") {
		t.Error("table must hold exactly the emitted refs")
	}
}

func TestResolve_StaleRefAfterSecondSnapshot(t *testing.T) {
	s, _ := newBrowserSession(t)
	ctx := context.Background()

	// A full walk emits the wrapper divs too, minting refs past @e3.
	first, err := s.Snapshot(ctx, SnapshotOptions{InteractiveOnly: false})
	if err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if len(first.Lines) < 4 {
		t.Fatalf("full walk emitted only %d lines", len(first.Lines))
	}
	lastRef := first.Lines[len(first.Lines)-1].Ref

	el, err := s.Resolve(ctx, first.Lines[0].Ref)
	if err != nil {
		t.Fatalf("resolve live ref: %v", err)
	}
	if el == nil {
		t.Fatal("resolved element is nil")
	}

	second, err := s.Snapshot(ctx, SnapshotOptions{InteractiveOnly: true})
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if len(second.Lines) >= len(first.Lines) {
		t.Fatalf("interactive-only walk should emit fewer lines: %d vs %d",
			len(second.Lines), len(first.Lines))
	}

	// The second walk replaced the generation; the old high ref is gone.
	var notFound *protocol.ErrElementNotFound
	if _, err := s.Resolve(ctx, lastRef); !errors.As(err, &notFound) {
		t.Fatalf("resolve %s after re-snapshot: err = %v, want element not found", lastRef, err)
	}

	s.Invalidate()
	if _, err := s.Resolve(ctx, second.Lines[0].Ref); !errors.As(err, &notFound) {
		t.Fatalf("resolve after invalidate: err = %v, want element not found", err)
	}
}
