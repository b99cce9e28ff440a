package oplog_test

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lumenhq/surfdeck/dbopen"
	"github.com/lumenhq/surfdeck/oplog"
)

func newLogger(t *testing.T) *oplog.Logger {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(oplog.Schema))
	return oplog.New(db)
}

func TestRecordAndRecent(t *testing.T) {
	l := newLogger(t)
	ctx := context.Background()

	l.Record(ctx, oplog.Entry{OpID: "1", Kind: "navigate", Success: true, Duration: 1200 * time.Millisecond})
	l.Record(ctx, oplog.Entry{OpID: "2", Kind: "click", Success: false, Error: "Element not found: @e9", Duration: 40 * time.Millisecond})

	got, err := l.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries: %d, want 2", len(got))
	}
	var byOp = map[string]oplog.Entry{}
	for _, e := range got {
		byOp[e.OpID] = e
	}
	nav := byOp["1"]
	if nav.Kind != "navigate" || !nav.Success || nav.Duration != 1200*time.Millisecond {
		t.Errorf("navigate entry: %+v", nav)
	}
	click := byOp["2"]
	if click.Success || click.Error != "Element not found: @e9" {
		t.Errorf("click entry: %+v", click)
	}
}

func TestRecent_FilterByKind(t *testing.T) {
	l := newLogger(t)
	ctx := context.Background()
	l.Record(ctx, oplog.Entry{OpID: "1", Kind: "navigate", Success: true})
	l.Record(ctx, oplog.Entry{OpID: "2", Kind: "click", Success: true})
	l.Record(ctx, oplog.Entry{OpID: "3", Kind: "click", Success: true})

	got, err := l.Recent(ctx, "click", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries: %d, want 2", len(got))
	}
	for _, e := range got {
		if e.Kind != "click" {
			t.Errorf("kind: %q", e.Kind)
		}
	}
}

func TestRecent_Limit(t *testing.T) {
	l := newLogger(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		l.Record(ctx, oplog.Entry{OpID: "x", Kind: "screenshot", Success: true})
	}
	got, err := l.Recent(ctx, "", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("entries: %d, want 3", len(got))
	}
}

func TestCleanup(t *testing.T) {
	l := newLogger(t)
	ctx := context.Background()

	l.Record(ctx, oplog.Entry{OpID: "old", Kind: "click", Success: true, At: time.Now().Add(-48 * time.Hour)})
	l.Record(ctx, oplog.Entry{OpID: "new", Kind: "click", Success: true})

	deleted, err := l.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted: %d, want 1", deleted)
	}
	got, _ := l.Recent(ctx, "", 10)
	if len(got) != 1 || got[0].OpID != "new" {
		t.Errorf("surviving entries: %+v", got)
	}
}

func TestCleanup_ZeroRetentionIsNoop(t *testing.T) {
	l := newLogger(t)
	ctx := context.Background()
	l.Record(ctx, oplog.Entry{OpID: "1", Kind: "click", Success: true, At: time.Now().Add(-time.Hour)})
	deleted, err := l.Cleanup(ctx, 0)
	if err != nil || deleted != 0 {
		t.Errorf("got (%d, %v), want (0, nil)", deleted, err)
	}
}
