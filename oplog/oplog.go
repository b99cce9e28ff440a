// Package oplog persists one row per dispatched operation to SQLite. The
// log is observational: write failures are logged and swallowed so a broken
// store never blocks the dispatcher.
package oplog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenhq/surfdeck/dbopen"
	"github.com/lumenhq/surfdeck/idgen"
)

// Schema creates the operation log table. Pass it to dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS operation_log (
	row_id      TEXT PRIMARY KEY,
	op_id       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operation_log_created ON operation_log(created_at);
CREATE INDEX IF NOT EXISTS idx_operation_log_kind ON operation_log(kind);
`

// Entry is one dispatched operation's record.
type Entry struct {
	OpID     string
	Kind     string
	Success  bool
	Error    string
	Duration time.Duration
	At       time.Time
}

// Logger writes operation records.
type Logger struct {
	db    *sql.DB
	newID idgen.Generator
	log   *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDGenerator sets a custom row ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Logger) { l.newID = gen }
}

// WithSlog sets the logger used to report write failures.
func WithSlog(log *slog.Logger) Option {
	return func(l *Logger) { l.log = log }
}

// New creates a logger over an already-opened database. The database must
// carry Schema.
func New(db *sql.DB, opts ...Option) *Logger {
	l := &Logger{
		db:    db,
		newID: idgen.Prefixed("op_", idgen.Default),
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record writes one entry. Errors are logged, never returned.
func (l *Logger) Record(ctx context.Context, e Entry) {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := dbopen.Exec(ctx, l.db, `
		INSERT INTO operation_log (
			row_id, op_id, kind, success, error, duration_ms, created_at
		) VALUES (?,?,?,?,?,?,?)`,
		l.newID(), e.OpID, e.Kind, e.Success, e.Error,
		e.Duration.Milliseconds(), at.Unix())
	if err != nil {
		l.log.Error("operation log write failed", "error", err, "kind", e.Kind, "op_id", e.OpID)
	}
}

// Recent returns the newest entries, newest first, optionally filtered by
// kind. limit <= 0 means 50.
func (l *Logger) Recent(ctx context.Context, kind string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT op_id, kind, success, error, duration_ms, created_at
		FROM operation_log`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, row_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("oplog: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var durationMS, createdAt int64
		if err := rows.Scan(&e.OpID, &e.Kind, &e.Success, &e.Error, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("oplog: scan: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.At = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than the retention window. Zero retention
// means no cleanup.
func (l *Logger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).Unix()
	res, err := dbopen.Exec(ctx, l.db, `DELETE FROM operation_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("oplog: cleanup: %w", err)
	}
	return res.RowsAffected()
}
