// Package sqlite provides a SQLite-backed implementation of
// journal.Recorder.
//
// WAL mode is enabled on Open so that readers never block writers:
// consumer callbacks append while an operator may be querying the
// journal for an order's transition history.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/journal"

	// Register the pure-Go SQLite driver; modernc.org/sqlite avoids CGO
	// so the services still build in slim containers.
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on Open. The table is append-only:
// each row is one applied status transition, never updated.
const schema = `
CREATE TABLE IF NOT EXISTS saga_journal (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id    TEXT NOT NULL,
    status      TEXT NOT NULL,
    source      TEXT NOT NULL DEFAULT '',
    trace_id    TEXT NOT NULL DEFAULT '',
    span_id     TEXT NOT NULL DEFAULT '',
    recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_journal_order_id ON saga_journal(order_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_saga_journal_trace_id ON saga_journal(trace_id);
`

// Repository is the SQLite implementation of journal.Recorder.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path and applies the
// schema. busy_timeout waits for locks instead of failing immediately.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply journal schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

// Record appends one transition. Safe to call concurrently.
func (r *Repository) Record(ctx context.Context, e *journal.Entry) error {
	const q = `
		INSERT INTO saga_journal (order_id, status, source, trace_id, span_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		e.OrderID, e.Status, e.Source, e.TraceID, e.SpanID,
		e.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: record transition for %q: %w", e.OrderID, err)
	}
	return nil
}

// History returns every transition applied to an order, oldest first.
func (r *Repository) History(ctx context.Context, orderID string) ([]journal.Entry, error) {
	const q = `
		SELECT order_id, status, source, trace_id, span_id, recorded_at
		FROM saga_journal
		WHERE order_id = ?
		ORDER BY recorded_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: journal history for %q: %w", orderID, err)
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		var recordedAt string
		if err := rows.Scan(&e.OrderID, &e.Status, &e.Source, &e.TraceID, &e.SpanID, &recordedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan journal entry: %w", err)
		}
		if e.RecordedAt, err = parseRFC3339(recordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// parseRFC3339 parses the timestamp strings stored in SQLite, which has
// no native datetime type.
func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
