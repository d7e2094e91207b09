// internal/recorder/recorder.go
// Package recorder persists snapshots and diffs to a session-scoped SQLite
// file for offline debugging and replay. It is strictly write-only from the
// engine's perspective.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/axpilot/axpilot/api/schemas"

	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id TEXT NOT NULL,
	trace_id TEXT NOT NULL,
	page_url TEXT,
	epoch INTEGER NOT NULL,
	element_count INTEGER NOT NULL,
	generated_at INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_trace ON snapshots(trace_id);

CREATE TABLE IF NOT EXISTS diffs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT NOT NULL,
	added INTEGER NOT NULL,
	removed INTEGER NOT NULL,
	changed INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_diffs_trace ON diffs(trace_id);
`

// SQLiteRecorder writes snapshots and diffs to a SQLite file.
type SQLiteRecorder struct {
	db     *sql.DB
	logger *zap.Logger
	once   sync.Once
}

var _ schemas.Recorder = (*SQLiteRecorder)(nil)

// Open creates or opens the recording database at path and applies the
// schema.
func Open(path string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening recording database %q: %w", path, err)
	}
	// A single writer keeps SQLite happy without WAL tuning.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying recording schema: %w", err)
	}
	return &SQLiteRecorder{db: db, logger: logger.Named("recorder")}, nil
}

// RecordSnapshot appends one snapshot row.
func (r *SQLiteRecorder) RecordSnapshot(ctx context.Context, snap schemas.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", snap.ID, err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (snapshot_id, trace_id, page_url, epoch, element_count, generated_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.TraceID, snap.PageURL, snap.Epoch, len(snap.Elements), snap.GeneratedAt, string(payload))
	if err != nil {
		return fmt.Errorf("recording snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// RecordDiff appends one diff row.
func (r *SQLiteRecorder) RecordDiff(ctx context.Context, d schemas.Diff) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding diff: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO diffs (trace_id, added, removed, changed, recorded_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.TraceID, d.Counts.Added, d.Counts.Removed, d.Counts.Changed,
		time.Now().UnixMilli(), string(payload))
	if err != nil {
		return fmt.Errorf("recording diff: %w", err)
	}
	return nil
}

// Close closes the underlying database. Safe to call more than once.
func (r *SQLiteRecorder) Close() error {
	var err error
	r.once.Do(func() {
		err = r.db.Close()
	})
	return err
}

// Nop is a Recorder that drops everything. Used when recording is disabled.
type Nop struct{}

var _ schemas.Recorder = Nop{}

func (Nop) RecordSnapshot(ctx context.Context, snap schemas.Snapshot) error { return nil }
func (Nop) RecordDiff(ctx context.Context, d schemas.Diff) error            { return nil }
func (Nop) Close() error                                                    { return nil }
