// Package history keeps a SQLite log of diagnostics runs so reports can show
// how pipeline quality moved since the previous run.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/riaworks/aios-core-sub000/internal/diagnostics"
)

// DefaultFile is the database file name under the synapse directory.
const DefaultFile = "diagnostics.db"

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Store is a diagnostics history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			seq                  INTEGER PRIMARY KEY AUTOINCREMENT,
			id                   TEXT NOT NULL UNIQUE,
			created_at           TEXT NOT NULL,
			activation_percent   REAL NOT NULL,
			activation_grade     TEXT NOT NULL,
			hook_percent         REAL NOT NULL,
			hook_grade           TEXT NOT NULL,
			consistency_passed   INTEGER NOT NULL,
			consistency_total    INTEGER NOT NULL,
			gap_count            INTEGER NOT NULL,
			pipeline_duration_ms REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`)
	return err
}

// Record appends a run.
func (s *Store) Record(ctx context.Context, snap diagnostics.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, activation_percent, activation_grade,
			hook_percent, hook_grade, consistency_passed, consistency_total,
			gap_count, pipeline_duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Timestamp.UTC().Format(time.RFC3339Nano),
		snap.ActivationPercent, snap.ActivationGrade,
		snap.HookPercent, snap.HookGrade,
		snap.ConsistencyPassed, snap.ConsistencyTotal,
		snap.GapCount, snap.PipelineDurationMs,
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", snap.ID, err)
	}
	return nil
}

// Latest returns the most recent run, or nil when there is none.
func (s *Store) Latest(ctx context.Context) (*diagnostics.Snapshot, error) {
	runs, err := s.Recent(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]diagnostics.Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, activation_percent, activation_grade,
			hook_percent, hook_grade, consistency_passed, consistency_total,
			gap_count, pipeline_duration_ms
		FROM runs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []diagnostics.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Count returns the number of recorded runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func scanSnapshot(rows *sql.Rows) (diagnostics.Snapshot, error) {
	var snap diagnostics.Snapshot
	var created string
	if err := rows.Scan(
		&snap.ID, &created, &snap.ActivationPercent, &snap.ActivationGrade,
		&snap.HookPercent, &snap.HookGrade, &snap.ConsistencyPassed, &snap.ConsistencyTotal,
		&snap.GapCount, &snap.PipelineDurationMs,
	); err != nil {
		return snap, fmt.Errorf("history: scan: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return snap, fmt.Errorf("history: bad timestamp %q: %w", created, err)
	}
	snap.Timestamp = ts
	return snap, nil
}
