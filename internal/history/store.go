// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history keeps a SQLite ledger of fetch runs and the outcome of
// every item each run attempted.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/datfetch/pkg/types"
)

const defaultLimit = 20

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultPath returns ~/.local/state/datfetch/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "datfetch", "history.db"), nil
}

// Run is one recorded invocation of fetch.
type Run struct {
	ID             string    `json:"id" yaml:"id"`
	Manifest       string    `json:"manifest" yaml:"manifest"`
	Origin         string    `json:"origin,omitempty" yaml:"origin,omitempty"`
	Collection     string    `json:"collection,omitempty" yaml:"collection,omitempty"`
	StartedAt      time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time `json:"finished_at" yaml:"finished_at"`
	ListOnly       bool      `json:"list_only" yaml:"list_only"`
	Wanted         int       `json:"wanted" yaml:"wanted"`
	Matched        int       `json:"matched" yaml:"matched"`
	Missing        int       `json:"missing" yaml:"missing"`
	Completed      int       `json:"completed" yaml:"completed"`
	AlreadyPresent int       `json:"already_present" yaml:"already_present"`
	Failed         int       `json:"failed" yaml:"failed"`
	Bytes          int64     `json:"bytes" yaml:"bytes"`
}

// NewRun starts a run record with a time-ordered identifier.
func NewRun(manifest string, started time.Time) Run {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Run{ID: id.String(), Manifest: manifest, StartedAt: started.UTC()}
}

// Tally sets the outcome counters from outcomes.
func (r *Run) Tally(outcomes []types.TransferOutcome) {
	r.Completed, r.AlreadyPresent, r.Failed, r.Bytes = 0, 0, 0, 0
	for _, o := range outcomes {
		r.Bytes += o.Bytes
		switch o.Kind {
		case types.OutcomeCompleted:
			r.Completed++
		case types.OutcomeAlreadyPresent:
			r.AlreadyPresent++
		default:
			r.Failed++
		}
	}
}

// Store manages the history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database named by cfg.Path, falling
// back to DefaultPath. The schema is created if it does not exist.
func Open(cfg types.HistoryConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			manifest TEXT NOT NULL,
			origin TEXT,
			collection TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			list_only INTEGER NOT NULL DEFAULT 0,
			wanted INTEGER NOT NULL DEFAULT 0,
			matched INTEGER NOT NULL DEFAULT 0,
			missing INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			already_present INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			url TEXT,
			local_path TEXT,
			kind TEXT NOT NULL,
			reason TEXT,
			bytes INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record stores run and its outcomes in one transaction. Recording the
// same run ID again replaces the earlier record.
func (s *Store) Record(ctx context.Context, run Run, outcomes []types.TransferOutcome) error {
	if run.ID == "" {
		return errors.New("run has no id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("clearing old outcomes: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, manifest, origin, collection, started_at, finished_at, list_only,
			wanted, matched, missing, completed, already_present, failed, bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			manifest=excluded.manifest, origin=excluded.origin, collection=excluded.collection,
			started_at=excluded.started_at, finished_at=excluded.finished_at, list_only=excluded.list_only,
			wanted=excluded.wanted, matched=excluded.matched, missing=excluded.missing,
			completed=excluded.completed, already_present=excluded.already_present,
			failed=excluded.failed, bytes=excluded.bytes`,
		run.ID, run.Manifest, run.Origin, run.Collection,
		formatTime(run.StartedAt), formatTime(run.FinishedAt), run.ListOnly,
		run.Wanted, run.Matched, run.Missing,
		run.Completed, run.AlreadyPresent, run.Failed, run.Bytes,
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, position, name, url, local_path, kind, reason, bytes, attempts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range outcomes {
		_, err := stmt.ExecContext(ctx,
			run.ID, i, o.Task.DisplayName, o.Task.RemoteURL, o.Task.LocalPath,
			string(o.Kind), o.Reason, o.Bytes, o.Attempts,
		)
		if err != nil {
			return fmt.Errorf("inserting outcome %s: %w", o.Task.DisplayName, err)
		}
	}

	return tx.Commit()
}

// Recent returns up to limit runs, newest first. A non-positive limit
// uses the default of 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, manifest, COALESCE(origin, ''), COALESCE(collection, ''),
			started_at, COALESCE(finished_at, ''), list_only,
			wanted, matched, missing, completed, already_present, failed, bytes
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Manifest, &r.Origin, &r.Collection,
			&started, &finished, &r.ListOnly,
			&r.Wanted, &r.Matched, &r.Missing, &r.Completed, &r.AlreadyPresent, &r.Failed, &r.Bytes,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcomes returns the recorded outcomes of a run in transfer order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]types.TransferOutcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COALESCE(url, ''), COALESCE(local_path, ''), kind, COALESCE(reason, ''), bytes, attempts, position
		 FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var out []types.TransferOutcome
	for rows.Next() {
		var o types.TransferOutcome
		var kind string
		var pos int
		if err := rows.Scan(&o.Task.DisplayName, &o.Task.RemoteURL, &o.Task.LocalPath,
			&kind, &o.Reason, &o.Bytes, &o.Attempts, &pos); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Kind = types.OutcomeKind(kind)
		o.Task.Index = pos + 1
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Task.Total = len(out)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
