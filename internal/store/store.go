// Package store keeps a log of finished batches in a local sqlite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DennySORA/Remove-Background/internal/utils"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// ErrNotFound is returned when a batch id is not in the store
var ErrNotFound = errors.New("batch not found")

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id              TEXT PRIMARY KEY,
	method          TEXT NOT NULL,
	strength        REAL NOT NULL,
	mode            TEXT NOT NULL,
	source_folder   TEXT NOT NULL,
	output_folder   TEXT NOT NULL,
	started_at      INTEGER NOT NULL,
	total           INTEGER NOT NULL,
	succeeded       INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	skipped         INTEGER NOT NULL,
	elapsed_seconds REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS failures (
	batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	path     TEXT NOT NULL,
	reason   TEXT NOT NULL,
	detail   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (batch_id, position)
);
CREATE INDEX IF NOT EXISTS batches_started_at ON batches(started_at);
`

// Batch is one stored run
type Batch struct {
	ID             string
	Method         types.MethodID
	Strength       float64
	Mode           types.Mode
	SourceFolder   string
	OutputFolder   string
	StartedAt      time.Time
	Total          int
	Succeeded      int
	Failed         int
	Skipped        int
	ElapsedSeconds float64
}

// Store wraps the sqlite handle
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies the schema
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	logger.Debug("opening run store", "path", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables when they are missing
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate run store: %w", err)
	}
	return nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBatch records a finished batch and its failures in one transaction.
// Saving the same batch id twice replaces the earlier record.
func (s *Store) SaveBatch(ctx context.Context, cfg types.JobConfiguration, r types.BatchResult) error {
	if r.ID == "" {
		return errors.New("batch result has no id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM failures WHERE batch_id = ?`, r.ID); err != nil {
		return fmt.Errorf("failed to clear failures: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO batches
			(id, method, strength, mode, source_folder, output_folder, started_at,
			 total, succeeded, failed, skipped, elapsed_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(cfg.Method), cfg.Strength, string(cfg.Mode), cfg.SourceFolder, r.OutputFolder,
		r.StartedAt.UnixNano(), r.Total, r.Succeeded, r.Failed, r.Skipped, r.ElapsedSeconds)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	for i, f := range r.Failures {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO failures (batch_id, position, path, reason, detail) VALUES (?, ?, ?, ?, ?)`,
			r.ID, i, f.Path, f.Reason, f.Detail)
		if err != nil {
			return fmt.Errorf("failed to insert failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	s.logger.Debug("batch recorded", "batch", r.ID, "failures", len(r.Failures))
	return nil
}

// RecentBatches returns up to limit batches, newest first
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, method, strength, mode, source_folder, output_folder, started_at,
		       total, succeeded, failed, skipped, elapsed_seconds
		FROM batches ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBatch returns one batch by id
func (s *Store) GetBatch(ctx context.Context, id string) (Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, method, strength, mode, source_folder, output_folder, started_at,
		       total, succeeded, failed, skipped, elapsed_seconds
		FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, err
}

// BatchFailures returns the failures of one batch in input order
func (s *Store) BatchFailures(ctx context.Context, id string) ([]types.Failure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, reason, detail FROM failures WHERE batch_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	out := []types.Failure{}
	for rows.Next() {
		var f types.Failure
		if err := rows.Scan(&f.Path, &f.Reason, &f.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (Batch, error) {
	var (
		b       Batch
		method  string
		mode    string
		started int64
	)
	err := row.Scan(&b.ID, &method, &b.Strength, &mode, &b.SourceFolder, &b.OutputFolder, &started,
		&b.Total, &b.Succeeded, &b.Failed, &b.Skipped, &b.ElapsedSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Batch{}, err
		}
		return Batch{}, fmt.Errorf("failed to scan batch: %w", err)
	}
	b.Method = types.MethodID(method)
	b.Mode = types.Mode(mode)
	b.StartedAt = time.Unix(0, started).UTC()
	return b, nil
}
