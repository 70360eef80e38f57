// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ledger persists one row per render job reaching a terminal
// status, independent of the in-memory active-job registry (spec §9
// GLOSSARY "Ledger"). It survives process restarts and lets a caller
// trace a software-fallback retry back to the GPU attempt that failed
// ahead of it.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/veditcore/engine/internal/enginerr"
	"github.com/veditcore/engine/internal/persistence/sqlite"
	"github.com/veditcore/engine/internal/pipeline/model"
)

const schemaVersion = 1

// Entry is one terminal-job record.
type Entry struct {
	JobID           string
	ParentJobID     string
	ProjectName     string
	OutputPath      string
	Status          model.RenderStatus
	ErrorMessage    string
	FramesProcessed int64
	CreatedAt       time.Time
	FinishedAt      time.Time
}

// Store persists Entry rows to a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the ledger database at dbPath and
// applies its schema migration. If a database file already exists at
// dbPath, its integrity is checked first — a corrupted ledger fails
// Open rather than silently serving (or overwriting) damaged pages.
func Open(dbPath string) (*Store, error) {
	if _, err := os.Stat(dbPath); err == nil {
		if issues, err := sqlite.VerifyIntegrity(dbPath, "quick"); err != nil {
			return nil, enginerr.Wrap(enginerr.KindIO, err, "failed to verify ledger database integrity")
		} else if issues != nil {
			return nil, enginerr.New(enginerr.KindIO, fmt.Sprintf("ledger database is corrupt: %s", strings.Join(issues, "; ")))
		}
	}

	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindIO, err, "failed to open ledger database")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, enginerr.Wrap(enginerr.KindIO, err, "ledger schema migration failed")
	}
	return s, nil
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS render_jobs (
		job_id           TEXT PRIMARY KEY,
		parent_job_id    TEXT NOT NULL DEFAULT '',
		project_name     TEXT NOT NULL,
		output_path      TEXT NOT NULL,
		status           TEXT NOT NULL,
		error_message    TEXT NOT NULL DEFAULT '',
		frames_processed INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		finished_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_render_jobs_status ON render_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_render_jobs_parent ON render_jobs(parent_job_id);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Record inserts or replaces the terminal record for e.JobID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	query := `
	INSERT INTO render_jobs (job_id, parent_job_id, project_name, output_path, status, error_message, frames_processed, created_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET
		status           = excluded.status,
		error_message    = excluded.error_message,
		frames_processed = excluded.frames_processed,
		finished_at      = excluded.finished_at
	`
	_, err := s.db.ExecContext(ctx, query,
		e.JobID, e.ParentJobID, e.ProjectName, e.OutputPath, string(e.Status), e.ErrorMessage,
		e.FramesProcessed, e.CreatedAt.Format(time.RFC3339), e.FinishedAt.Format(time.RFC3339),
	)
	if err != nil {
		return enginerr.Wrap(enginerr.KindIO, err, "failed to record ledger entry")
	}
	return nil
}

// Get retrieves a job's ledger entry by ID.
func (s *Store) Get(ctx context.Context, jobID string) (Entry, bool, error) {
	query := `
	SELECT job_id, parent_job_id, project_name, output_path, status, error_message, frames_processed, created_at, finished_at
	FROM render_jobs WHERE job_id = ?`

	var e Entry
	var status, createdAt, finishedAt string
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&e.JobID, &e.ParentJobID, &e.ProjectName, &e.OutputPath, &status, &e.ErrorMessage,
		&e.FramesProcessed, &createdAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, enginerr.Wrap(enginerr.KindIO, err, "failed to query ledger entry")
	}

	e.Status = model.RenderStatus(status)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
	return e, true, nil
}

// ListByParent returns every retry/fallback job chained off parentJobID,
// most recent first.
func (s *Store) ListByParent(ctx context.Context, parentJobID string) ([]Entry, error) {
	query := `
	SELECT job_id, parent_job_id, project_name, output_path, status, error_message, frames_processed, created_at, finished_at
	FROM render_jobs WHERE parent_job_id = ? ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, parentJobID)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindIO, err, "failed to query ledger entries by parent")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status, createdAt, finishedAt string
		if err := rows.Scan(&e.JobID, &e.ParentJobID, &e.ProjectName, &e.OutputPath, &status, &e.ErrorMessage,
			&e.FramesProcessed, &createdAt, &finishedAt); err != nil {
			return nil, enginerr.Wrap(enginerr.KindIO, err, "failed to scan ledger row")
		}
		e.Status = model.RenderStatus(status)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
