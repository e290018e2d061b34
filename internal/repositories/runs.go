package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunedl/internal/shared"
)

// Run kinds.
const (
	RunDownload = "download"
	RunConvert  = "convert"
)

// Run is the persisted summary of one orchestrator or conversion run.
type Run struct {
	ID         string
	Kind       string
	Total      int
	Succeeded  int
	Warned     int
	Failed     int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// RunStore manages the runs table.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Save inserts or replaces a run. A missing ID is generated.
func (r *RunStore) Save(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
		INSERT INTO runs (id, kind, total, succeeded, warned, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total = excluded.total,
			succeeded = excluded.succeeded,
			warned = excluded.warned,
			failed = excluded.failed,
			finished_at = excluded.finished_at
	`
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Kind, run.Total, run.Succeeded, run.Warned, run.Failed, run.StartedAt, finished)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunStore) Get(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, kind, total, succeeded, warned, failed, started_at, finished_at
		FROM runs WHERE id = ?
	`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs first. A limit of zero or less returns all of them.
func (r *RunStore) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `
		SELECT id, kind, total, succeeded, warned, failed, started_at, finished_at
		FROM runs ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var finished sql.NullTime
	if err := s.Scan(&run.ID, &run.Kind, &run.Total, &run.Succeeded, &run.Warned, &run.Failed,
		&run.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
