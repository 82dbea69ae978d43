package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunStatus is the state of a sync run
type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunDone       RunStatus = "done"
	RunEmpty      RunStatus = "empty"
	RunFailed     RunStatus = "failed"
)

// SyncRun is one recorded scrape-and-store attempt
type SyncRun struct {
	ID            int64
	Source        string // what triggered the run, e.g. "schedule" or "command"
	Status        RunStatus
	ListingsCount int
	LastError     sql.NullString
	StartedAt     time.Time
	FinishedAt    sql.NullTime
}

// CreateRun records the start of a run
func (db *DB) CreateRun(ctx context.Context, source string) (*SyncRun, error) {
	run := SyncRun{Source: source, Status: RunInProgress, StartedAt: time.Now().UTC().Truncate(time.Second)}
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		INSERT INTO sync_runs (source, status, started_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`), run.Source, string(run.Status), run.StartedAt).Scan(&run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}
	return &run, nil
}

// FinishRun records the outcome of a run. runErr may be nil.
func (db *DB) FinishRun(ctx context.Context, id int64, status RunStatus, listingsCount int, runErr error) error {
	var lastError sql.NullString
	if runErr != nil {
		lastError = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		UPDATE sync_runs
		SET status = $1, listings_count = $2, last_error = $3, finished_at = $4
		WHERE id = $5
	`), string(status), listingsCount, lastError, time.Now().UTC().Truncate(time.Second), id)
	if err != nil {
		return fmt.Errorf("failed to finish sync run %d: %w", id, err)
	}
	return nil
}

// LastRun returns the most recent finished run, or nil if none finished yet
func (db *DB) LastRun(ctx context.Context) (*SyncRun, error) {
	var (
		run    SyncRun
		status string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, source, status, listings_count, last_error, started_at, finished_at
		FROM sync_runs
		WHERE finished_at IS NOT NULL
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Source, &status, &run.ListingsCount, &run.LastError, &run.StartedAt, &run.FinishedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync run: %w", err)
	}

	run.Status = RunStatus(status)
	return &run, nil
}
