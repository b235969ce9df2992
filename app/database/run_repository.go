package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ RunRepository = (*RunRepo)(nil)

// RunRepo stores the append-only history of ingestion passes
type RunRepo struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	errs := run.Errors
	if errs == nil {
		errs = []RunError{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, finished_at, duration_ms, sources_processed, sources_errored,
			sources_skipped, items_created, items_skipped, errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Duration.Milliseconds(),
		run.SourcesProcessed, run.SourcesErrored, run.SourcesSkipped,
		run.ItemsCreated, run.ItemsSkipped, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

func (r *RunRepo) ListRecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, duration_ms, sources_processed, sources_errored,
		       sources_skipped, items_created, items_skipped, errors
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var durationMs int64
		var encoded string
		err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &durationMs,
			&run.SourcesProcessed, &run.SourcesErrored, &run.SourcesSkipped,
			&run.ItemsCreated, &run.ItemsSkipped, &encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(encoded), &run.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode run errors: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}
