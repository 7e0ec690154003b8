package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/career-crawler/internal/store"
)

// RunStore implements store.RunRepository using Postgres.
//
// Schema:
//
//	scrape_runs(id UUID PRIMARY KEY, started_at, finished_at, status, companies,
//	            total_jobs, stored, error_message)
//	scrape_run_targets(run_id, company, pages, listings, fallback,
//	                   error_message, updated_at, PRIMARY KEY (run_id, company))
type RunStore struct {
	pool dbPool
}

// NewRunStore constructs a RunStore from an existing pool.
func NewRunStore(pool dbPool) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the run history tables when they do not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS scrape_runs (
	id UUID PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	companies INTEGER NOT NULL DEFAULT 0,
	total_jobs INTEGER NOT NULL DEFAULT 0,
	stored INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
)`,
		`CREATE TABLE IF NOT EXISTS scrape_run_targets (
	run_id UUID NOT NULL,
	company TEXT NOT NULL,
	pages INTEGER NOT NULL DEFAULT 0,
	listings INTEGER NOT NULL DEFAULT 0,
	fallback TEXT NOT NULL DEFAULT '',
	error_message TEXT,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, company)
)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create run history schema: %w", err)
		}
	}
	return nil
}

// StartRun inserts a running row; a repeated start keeps the existing row.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, companies int) error {
	query := `
		INSERT INTO scrape_runs (id, started_at, status, companies)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning, companies); err != nil {
		return fmt.Errorf("failed to insert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with a status and totals.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totalJobs int,
	stored int,
	errMsg *string,
) error {
	query := `
		UPDATE scrape_runs
		SET finished_at = $1, status = $2, total_jobs = $3, stored = $4, error_message = $5
		WHERE id = $6;
	`
	_, err := s.pool.Exec(ctx, query, finishedAt, status, totalJobs, stored, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// UpsertTargetStats writes the absolute counters for (run, company).
func (s *RunStore) UpsertTargetStats(ctx context.Context, stats store.TargetStats) error {
	query := `
		INSERT INTO scrape_run_targets (run_id, company, pages, listings, fallback, error_message, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, company) DO UPDATE
		SET pages = EXCLUDED.pages,
			listings = EXCLUDED.listings,
			fallback = EXCLUDED.fallback,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		stats.RunID,
		stats.Company,
		stats.Pages,
		stats.Listings,
		stats.Fallback,
		stats.Error,
		stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert target stats: %w", err)
	}
	return nil
}

const runColumns = "id, started_at, finished_at, status, companies, total_jobs, stored, error_message"

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM scrape_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM scrape_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunTargets retrieves per-target stats for a run, most recently updated first.
func (s *RunStore) ListRunTargets(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.TargetStats, error) {
	query := `
		SELECT run_id, company, pages, listings, fallback, error_message, updated_at
		FROM scrape_run_targets
		WHERE run_id = $1
		ORDER BY updated_at DESC, company
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run targets: %w", err)
	}
	defer rows.Close()

	stats := []store.TargetStats{}
	for rows.Next() {
		var st store.TargetStats
		if err := rows.Scan(
			&st.RunID,
			&st.Company,
			&st.Pages,
			&st.Listings,
			&st.Fallback,
			&st.Error,
			&st.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan target row: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run targets: %w", err)
	}
	return stats, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var run store.Run
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Companies,
		&run.TotalJobs,
		&run.Stored,
		&run.ErrorMessage,
	)
	return run, err
}
