package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus mirrors the scrape_runs status column.
type RunStatus string

// Run statuses persisted in scrape_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one scrape run for API responses.
type Run struct {
	// ID is the run identifier shared with events and archives.
	ID uuid.UUID
	// StartedAt captures when the run emitted its start event.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// Companies is the number of targets selected for the run.
	Companies int
	// TotalJobs and Stored are filled in on success.
	TotalJobs int
	Stored    int
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// TargetStats captures what one target contributed to a run.
type TargetStats struct {
	RunID     uuid.UUID
	Company   string
	Pages     int
	Listings  int
	Fallback  string
	Error     *string
	UpdatedAt time.Time
}

// RunRepository persists run history.
type RunRepository interface {
	// StartRun inserts (or idempotently keeps) a running row.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time, companies int) error
	// CompleteRun marks the run finished with the provided status and totals.
	CompleteRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		totalJobs int,
		stored int,
		errMsg *string,
	) error
	// UpsertTargetStats writes the absolute counters for (run, company).
	UpsertTargetStats(ctx context.Context, stats TargetStats) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset,
	// newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunTargets returns per-target stats for one run in update order.
	ListRunTargets(ctx context.Context, runID uuid.UUID, limit, offset int) ([]TargetStats, error)
}
