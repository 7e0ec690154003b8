package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/career-crawler/internal/store"
)

// RunStore keeps run history in memory. It implements store.RunRepository.
type RunStore struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]store.Run
	targets map[uuid.UUID]map[string]store.TargetStats
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:    make(map[uuid.UUID]store.Run),
		targets: make(map[uuid.UUID]map[string]store.TargetStats),
	}
}

// StartRun records a running row; repeated starts keep the first one.
func (s *RunStore) StartRun(_ context.Context, runID uuid.UUID, startedAt time.Time, companies int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return nil
	}
	s.runs[runID] = store.Run{
		ID:        runID,
		StartedAt: startedAt,
		Status:    store.RunRunning,
		Companies: companies,
	}
	return nil
}

// CompleteRun marks a run finished. Completing an unknown run creates it.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totalJobs int,
	stored int,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		run = store.Run{ID: runID, StartedAt: finishedAt}
	}
	finished := finishedAt
	run.FinishedAt = &finished
	run.Status = status
	run.TotalJobs = totalJobs
	run.Stored = stored
	run.ErrorMessage = errMsg
	s.runs[runID] = run
	return nil
}

// UpsertTargetStats replaces the counters for (run, company).
func (s *RunStore) UpsertTargetStats(_ context.Context, stats store.TargetStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCompany, ok := s.targets[stats.RunID]
	if !ok {
		byCompany = make(map[string]store.TargetStats)
		s.targets[stats.RunID] = byCompany
	}
	byCompany[stats.Company] = stats
	return nil
}

// GetRun returns a run or store.ErrNotFound.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListRunTargets returns a run's target stats, most recently updated first.
func (s *RunStore) ListRunTargets(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.TargetStats, error) {
	s.mu.RLock()
	stats := make([]store.TargetStats, 0, len(s.targets[runID]))
	for _, st := range s.targets[runID] {
		stats = append(stats, st)
	}
	s.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool {
		if !stats[i].UpdatedAt.Equal(stats[j].UpdatedAt) {
			return stats[i].UpdatedAt.After(stats[j].UpdatedAt)
		}
		return stats[i].Company < stats[j].Company
	})
	return page(stats, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
