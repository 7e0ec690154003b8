package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/crawler"
	runid "github.com/JakeFAU/career-crawler/internal/id/uuid"
	"github.com/JakeFAU/career-crawler/internal/store"
)

// StoreSink records run history via a store.RunRepository. Target counters
// accumulate across batches and are written as absolute values, once per
// batch per touched target.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger

	mu   sync.Mutex
	runs map[uuid.UUID]*runState
}

type runState struct {
	stored  int
	targets map[string]*store.TargetStats
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger, runs: make(map[uuid.UUID]*runState)}
}

// Consume folds the batch into per-run state and forwards changes to the
// repository. It respects ctx deadlines and returns repository errors.
func (s *StoreSink) Consume(ctx context.Context, batch []crawler.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[*store.TargetStats]struct{})
	for _, evt := range batch {
		runID, err := runid.Parse(evt.RunID)
		if err != nil {
			s.logger.Debug("skipping event with non-uuid run id", zap.String("run_id", evt.RunID))
			continue
		}
		if err := s.apply(ctx, runID, evt, touched); err != nil {
			return err
		}
	}
	for stats := range touched {
		if err := s.repo.UpsertTargetStats(ctx, *stats); err != nil {
			return fmt.Errorf("upsert target stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) apply(ctx context.Context, runID uuid.UUID, evt crawler.Event, touched map[*store.TargetStats]struct{}) error {
	switch evt.Type {
	case crawler.EventStart:
		s.state(runID)
		if err := s.repo.StartRun(ctx, runID, evt.TS, evt.Total); err != nil {
			return fmt.Errorf("start run: %w", err)
		}
	case crawler.EventCompanyStart, crawler.EventCompanyPage, crawler.EventCompanyFound, crawler.EventCompanyError:
		stats := s.target(runID, evt.Company)
		s.recordTarget(stats, evt)
		touched[stats] = struct{}{}
	case crawler.EventJobsStored:
		s.state(runID).stored = evt.Stored
	case crawler.EventComplete:
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunSuccess, evt.Count, evt.Stored, nil); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		delete(s.runs, runID)
	case crawler.EventError:
		msg := evt.Err
		stored := 0
		if st, ok := s.runs[runID]; ok {
			stored = st.stored
		}
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunError, 0, stored, &msg); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		delete(s.runs, runID)
	}
	return nil
}

func (s *StoreSink) recordTarget(stats *store.TargetStats, evt crawler.Event) {
	if evt.TS.After(stats.UpdatedAt) {
		stats.UpdatedAt = evt.TS
	}
	switch evt.Type {
	case crawler.EventCompanyPage:
		stats.Pages++
	case crawler.EventCompanyFound:
		stats.Listings += evt.Count
		if evt.Fallback != crawler.FallbackNone {
			stats.Fallback = string(evt.Fallback)
		}
	case crawler.EventCompanyError:
		msg := evt.Err
		stats.Error = &msg
		stats.Listings += len(evt.Jobs)
		if evt.Fallback != crawler.FallbackNone {
			stats.Fallback = string(evt.Fallback)
		}
	}
}

func (s *StoreSink) state(runID uuid.UUID) *runState {
	st, ok := s.runs[runID]
	if !ok {
		st = &runState{targets: make(map[string]*store.TargetStats)}
		s.runs[runID] = st
	}
	return st
}

func (s *StoreSink) target(runID uuid.UUID, company string) *store.TargetStats {
	st := s.state(runID)
	stats, ok := st.targets[company]
	if !ok {
		stats = &store.TargetStats{RunID: runID, Company: company}
		st.targets[company] = stats
	}
	return stats
}

// Close implements the Sink interface; it drops in-flight run state.
func (s *StoreSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[uuid.UUID]*runState)
	return nil
}
