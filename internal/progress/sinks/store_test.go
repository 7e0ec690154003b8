package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/career-crawler/internal/crawler"
	"github.com/JakeFAU/career-crawler/internal/store"
)

// TestStoreSinkRecordsRun ensures a run's lifecycle and per-target counters reach the repository.
func TestStoreSinkRecordsRun(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	runID := uuid.New()
	id := runID.String()
	now := time.Now()

	first := []crawler.Event{
		{Type: crawler.EventStart, RunID: id, TS: now, Total: 2},
		{Type: crawler.EventCompanyStart, RunID: id, TS: now, Company: "Acme"},
		{Type: crawler.EventCompanyPage, RunID: id, TS: now, Company: "Acme", Page: 1},
		{Type: crawler.EventCompanyFound, RunID: id, TS: now, Company: "Acme", Page: 1, Count: 3},
	}
	second := []crawler.Event{
		{Type: crawler.EventCompanyPage, RunID: id, TS: now.Add(time.Second), Company: "Acme", Page: 2},
		{
			Type: crawler.EventCompanyFound, RunID: id, TS: now.Add(time.Second), Company: "Acme", Page: 2,
			Count: 1, Fallback: crawler.FallbackPlaceholder,
		},
		{Type: crawler.EventCompanyStart, RunID: id, TS: now, Company: "Beta"},
		{
			Type: crawler.EventCompanyError, RunID: id, TS: now, Company: "Beta", Err: "browser unavailable",
			Jobs: make([]crawler.JobListing, 2), Fallback: crawler.FallbackMock,
		},
		{Type: crawler.EventJobsStored, RunID: id, TS: now, Stored: 6, Count: 6},
		{Type: crawler.EventComplete, RunID: id, TS: now.Add(2 * time.Second), Count: 6, Stored: 6},
	}

	require.NoError(t, sink.Consume(context.Background(), first))
	require.NoError(t, sink.Consume(context.Background(), second))

	require.Equal(t, []uuid.UUID{runID}, repo.starts)
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunSuccess, repo.completes[0].status)
	require.Equal(t, 6, repo.completes[0].total)

	acme := repo.latest["Acme"]
	require.Equal(t, 2, acme.Pages)
	require.Equal(t, 4, acme.Listings)
	require.Equal(t, "placeholder", acme.Fallback)
	require.Nil(t, acme.Error)

	beta := repo.latest["Beta"]
	require.Equal(t, 2, beta.Listings)
	require.Equal(t, "mock", beta.Fallback)
	require.NotNil(t, beta.Error)

	require.Empty(t, sink.runs, "finished runs release their state")
}

// TestStoreSinkRecordsFailure marks the run as errored with the stored count seen so far.
func TestStoreSinkRecordsFailure(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	id := uuid.NewString()
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []crawler.Event{
		{Type: crawler.EventStart, RunID: id, TS: now},
		{Type: crawler.EventError, RunID: id, TS: now, Err: "context canceled"},
	}))
	require.Len(t, repo.completes, 1)
	require.Equal(t, store.RunError, repo.completes[0].status)
	require.Equal(t, "context canceled", *repo.completes[0].errMsg)
}

// TestStoreSinkSkipsForeignRunIDs ignores events whose run id is not a UUID.
func TestStoreSinkSkipsForeignRunIDs(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	require.NoError(t, sink.Consume(context.Background(), []crawler.Event{
		{Type: crawler.EventStart, RunID: "cli-run", TS: time.Now()},
	}))
	require.Empty(t, repo.starts)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []crawler.Event{
		{Type: crawler.EventStart, RunID: uuid.NewString(), TS: time.Now()},
	})
	require.Error(t, err)
}

type completeCall struct {
	runID  uuid.UUID
	status store.RunStatus
	total  int
	stored int
	errMsg *string
}

type fakeRunRepo struct {
	fail      bool
	starts    []uuid.UUID
	completes []completeCall
	latest    map[string]store.TargetStats
}

func (f *fakeRunRepo) StartRun(_ context.Context, runID uuid.UUID, _ time.Time, _ int) error {
	if f.fail {
		return assertErr("start")
	}
	f.starts = append(f.starts, runID)
	return nil
}

func (f *fakeRunRepo) CompleteRun(
	_ context.Context,
	runID uuid.UUID,
	_ time.Time,
	status store.RunStatus,
	totalJobs int,
	stored int,
	errMsg *string,
) error {
	if f.fail {
		return assertErr("complete")
	}
	f.completes = append(f.completes, completeCall{runID: runID, status: status, total: totalJobs, stored: stored, errMsg: errMsg})
	return nil
}

func (f *fakeRunRepo) UpsertTargetStats(_ context.Context, stats store.TargetStats) error {
	if f.fail {
		return assertErr("target")
	}
	if f.latest == nil {
		f.latest = map[string]store.TargetStats{}
	}
	f.latest[stats.Company] = stats
	return nil
}

func (f *fakeRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, assertErr("read")
}

func (f *fakeRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, assertErr("list")
}

func (f *fakeRunRepo) ListRunTargets(context.Context, uuid.UUID, int, int) ([]store.TargetStats, error) {
	return nil, assertErr("targets")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
