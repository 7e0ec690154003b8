package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/career-crawler/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	runs := NewRunStore()
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	older, newer := uuid.New(), uuid.New()

	require.NoError(t, runs.StartRun(ctx, older, now, 8))
	require.NoError(t, runs.StartRun(ctx, newer, now.Add(time.Hour), 2))
	require.NoError(t, runs.StartRun(ctx, newer, now.Add(2*time.Hour), 5), "second start is ignored")
	require.NoError(t, runs.CompleteRun(ctx, older, now.Add(time.Minute), store.RunSuccess, 12, 12, nil))

	got, err := runs.GetRun(ctx, older)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, got.Status)
	require.Equal(t, 12, got.TotalJobs)
	require.NotNil(t, got.FinishedAt)

	all, err := runs.ListRuns(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, newer, all[0].ID)
	require.Equal(t, 2, all[0].Companies)

	running := store.RunRunning
	filtered, err := runs.ListRuns(ctx, &running, 10, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	paged, err := runs.ListRuns(ctx, nil, 1, 1)
	require.NoError(t, err)
	require.Equal(t, older, paged[0].ID)

	_, err = runs.GetRun(ctx, uuid.New())
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRunStoreTargetStats(t *testing.T) {
	t.Parallel()

	runs := NewRunStore()
	ctx := context.Background()
	runID := uuid.New()
	now := time.Now()

	require.NoError(t, runs.UpsertTargetStats(ctx, store.TargetStats{RunID: runID, Company: "Acme", Pages: 1, UpdatedAt: now}))
	require.NoError(t, runs.UpsertTargetStats(ctx, store.TargetStats{RunID: runID, Company: "Beta", Pages: 1, UpdatedAt: now.Add(time.Second)}))
	require.NoError(t, runs.UpsertTargetStats(ctx, store.TargetStats{RunID: runID, Company: "Acme", Pages: 3, UpdatedAt: now.Add(2 * time.Second)}))

	stats, err := runs.ListRunTargets(ctx, runID, 0, 0)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, "Acme", stats[0].Company)
	require.Equal(t, 3, stats[0].Pages)

	none, err := runs.ListRunTargets(ctx, runID, 10, 5)
	require.NoError(t, err)
	require.Empty(t, none)
}
