package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/storage/memory"
	"github.com/JakeFAU/career-crawler/internal/store"
)

func seededRuns(t *testing.T) (*memory.RunStore, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRunStore()
	done, running := uuid.New(), uuid.New()
	start := time.Now().Add(-time.Hour)

	require.NoError(t, repo.StartRun(ctx, done, start, 2))
	require.NoError(t, repo.UpsertTargetStats(ctx, store.TargetStats{
		RunID: done, Company: "Acme", Pages: 2, Listings: 5, UpdatedAt: start.Add(time.Minute),
	}))
	msg := "browser unavailable"
	require.NoError(t, repo.UpsertTargetStats(ctx, store.TargetStats{
		RunID: done, Company: "Beta", Listings: 2, Fallback: "mock", Error: &msg, UpdatedAt: start.Add(2 * time.Minute),
	}))
	require.NoError(t, repo.CompleteRun(ctx, done, start.Add(3*time.Minute), store.RunSuccess, 7, 7, nil))
	require.NoError(t, repo.StartRun(ctx, running, time.Now(), 2))
	return repo, done, running
}

func TestRunHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo, done, _ := seededRuns(t)
	handler := NewRunHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/runs?status=success&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, done.String(), body.Runs[0].ID)
	require.Equal(t, 7, body.Runs[0].TotalJobs)
	require.NotNil(t, body.Runs[0].FinishedAt)
}

func TestRunHandlerListRunsRejectsBadQuery(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(memory.NewRunStore(), zap.NewNop())
	for _, target := range []string{"/api/runs?status=bogus", "/api/runs?limit=0", "/api/runs?offset=-2"} {
		rec := httptest.NewRecorder()
		handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestRunHandlerGetRun(t *testing.T) {
	t.Parallel()

	repo, _, running := seededRuns(t)
	handler := NewRunHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/", nil), running.String()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"running"`)

	rec = httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString()))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/", nil), "not-a-uuid"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunHandlerListRunTargets(t *testing.T) {
	t.Parallel()

	repo, done, _ := seededRuns(t)
	handler := NewRunHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ListRunTargets(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/?limit=5", nil), done.String()))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Targets []targetDTO `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Targets, 2)
	require.Equal(t, "Beta", body.Targets[0].Company, "most recently updated first")
	require.Equal(t, "mock", body.Targets[0].Fallback)
	require.NotNil(t, body.Targets[0].Error)
	require.Equal(t, 2, body.Targets[1].Pages)
}

func TestRunHandlerRepositoryFailures(t *testing.T) {
	t.Parallel()

	handler := NewRunHandler(failingRunRepo{}, zap.NewNop())
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetRun(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString()))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	disabled := NewRunHandler(nil, nil)
	rec = httptest.NewRecorder()
	disabled.ListRunTargets(rec, withRunIDParam(httptest.NewRequest(http.MethodGet, "/", nil), uuid.NewString()))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func withRunIDParam(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("run_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

var errRepoDown = errors.New("repository down")

type failingRunRepo struct{}

func (failingRunRepo) StartRun(context.Context, uuid.UUID, time.Time, int) error { return errRepoDown }

func (failingRunRepo) CompleteRun(context.Context, uuid.UUID, time.Time, store.RunStatus, int, int, *string) error {
	return errRepoDown
}

func (failingRunRepo) UpsertTargetStats(context.Context, store.TargetStats) error { return errRepoDown }

func (failingRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, errRepoDown
}

func (failingRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, errRepoDown
}

func (failingRunRepo) ListRunTargets(context.Context, uuid.UUID, int, int) ([]store.TargetStats, error) {
	return nil, errRepoDown
}
