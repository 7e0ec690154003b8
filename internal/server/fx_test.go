package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/config"
	"github.com/JakeFAU/career-crawler/internal/crawler"
)

func offlineConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Browser.Mode = config.BrowserDisabled
	cfg.Scrape.PolitenessDelayMS = 0
	cfg.Archive.Backend = config.BackendLocal
	cfg.Archive.LocalDir = t.TempDir()
	cfg.RateLimit.Enabled = false
	return cfg
}

func TestBuildRunsOfflineEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig(t)
	app, err := Build(context.Background(), cfg, Options{Registerer: prometheus.NewRegistry(), Logger: zap.NewNop()})
	require.NoError(t, err)

	result, err := app.Service().Run(context.Background(), crawler.RunOptions{}, nil)
	require.NoError(t, err)
	require.Equal(t, app.Registry().Len(), result.Companies)
	require.Len(t, result.Jobs, 2*result.Companies, "a disabled browser yields two mock listings per target")
	require.Equal(t, len(result.Jobs), result.Stored)
	require.FileExists(t, filepath.Join(cfg.Archive.LocalDir, crawler.ArchivePath(cfg.Archive.Prefix, result.RunID, result.ScrapedAt)))

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Equal(t, len(result.Jobs), listed.Total)

	require.NoError(t, app.Close(context.Background()))

	run, err := app.runs.ListRuns(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, run, 1, "the hub flushes run history on close")
	require.Equal(t, result.RunID, run[0].ID.String())
}

func TestBuildLoadsTargetsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - name: Acme
    entryUrl: https://acme.test/careers
`), 0o600))

	cfg := offlineConfig(t)
	cfg.Scrape.TargetsFile = path
	app, err := Build(context.Background(), cfg, Options{Registerer: prometheus.NewRegistry(), Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.Equal(t, 1, app.Registry().Len())
	require.Equal(t, "Acme", app.Registry().Targets()[0].Name)
}

func TestBuildFailsOnMissingTargetsFile(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig(t)
	cfg.Scrape.TargetsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Build(context.Background(), cfg, Options{Registerer: prometheus.NewRegistry(), Logger: zap.NewNop()})
	require.ErrorContains(t, err, "load targets")
}

func TestBuildWithScheduler(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig(t)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Spec = "not a cron spec"
	_, err := Build(context.Background(), cfg, Options{Registerer: prometheus.NewRegistry(), Logger: zap.NewNop()})
	require.Error(t, err)
}

func TestBuildSelectsLauncherPerMode(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{config.BrowserHeadless, config.BrowserStatic, config.BrowserHybrid, config.BrowserDisabled} {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()
			cfg := offlineConfig(t)
			cfg.Browser.Mode = mode
			app, err := Build(context.Background(), cfg, Options{Registerer: prometheus.NewRegistry(), Logger: zap.NewNop()})
			require.NoError(t, err)
			require.NotNil(t, app.setupLauncher())
			require.NoError(t, app.Close(context.Background()))
		})
	}
}
