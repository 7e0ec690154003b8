// Package server builds the application from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/api"
	"github.com/JakeFAU/career-crawler/internal/clock/system"
	"github.com/JakeFAU/career-crawler/internal/config"
	"github.com/JakeFAU/career-crawler/internal/crawler"
	"github.com/JakeFAU/career-crawler/internal/document"
	collyfetcher "github.com/JakeFAU/career-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/career-crawler/internal/fetcher/headless"
	hybridfetcher "github.com/JakeFAU/career-crawler/internal/fetcher/hybrid"
	"github.com/JakeFAU/career-crawler/internal/gateway"
	"github.com/JakeFAU/career-crawler/internal/hash/sha256"
	"github.com/JakeFAU/career-crawler/internal/headless/detector"
	"github.com/JakeFAU/career-crawler/internal/id/uuid"
	"github.com/JakeFAU/career-crawler/internal/logging"
	"github.com/JakeFAU/career-crawler/internal/metrics"
	"github.com/JakeFAU/career-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/career-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/career-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/career-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/career-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/career-crawler/internal/scheduler"
	gcsstorage "github.com/JakeFAU/career-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/career-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/career-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/career-crawler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/career-crawler/internal/storage/redis"
	"github.com/JakeFAU/career-crawler/internal/store"
)

const shutdownTimeout = 30 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *crawler.Registry
	service   *crawler.Service
	listings  crawler.ListingStore
	runs      store.RunRepository
	hub       *progress.Hub
	scheduler *scheduler.Scheduler
	apiServer *api.Server

	pool      *pgxpool.Pool
	redis     *goredis.Client
	gcs       *gcsstorage.BlobStore
	publisher *gcppublisher.Publisher
}

// Options tweak Build for non-server entry points.
type Options struct {
	// Registerer receives the scrape metrics; nil uses the default registry.
	Registerer prometheus.Registerer
	// Logger overrides the logger built from cfg.Logging.
	Logger *zap.Logger
}

// Build creates the application's dependencies. On failure everything
// already opened is closed again.
func Build(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	logger := opts.Logger
	if logger == nil {
		logger, err = newLogger(cfg)
		if err != nil {
			return nil, err
		}
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.WithoutCancel(ctx))
		}
	}()

	metrics.Init()
	logger.Info("building application dependencies",
		zap.String("browser_mode", cfg.Browser.Mode),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("history_backend", cfg.History.Backend),
		zap.String("archive_backend", cfg.Archive.Backend),
	)

	if app.registry, err = loadRegistry(cfg, logger); err != nil {
		return nil, err
	}
	if app.listings, err = app.setupListings(ctx); err != nil {
		return nil, err
	}
	if app.runs, err = app.setupHistory(ctx); err != nil {
		return nil, err
	}
	persister, err := app.setupGateway()
	if err != nil {
		return nil, err
	}
	archive, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupProgress(ctx, opts.Registerer); err != nil {
		return nil, err
	}

	clock := system.New()
	runner := crawler.NewRunner(
		app.setupLauncher(),
		crawler.NewExtractor(document.NewParser(), clock),
		clock,
		crawler.RunnerConfig{PolitenessDelay: cfg.PolitenessDelay()},
		logger.Named("runner"),
	)
	app.service = crawler.NewService(app.registry, runner, uuid.NewUUIDGenerator(), clock, crawler.ServiceConfig{
		Persister:     persister,
		Archive:       archive,
		ArchivePrefix: cfg.Archive.Prefix,
		Hasher:        sha256.New(),
		Publisher:     publisher,
		Observer:      app.hub,
	}, logger.Named("service"))

	if cfg.Scheduler.Enabled {
		app.scheduler, err = scheduler.New(cfg.Scheduler.Spec, app.runScheduled, logger.Named("scheduler"))
		if err != nil {
			return nil, err
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst})
		logger.Info("trigger rate limit enabled",
			zap.Float64("rps", cfg.RateLimit.RPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}
	app.apiServer = api.NewServer(api.Dependencies{
		Scraper:  app.service,
		Listings: app.listings,
		Runs:     app.runs,
		Limiter:  limiter,
		Ready:    app.ready,
	}, cfg, logger)

	return app, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// Service exposes the run service for CLI entry points.
func (a *App) Service() *crawler.Service {
	return a.service
}

// Registry exposes the active target table.
func (a *App) Registry() *crawler.Registry {
	return a.registry
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler returns the HTTP handler; useful for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and scheduler and blocks until ctx is canceled
// or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	// No WriteTimeout: the event stream route is long-lived; the other routes
	// carry their own http.TimeoutHandler.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close stops the scheduler, flushes the progress hub and releases clients.
func (a *App) Close(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		// Syncing stderr/stdout fails on some platforms; not actionable.
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

// The hub flushes into the run store, so it closes before the pool.
func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.hub = nil
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcs = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
		a.redis = nil
	}
	// Listing and run stores share this pool; close it once here.
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func (a *App) runScheduled(ctx context.Context) error {
	result, err := a.service.Run(ctx, crawler.RunOptions{}, nil)
	if err != nil {
		return fmt.Errorf("scheduled run: %w", err)
	}
	if result.StoreErr != nil {
		a.logger.Warn("scheduled run could not persist listings",
			zap.String("run_id", result.RunID),
			zap.Error(result.StoreErr),
		)
	}
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func loadRegistry(cfg config.Config, logger *zap.Logger) (*crawler.Registry, error) {
	if cfg.Scrape.TargetsFile == "" {
		registry := crawler.DefaultRegistry()
		logger.Info("using built-in target registry", zap.Int("targets", registry.Len()))
		return registry, nil
	}
	registry, err := crawler.LoadRegistry(cfg.Scrape.TargetsFile)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	logger.Info("loaded target registry",
		zap.String("path", cfg.Scrape.TargetsFile),
		zap.Int("targets", registry.Len()),
	)
	return registry, nil
}

func (a *App) setupLauncher() crawler.BrowserLauncher {
	b := a.cfg.Browser
	var launcher crawler.BrowserLauncher
	switch b.Mode {
	case config.BrowserStatic:
		launcher = a.staticLauncher()
		a.logger.Info("using static page fetcher", zap.Bool("respect_robots", b.RespectRobots))
	case config.BrowserHybrid:
		launcher = hybridfetcher.New(
			a.staticLauncher(),
			a.headlessLauncher(),
			detector.NewHeuristic(b.PromoteThreshold),
			a.logger.Named("hybrid"),
		)
		a.logger.Info("using hybrid page fetcher",
			zap.Bool("respect_robots", b.RespectRobots),
			zap.Int("promote_threshold", b.PromoteThreshold),
		)
	case config.BrowserDisabled:
		launcher = headlessfetcher.NewDisabled()
		a.logger.Warn("browser disabled; every target will use mock listings")
	default:
		launcher = a.headlessLauncher()
		a.logger.Info("using headless page fetcher",
			zap.Int("viewport_width", b.ViewportWidth),
			zap.Int("viewport_height", b.ViewportHeight),
			zap.Duration("nav_timeout", a.cfg.NavTimeout()),
		)
	}
	return metrics.InstrumentLauncher(launcher)
}

func (a *App) staticLauncher() *collyfetcher.Launcher {
	b := a.cfg.Browser
	ua := b.UserAgent
	if ua == "" {
		ua = headlessfetcher.DefaultUserAgent
	}
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     ua,
		RespectRobots: b.RespectRobots,
		Timeout:       a.cfg.NavTimeout(),
	})
}

func (a *App) headlessLauncher() *headlessfetcher.Launcher {
	b := a.cfg.Browser
	return headlessfetcher.NewLauncher(headlessfetcher.Config{
		UserAgent:         b.UserAgent,
		ViewportWidth:     b.ViewportWidth,
		ViewportHeight:    b.ViewportHeight,
		NavigationTimeout: a.cfg.NavTimeout(),
		SettleDelay:       a.cfg.SettleDelay(),
		NoSandbox:         b.NoSandbox,
		ExecPath:          b.ExecPath,
	})
}

func (a *App) postgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:      a.cfg.Storage.Postgres.DSN,
		MaxConns: int32(a.cfg.Storage.Postgres.MaxConns), //nolint:gosec // small config value
	})
	if err != nil {
		return nil, fmt.Errorf("postgres pool init failed: %w", err)
	}
	a.pool = pool
	return pool, nil
}

func (a *App) setupListings(ctx context.Context) (crawler.ListingStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := a.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		listings, err := pgstore.NewListingStore(pool, a.cfg.Storage.Postgres.Table)
		if err != nil {
			return nil, fmt.Errorf("listing store init failed: %w", err)
		}
		if err := listings.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("listing schema: %w", err)
		}
		a.logger.Info("using postgres listing store", zap.String("table", a.cfg.Storage.Postgres.Table))
		return listings, nil
	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr: a.cfg.Storage.Redis.Addr,
			Key:  a.cfg.Storage.Redis.Key,
		})
		if err != nil {
			return nil, fmt.Errorf("redis client init failed: %w", err)
		}
		a.redis = client
		listings, err := redisstore.NewListingStore(client, a.cfg.Storage.Redis.Key)
		if err != nil {
			return nil, fmt.Errorf("listing store init failed: %w", err)
		}
		a.logger.Info("using redis listing store", zap.String("key", a.cfg.Storage.Redis.Key))
		return listings, nil
	default:
		a.logger.Info("using in-memory listing store")
		return memorystorage.NewListingStore(), nil
	}
}

func (a *App) setupHistory(ctx context.Context) (store.RunRepository, error) {
	switch a.cfg.History.Backend {
	case config.BackendNone:
		a.logger.Info("run history disabled")
		return nil, nil
	case config.BackendPostgres:
		pool, err := a.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		runs, err := pgstore.NewRunStore(pool)
		if err != nil {
			return nil, fmt.Errorf("run store init failed: %w", err)
		}
		if err := runs.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("run history schema: %w", err)
		}
		a.logger.Info("using postgres run history")
		return runs, nil
	default:
		return memorystorage.NewRunStore(), nil
	}
}

func (a *App) setupGateway() (crawler.Persister, error) {
	if a.cfg.Gateway.URL == "" {
		a.logger.Info("persisting through the in-process gateway")
		return gateway.NewLocal(a.listings), nil
	}
	client, err := gateway.NewClient(gateway.ClientConfig{
		URL:     a.cfg.Gateway.URL,
		APIKey:  a.cfg.Gateway.APIKey,
		Timeout: time.Duration(a.cfg.Gateway.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway client init failed: %w", err)
	}
	a.logger.Info("persisting through remote gateway", zap.String("url", a.cfg.Gateway.URL))
	return client, nil
}

func (a *App) setupArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.BackendMemory:
		a.logger.Info("archiving runs in memory")
		return memorystorage.NewBlobStore(), nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving runs to disk", zap.String("path", a.cfg.Archive.LocalDir))
		return blobs, nil
	case config.BackendGCS:
		blobs, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcs = blobs
		a.logger.Info("archiving runs to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		return blobs, nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	publisher, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub init failed: %w", err)
	}
	a.publisher = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return publisher, nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("scrape metrics init failed: %w", err)
	}
	sinks := []progress.Sink{promSink}
	if a.runs != nil {
		sinks = append(sinks, progresssinks.NewStoreSink(a.runs, a.logger.Named("run_history")))
	}
	if a.cfg.Progress.LogEvents {
		sinks = append(sinks, progresssinks.NewLogSink(a.logger.Named("events")))
	}
	hubCfg := progress.Config{
		BufferSize:  a.cfg.Progress.BufferSize,
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress_hub"),
	}
	a.hub = progress.NewHub(hubCfg, sinks...)
	a.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("sinks", len(sinks)),
	)
	return nil
}
