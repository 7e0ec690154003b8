// Package scheduler triggers the daily scrape run on a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSpec runs once a day at 06:00 server time.
const DefaultSpec = "0 6 * * *"

// RunFunc performs one scheduled run.
type RunFunc func(ctx context.Context) error

// Scheduler wraps robfig/cron. A tick that arrives while the previous run is
// still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	run    RunFunc
	logger *zap.Logger
	job    cron.Job
	ctx    context.Context
}

// New creates a Scheduler; spec uses the standard five-field cron syntax.
func New(spec string, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("run func is required")
	}
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{s: logger.Sugar()}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cl)),
		spec:   spec,
		run:    run,
		logger: logger,
		ctx:    context.Background(),
	}
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.tick))
	return s, nil
}

// Start registers the job and starts the cron loop. Runs use ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	if _, err := s.cron.AddJob(s.spec, s.job); err != nil {
		return fmt.Errorf("cron.AddJob: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop halts the cron loop and waits for an in-flight run up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with a run in flight")
	}
}

// Next returns the next scheduled fire time after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	sched, err := cron.ParseStandard(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now)
}

func (s *Scheduler) tick() {
	start := time.Now()
	s.logger.Info("scheduled run started")
	if err := s.run(s.ctx); err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	s.logger.Info("scheduled run finished", zap.Duration("elapsed", time.Since(start)))
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
