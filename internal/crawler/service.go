package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/logging"
)

const (
	defaultArchivePrefix = "runs"
	archiveContentType   = "application/json"
	defaultTopic         = "career-crawler.run-completed"
)

// ServiceConfig carries optional collaborators of a run beyond scraping.
//   - Persister: receives the batch once per run (nil skips persistence).
//   - Archive: stores the batch as JSON (nil disables archiving).
//   - Hasher: digests the archive payload for the notification (optional).
//   - Publisher, Topic: announce finished runs (nil publisher disables).
//   - Observer: receives every event in addition to the caller's emitter.
type ServiceConfig struct {
	Persister     Persister
	Archive       BlobStore
	ArchivePrefix string
	Hasher        Hasher
	Publisher     Publisher
	Topic         string
	Observer      Emitter
}

// RunOptions selects what a run covers.
type RunOptions struct {
	// Company keeps targets whose name contains it; empty runs all targets.
	Company string
}

// RunResult summarises a finished run.
type RunResult struct {
	RunID      string
	Jobs       []JobListing
	Companies  int
	Stored     int
	StoreErr   error
	ArchiveURI string
	// ArchiveSHA256 is the hex digest of the archived payload, if hashed.
	ArchiveSHA256 string
	StartedAt     time.Time
	ScrapedAt     time.Time
}

// RunNotification is published after each completed run.
type RunNotification struct {
	RunID         string    `json:"runId"`
	TotalJobs     int       `json:"totalJobs"`
	Companies     int       `json:"companies"`
	Stored        int       `json:"stored"`
	ArchiveURI    string    `json:"archiveUri,omitempty"`
	ArchiveSHA256 string    `json:"archiveSha256,omitempty"`
	ScrapedAt     time.Time `json:"scrapedAt"`
}

type runArchive struct {
	RunID     string       `json:"runId"`
	StartedAt time.Time    `json:"startedAt"`
	ScrapedAt time.Time    `json:"scrapedAt"`
	Companies int          `json:"companies"`
	Stored    int          `json:"stored"`
	Jobs      []JobListing `json:"jobs"`
}

// Service runs the registry end to end: scrape, persist once, archive,
// notify. It is safe for concurrent runs; each run owns its browser session.
type Service struct {
	registry *Registry
	runner   *Runner
	ids      IDGenerator
	clock    Clock
	cfg      ServiceConfig
	logger   *zap.Logger
}

// NewService wires a Service.
func NewService(
	registry *Registry,
	runner *Runner,
	ids IDGenerator,
	clock Clock,
	cfg ServiceConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = defaultArchivePrefix
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultTopic
	}
	return &Service{
		registry: registry,
		runner:   runner,
		ids:      ids,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Registry exposes the active target table.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Run executes one run. Events go to emit (may be nil) and to the configured
// observer. Persistence, archive and notification failures are logged and
// reported in the result; only cancellation or an internal fault returns an
// error, in which case an error event replaces complete.
func (s *Service) Run(ctx context.Context, opts RunOptions, emit Emitter) (result RunResult, err error) {
	emitter := MultiEmitter(emit, s.cfg.Observer)
	result.StartedAt = s.clock.Now()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("run %s panicked: %v", result.RunID, rec)
		}
		if err != nil {
			s.logger.Error("run failed", zap.String("run_id", result.RunID), zap.Error(err))
			s.send(ctx, emitter, Event{
				Type:    EventError,
				RunID:   result.RunID,
				Err:     err.Error(),
				Message: "scrape run failed",
			})
		}
	}()

	result.RunID, err = s.ids.NewID()
	if err != nil {
		return result, fmt.Errorf("generate run id: %w", err)
	}
	logger := logging.ForRun(s.logger, result.RunID, opts.Company)

	targets := s.registry.Filter(opts.Company)
	result.Companies = len(targets)
	s.send(ctx, emitter, Event{
		Type:    EventStart,
		RunID:   result.RunID,
		Total:   len(targets),
		Message: fmt.Sprintf("Starting scrape of %d companies", len(targets)),
	})
	logger.Info("run started", zap.Int("targets", len(targets)))

	result.Jobs, err = s.runner.Run(ctx, result.RunID, targets, emitter)
	if err != nil {
		return result, fmt.Errorf("run %s: %w", result.RunID, err)
	}
	result.ScrapedAt = s.clock.Now()

	result.Stored, result.StoreErr = s.persist(ctx, result.Jobs)
	stored := Event{Type: EventJobsStored, RunID: result.RunID, Stored: result.Stored, Count: len(result.Jobs)}
	if result.StoreErr != nil {
		logger.Error("persisting listings failed", zap.Int("listings", len(result.Jobs)), zap.Error(result.StoreErr))
		stored.Err = result.StoreErr.Error()
	}
	s.send(ctx, emitter, stored)

	result.ArchiveURI, result.ArchiveSHA256 = s.archive(ctx, result, logger)
	s.notify(ctx, result, logger)

	s.send(ctx, emitter, Event{
		Type:   EventComplete,
		RunID:  result.RunID,
		Count:  len(result.Jobs),
		Total:  result.Companies,
		Stored: result.Stored,
		TS:     result.ScrapedAt,
	})
	logger.Info("run completed",
		zap.Int("listings", len(result.Jobs)),
		zap.Int("stored", result.Stored),
		zap.Duration("elapsed", result.ScrapedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (s *Service) persist(ctx context.Context, jobs []JobListing) (int, error) {
	if s.cfg.Persister == nil || len(jobs) == 0 {
		return 0, nil
	}
	stored, err := s.cfg.Persister.Persist(ctx, jobs)
	if err != nil {
		return 0, fmt.Errorf("persist listings: %w", err)
	}
	return stored, nil
}

func (s *Service) archive(ctx context.Context, result RunResult, logger *zap.Logger) (string, string) {
	if s.cfg.Archive == nil {
		return "", ""
	}
	payload, err := json.Marshal(runArchive{
		RunID:     result.RunID,
		StartedAt: result.StartedAt,
		ScrapedAt: result.ScrapedAt,
		Companies: result.Companies,
		Stored:    result.Stored,
		Jobs:      result.Jobs,
	})
	if err != nil {
		logger.Warn("encode run archive failed", zap.Error(err))
		return "", ""
	}
	key := ArchivePath(s.cfg.ArchivePrefix, result.RunID, result.ScrapedAt)
	uri, err := s.cfg.Archive.PutObject(ctx, key, archiveContentType, payload)
	if err != nil {
		logger.Warn("archive run failed", zap.String("path", key), zap.Error(err))
		return "", ""
	}
	var digest string
	if s.cfg.Hasher != nil {
		if digest, err = s.cfg.Hasher.Hash(payload); err != nil {
			logger.Warn("hash run archive failed", zap.Error(err))
			digest = ""
		}
	}
	return uri, digest
}

func (s *Service) notify(ctx context.Context, result RunResult, logger *zap.Logger) {
	if s.cfg.Publisher == nil {
		return
	}
	msgID, err := s.cfg.Publisher.Publish(ctx, s.cfg.Topic, RunNotification{
		RunID:         result.RunID,
		TotalJobs:     len(result.Jobs),
		Companies:     result.Companies,
		Stored:        result.Stored,
		ArchiveURI:    result.ArchiveURI,
		ArchiveSHA256: result.ArchiveSHA256,
		ScrapedAt:     result.ScrapedAt,
	})
	if err != nil {
		logger.Warn("publish run notification failed", zap.Error(err))
		return
	}
	logger.Debug("run notification published", zap.String("message_id", msgID))
}

func (s *Service) send(ctx context.Context, emit Emitter, evt Event) {
	if emit == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = s.clock.Now()
	}
	if err := emit.Emit(ctx, evt); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("event not delivered", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

// ArchivePath returns prefix/YYYY/MM/DD/runID.json for at in UTC.
func ArchivePath(prefix, runID string, at time.Time) string {
	return path.Join(prefix, at.UTC().Format("2006/01/02"), runID+".json")
}

// MultiEmitter fans events out to every non-nil emitter in order and returns
// the first delivery error. Later emitters still receive the event.
func MultiEmitter(emitters ...Emitter) Emitter {
	out := make(multiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(ctx context.Context, evt Event) error {
	var first error
	for _, e := range m {
		if err := e.Emit(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}
