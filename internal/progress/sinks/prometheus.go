package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// PrometheusSink exports scrape run metrics via Prometheus. It owns all
// collectors for runs started/completed/running and per-company counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	pages        *prometheus.CounterVec
	listings     *prometheus.CounterVec
	targetErrors *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrape_runs_started_total",
			Help: "Total scrape runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrape_runs_completed_total",
			Help: "Total scrape runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scrape_runs_running",
			Help: "Current number of running scrape runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scrape_run_duration_seconds",
			Help:    "Wall time per finished scrape run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrape_pages_total",
			Help: "Listing pages visited per company.",
		}, []string{"company"}),
		listings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrape_listings_total",
			Help: "Listings produced partitioned by source.",
		}, []string{"source"}),
		targetErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrape_target_errors_total",
			Help: "Targets that failed and fell back to synthesized listings.",
		}, []string{"company"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.pages,
		s.listings,
		s.targetErrors,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register run collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []crawler.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt crawler.Event) {
	switch evt.Type {
	case crawler.EventStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID, evt.TS) {
			s.runsRunning.Inc()
		}
	case crawler.EventComplete:
		s.finish(evt, "success")
	case crawler.EventError:
		s.finish(evt, "error")
	case crawler.EventCompanyPage:
		s.pages.WithLabelValues(evt.Company).Inc()
	case crawler.EventCompanyFound:
		s.listings.WithLabelValues(sourceLabel(evt.Fallback)).Add(float64(evt.Count))
	case crawler.EventCompanyError:
		s.targetErrors.WithLabelValues(evt.Company).Inc()
		if n := len(evt.Jobs); n > 0 {
			s.listings.WithLabelValues(sourceLabel(evt.Fallback)).Add(float64(n))
		}
	}
}

func (s *PrometheusSink) finish(evt crawler.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	started, ok := s.tracker.complete(evt.RunID)
	if !ok {
		return
	}
	s.runsRunning.Dec()
	if d := evt.TS.Sub(started); d > 0 {
		s.runDuration.WithLabelValues(result).Observe(d.Seconds())
	}
}

func sourceLabel(kind crawler.FallbackKind) string {
	if kind == crawler.FallbackNone {
		return "extracted"
	}
	return string(kind)
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]time.Time
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]time.Time)}
}

func (t *runTracker) start(id string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = at
	return true
}

func (t *runTracker) complete(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	started, ok := t.running[id]
	if !ok {
		return time.Time{}, false
	}
	delete(t.running, id)
	return started, true
}
