package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/config"
	"github.com/JakeFAU/career-crawler/internal/crawler"
	"github.com/JakeFAU/career-crawler/internal/metrics"
	"github.com/JakeFAU/career-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/career-crawler/internal/progress"
	"github.com/JakeFAU/career-crawler/internal/store"
)

const (
	maxBodyBytes = 10 << 20
	// Bounded so a slow client applies backpressure to the run.
	streamBuffer = 8
)

// Scraper runs one scrape over the target registry.
type Scraper interface {
	Run(ctx context.Context, opts crawler.RunOptions, emit crawler.Emitter) (crawler.RunResult, error)
}

// ReadyFunc reports whether downstream dependencies can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Dependencies are the collaborators behind the HTTP surface. Listings and
// Runs may be nil, in which case their routes answer 503.
type Dependencies struct {
	Scraper  Scraper
	Listings crawler.ListingStore
	Runs     store.RunRepository
	Limiter  *ratelimit.Limiter
	Ready    ReadyFunc
}

// Server wires HTTP handlers to the scrape service and stores.
type Server struct {
	router   chi.Router
	scraper  Scraper
	listings crawler.ListingStore
	ready    ReadyFunc
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		scraper:  deps.Scraper,
		listings: deps.Listings,
		ready:    deps.Ready,
		logger:   logger.Named("api"),
	}
	runs := NewRunHandler(deps.Runs, s.logger)

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	withTimeout := timeoutMiddleware(timeout)
	limit := func(next http.Handler) http.Handler { return next }
	if deps.Limiter != nil {
		limit = deps.Limiter.Middleware
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.With(withTimeout).Get("/scrape-jobs", s.scrapeJobs)
			r.With(withTimeout).Post("/scrape-jobs", s.scrapeJobs)
			r.With(withTimeout).Get("/cron/scrape-daily", s.scrapeDaily)
			r.With(withTimeout).Post("/cron/scrape-daily", s.scrapeDaily)
			// Long-lived; must not sit behind http.TimeoutHandler, which buffers.
			r.Get("/scrape-jobs/stream", s.streamScrapeJobs)
		})
		r.Group(func(r chi.Router) {
			r.Use(withTimeout)
			r.Get("/jobs", s.listJobs)
			r.Post("/jobs", s.persistJobs)
			r.Delete("/jobs", s.deleteJobs)
			r.Get("/runs", runs.ListRuns)
			r.Route("/runs/{run_id}", func(r chi.Router) {
				r.Get("/", runs.GetRun)
				r.Get("/targets", runs.ListRunTargets)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	Company string `json:"company"`
	Keyword string `json:"keyword"`
}

type scrapeResponse struct {
	Success   bool                 `json:"success"`
	Jobs      []crawler.JobListing `json:"jobs"`
	Total     int                  `json:"total"`
	ScrapedAt time.Time            `json:"scrapedAt"`
}

type dailyResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	TotalJobs int       `json:"totalJobs"`
	Companies int       `json:"companies"`
	Stored    int       `json:"stored"`
	ScrapedAt time.Time `json:"scrapedAt"`
}

// scrapeJobs runs the registry in batch mode. The run is detached from the
// request so a departed caller still gets its results persisted.
func (s *Server) scrapeJobs(w http.ResponseWriter, r *http.Request) {
	req, err := decodeScrapeRequest(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.scraper.Run(context.WithoutCancel(r.Context()), crawler.RunOptions{Company: req.Company}, nil)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	jobs := crawler.FilterListings(result.Jobs, req.Keyword)
	if jobs == nil {
		jobs = []crawler.JobListing{}
	}
	writeJSON(w, http.StatusOK, scrapeResponse{
		Success:   true,
		Jobs:      jobs,
		Total:     len(jobs),
		ScrapedAt: result.ScrapedAt,
	})
}

func (s *Server) scrapeDaily(w http.ResponseWriter, r *http.Request) {
	result, err := s.scraper.Run(context.WithoutCancel(r.Context()), crawler.RunOptions{}, nil)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := dailyResponse{
		Success:   true,
		Message:   fmt.Sprintf("Scraped %d jobs from %d companies", len(result.Jobs), result.Companies),
		TotalJobs: len(result.Jobs),
		Companies: result.Companies,
		Stored:    result.Stored,
		ScrapedAt: result.ScrapedAt,
	}
	if result.StoreErr != nil {
		resp.Message += "; persisting failed: " + result.StoreErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamScrapeJobs pushes run events as server-sent events. The run stops
// when the client disconnects.
func (s *Server) streamScrapeJobs(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("event stream unsupported", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream := progress.NewStream(streamBuffer)
	go func() {
		defer stream.Close()
		if _, err := s.scraper.Run(ctx, crawler.RunOptions{}, stream); err != nil {
			s.logger.Debug("streamed run ended with error", zap.Error(err))
		}
	}()

	for evt := range stream.Events() {
		if err := writeEvent(w, rc, evt); err != nil {
			s.logger.Info("event stream client gone", zap.String("run_id", evt.RunID), zap.Error(err))
			cancel()
			stream.Abandon()
			break
		}
	}
	// Wait for the run to wind down so its goroutine never outlives the request.
	for range stream.Events() {
	}
}

func writeEvent(w io.Writer, rc *http.ResponseController, evt crawler.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := rc.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}

func decodeScrapeRequest(r *http.Request) (scrapeRequest, error) {
	q := r.URL.Query()
	req := scrapeRequest{
		Company: strings.TrimSpace(q.Get("company")),
		Keyword: strings.TrimSpace(q.Get("keyword")),
	}
	if r.Method != http.MethodPost || r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}
	var body scrapeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return req, nil
		}
		return req, errors.New("invalid JSON")
	}
	if c := strings.TrimSpace(body.Company); c != "" {
		req.Company = c
	}
	if k := strings.TrimSpace(body.Keyword); k != "" {
		req.Keyword = k
	}
	return req, nil
}

func listingFilter(r *http.Request) (crawler.ListingFilter, error) {
	q := r.URL.Query()
	filter := crawler.ListingFilter{
		Company: strings.TrimSpace(q.Get("company")),
		Keyword: strings.TrimSpace(q.Get("keyword")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"success":false,"error":"request timed out"}`)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) FlushError() error {
	return http.NewResponseController(rw.ResponseWriter).Flush()
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure is writeError for endpoints whose bodies carry a success flag.
func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
