package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RunnerConfig tunes the orchestrator.
//   - PolitenessDelay: wait inserted between pages and between targets.
type RunnerConfig struct {
	PolitenessDelay time.Duration
}

// Runner drives targets through fetch, extract and fallback, strictly in
// order: one target at a time, one page at a time.
type Runner struct {
	launcher  BrowserLauncher
	extractor *Extractor
	clock     Clock
	pause     pauseController
	delay     time.Duration
	logger    *zap.Logger
}

// NewRunner wires the orchestrator. A nil launcher behaves as if the browser
// can never start.
func NewRunner(
	launcher BrowserLauncher,
	extractor *Extractor,
	clock Clock,
	cfg RunnerConfig,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := cfg.PolitenessDelay
	if delay < 0 {
		delay = 0
	}
	return &Runner{
		launcher:  launcher,
		extractor: extractor,
		clock:     clock,
		pause:     &timerPauseController{},
		delay:     delay,
		logger:    logger,
	}
}

// Run processes targets in order and returns every listing produced. Each
// target contributes at least one listing. The only error is cancellation of
// ctx, reported at a target boundary together with the listings gathered so
// far.
func (r *Runner) Run(ctx context.Context, runID string, targets []CrawlTarget, emit Emitter) ([]JobListing, error) {
	session := &sessionHolder{launcher: r.launcher}
	defer func() {
		if err := session.close(); err != nil {
			r.logger.Warn("browser session close failed", zap.String("run_id", runID), zap.Error(err))
		}
	}()

	var all []JobListing
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return all, fmt.Errorf("run canceled before %s: %w", target.Name, err)
		}
		if i > 0 {
			r.pause.Pause(ctx, r.delay)
		}
		tr := &targetRun{
			Runner:  r,
			runID:   runID,
			target:  target,
			index:   i,
			total:   len(targets),
			emit:    emit,
			session: session,
			logger:  r.logger.With(zap.String("run_id", runID), zap.String("company", target.Name)),
		}
		all = append(all, tr.run(ctx)...)
	}
	return all, nil
}

type targetRun struct {
	*Runner
	runID   string
	target  CrawlTarget
	index   int
	total   int
	emit    Emitter
	session *sessionHolder
	logger  *zap.Logger
}

// run never fails: browser, page and extraction failures all degrade to
// synthesized listings, and a panic is converted into company_error.
func (t *targetRun) run(ctx context.Context) (listings []JobListing) {
	t.send(ctx, Event{
		Type:    EventCompanyStart,
		Company: t.target.Name,
		Index:   t.index + 1,
		Total:   t.total,
		URL:     t.target.EntryURL,
	})
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		evt := Event{Type: EventCompanyError, Company: t.target.Name, Err: fmt.Sprintf("panic: %v", rec)}
		if len(listings) == 0 {
			listings = []JobListing{PlaceholderListing(t.target, 1, t.clock.Now())}
			evt.Jobs = listings
			evt.Fallback = FallbackPlaceholder
		}
		evt.Count = len(listings)
		t.logger.Error("target processing panicked", zap.Any("panic", rec))
		t.send(ctx, evt)
	}()

	browser, err := t.session.get(ctx)
	if err != nil {
		mocks := MockListings(t.target, t.clock.Now())
		t.logger.Warn("browser launch failed; using mock listings", zap.Error(err))
		t.send(ctx, Event{
			Type:     EventCompanyError,
			Company:  t.target.Name,
			Err:      err.Error(),
			Count:    len(mocks),
			Jobs:     mocks,
			Fallback: FallbackMock,
		})
		return mocks
	}

	pages := t.target.Pagination.Pages()
	for page := 1; page <= pages; page++ {
		if page > 1 {
			t.pause.Pause(ctx, t.delay)
		}
		listings = append(listings, t.runPage(ctx, browser, page, pages)...)
	}
	t.send(ctx, Event{Type: EventCompanyComplete, Company: t.target.Name, Count: len(listings)})
	return listings
}

func (t *targetRun) runPage(ctx context.Context, browser BrowserSession, page, pages int) []JobListing {
	pageURL, err := t.target.Pagination.PageURL(t.target.EntryURL, page)
	if err != nil {
		pageURL = t.target.EntryURL
	}
	t.send(ctx, Event{
		Type:     EventCompanyPage,
		Company:  t.target.Name,
		Page:     page,
		MaxPages: pages,
		URL:      pageURL,
	})

	var found []JobListing
	if err == nil {
		found, err = t.fetchAndExtract(ctx, browser, pageURL, page)
	}
	fallback := FallbackNone
	if err != nil {
		t.logger.Warn("page failed; using placeholder",
			zap.Int("page", page),
			zap.String("url", pageURL),
			zap.Error(err),
		)
	}
	if len(found) == 0 {
		found = []JobListing{PlaceholderListing(t.target, page, t.clock.Now())}
		fallback = FallbackPlaceholder
	}

	t.send(ctx, Event{
		Type:     EventCompanyFound,
		Company:  t.target.Name,
		Page:     page,
		Count:    len(found),
		Fallback: fallback,
	})
	for i := range found {
		t.send(ctx, Event{Type: EventJobFound, Company: t.target.Name, Page: page, Job: &found[i]})
	}
	t.send(ctx, Event{Type: EventCompanyPageComplete, Company: t.target.Name, Page: page, Count: len(found)})
	return found
}

func (t *targetRun) fetchAndExtract(ctx context.Context, browser BrowserSession, pageURL string, page int) ([]JobListing, error) {
	html, err := browser.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	listings, err := t.extractor.Extract(t.target, page, html)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("page extracted", zap.Int("page", page), zap.Int("listings", len(listings)))
	return listings, nil
}

func (t *targetRun) send(ctx context.Context, evt Event) {
	if t.emit == nil {
		return
	}
	evt.RunID = t.runID
	evt.TS = t.clock.Now()
	if err := t.emit.Emit(ctx, evt); err != nil {
		t.logger.Debug("event not delivered", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

// sessionHolder launches the run's browser on first use. A failed launch is
// retried by the next target.
type sessionHolder struct {
	launcher BrowserLauncher
	session  BrowserSession
}

func (h *sessionHolder) get(ctx context.Context) (BrowserSession, error) {
	if h.session != nil {
		return h.session, nil
	}
	if h.launcher == nil {
		return nil, ErrBrowserUnavailable
	}
	s, err := h.launcher.Launch(ctx)
	if err != nil {
		if !errors.Is(err, ErrBrowserUnavailable) {
			err = fmt.Errorf("%w: %w", ErrBrowserUnavailable, err)
		}
		return nil, err
	}
	h.session = s
	return s, nil
}

func (h *sessionHolder) close() error {
	if h.session == nil {
		return nil
	}
	err := h.session.Close()
	h.session = nil
	return err
}
