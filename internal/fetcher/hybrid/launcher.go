// Package hybrid fetches pages statically and promotes script-rendered pages
// to a headless browser, for browser.mode=hybrid.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// Detector decides whether a static page needs rendering.
type Detector interface {
	ShouldPromote(html string) bool
}

// Launcher pairs a static and a headless launcher.
type Launcher struct {
	static   crawler.BrowserLauncher
	headless crawler.BrowserLauncher
	detector Detector
	logger   *zap.Logger
}

// New builds a Launcher.
func New(static, headless crawler.BrowserLauncher, detector Detector, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{static: static, headless: headless, detector: detector, logger: logger}
}

// Launch starts the static session only; the browser starts on the first
// promotion.
func (l *Launcher) Launch(ctx context.Context) (crawler.BrowserSession, error) {
	s, err := l.static.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch static session: %w", err)
	}
	return &Session{launcher: l, static: s}, nil
}

// Session serves one run.
type Session struct {
	launcher *Launcher
	static   crawler.BrowserSession

	mu          sync.Mutex
	headless    crawler.BrowserSession
	headlessErr error
}

// FetchPage returns the static body unless the detector flags it or the
// static fetch fails; then it re-renders headless. When the browser cannot
// start, the static result stands.
func (s *Session) FetchPage(ctx context.Context, url string) (string, error) {
	html, staticErr := s.static.FetchPage(ctx, url)
	if staticErr == nil && !s.launcher.detector.ShouldPromote(html) {
		return html, nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("fetch %s: %w", url, ctx.Err())
	}

	browser, err := s.browser(ctx)
	if err != nil {
		s.launcher.logger.Debug("promotion skipped, browser unavailable", zap.String("url", url), zap.Error(err))
		if staticErr != nil {
			return "", staticErr
		}
		return html, nil
	}
	s.launcher.logger.Debug("promoting page to headless", zap.String("url", url), zap.Bool("static_failed", staticErr != nil))
	rendered, err := browser.FetchPage(ctx, url)
	if err != nil {
		if staticErr != nil {
			return "", errors.Join(staticErr, err)
		}
		return html, nil
	}
	return rendered, nil
}

// A failed browser launch is remembered for the rest of the run.
func (s *Session) browser(ctx context.Context) (crawler.BrowserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headless == nil && s.headlessErr == nil {
		s.headless, s.headlessErr = s.launcher.headless.Launch(ctx)
	}
	return s.headless, s.headlessErr
}

// Close releases both sessions.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.headless != nil {
		errs = append(errs, s.headless.Close())
		s.headless = nil
	}
	errs = append(errs, s.static.Close())
	return errors.Join(errs...)
}
