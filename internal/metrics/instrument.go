package metrics

import (
	"context"
	"time"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// InstrumentLauncher wraps a launcher so launches and page fetches are
// recorded. Init must have been called.
func InstrumentLauncher(next crawler.BrowserLauncher) crawler.BrowserLauncher {
	return instrumentedLauncher{next: next}
}

type instrumentedLauncher struct {
	next crawler.BrowserLauncher
}

func (l instrumentedLauncher) Launch(ctx context.Context) (crawler.BrowserSession, error) {
	session, err := l.next.Launch(ctx)
	ObserveBrowserLaunch(err)
	if err != nil {
		return nil, err
	}
	return instrumentedSession{next: session}, nil
}

type instrumentedSession struct {
	next crawler.BrowserSession
}

func (s instrumentedSession) FetchPage(ctx context.Context, url string) (string, error) {
	start := time.Now()
	html, err := s.next.FetchPage(ctx, url)
	ObservePageFetch(url, err, time.Since(start))
	return html, err
}

func (s instrumentedSession) Close() error {
	return s.next.Close()
}
