package hybrid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/career-crawler/internal/crawler"
	"github.com/JakeFAU/career-crawler/internal/headless/detector"
)

type fakeLauncher struct {
	pages     map[string]string
	fetchErr  error
	launchErr error
	launches  int
	fetches   []string
	closed    int
}

func (f *fakeLauncher) Launch(context.Context) (crawler.BrowserSession, error) {
	f.launches++
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return &fakeSession{owner: f}, nil
}

type fakeSession struct{ owner *fakeLauncher }

func (s *fakeSession) FetchPage(_ context.Context, url string) (string, error) {
	s.owner.fetches = append(s.owner.fetches, url)
	if s.owner.fetchErr != nil {
		return "", s.owner.fetchErr
	}
	return s.owner.pages[url], nil
}

func (s *fakeSession) Close() error {
	s.owner.closed++
	return nil
}

const listingPage = `<html><body><ul class="jobs"><li class="job"><a href="/j/1">Backend Engineer</a></li></ul>` +
	`<p>We are hiring across teams in several offices worldwide.</p></body></html>`

func TestSessionKeepsServerRenderedPages(t *testing.T) {
	t.Parallel()

	static := &fakeLauncher{pages: map[string]string{"https://a.example/jobs": listingPage}}
	headless := &fakeLauncher{}
	l := New(static, headless, detector.NewHeuristic(64), nil)

	sess, err := l.Launch(context.Background())
	require.NoError(t, err)
	html, err := sess.FetchPage(context.Background(), "https://a.example/jobs")
	require.NoError(t, err)
	assert.Equal(t, listingPage, html)
	assert.Zero(t, headless.launches, "browser starts lazily")
	require.NoError(t, sess.Close())
	assert.Equal(t, 1, static.closed)
}

func TestSessionPromotesApplicationShells(t *testing.T) {
	t.Parallel()

	static := &fakeLauncher{pages: map[string]string{
		"https://a.example/jobs?page=1": `<div id="__next"></div>`,
		"https://a.example/jobs?page=2": `<div id="__next"></div>`,
	}}
	headless := &fakeLauncher{pages: map[string]string{
		"https://a.example/jobs?page=1": listingPage,
		"https://a.example/jobs?page=2": listingPage,
	}}
	sess, err := New(static, headless, detector.NewHeuristic(0), nil).Launch(context.Background())
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		html, err := sess.FetchPage(context.Background(), fmt.Sprintf("https://a.example/jobs?page=%d", i))
		require.NoError(t, err)
		assert.Equal(t, listingPage, html)
	}
	assert.Equal(t, 1, headless.launches, "one browser per session")
	assert.Len(t, headless.fetches, 2)

	require.NoError(t, sess.Close())
	assert.Equal(t, 1, headless.closed)
	assert.Equal(t, 1, static.closed)
}

func TestSessionPromotesStaticFailures(t *testing.T) {
	t.Parallel()

	static := &fakeLauncher{fetchErr: errors.New("status 403")}
	headless := &fakeLauncher{pages: map[string]string{"https://a.example": listingPage}}
	sess, err := New(static, headless, detector.NewHeuristic(0), nil).Launch(context.Background())
	require.NoError(t, err)

	html, err := sess.FetchPage(context.Background(), "https://a.example")
	require.NoError(t, err)
	assert.Equal(t, listingPage, html)
}

func TestSessionFallsBackWhenBrowserUnavailable(t *testing.T) {
	t.Parallel()

	shell := `<div id="root"></div>`
	static := &fakeLauncher{pages: map[string]string{"https://a.example": shell}}
	headless := &fakeLauncher{launchErr: fmt.Errorf("%w: no chrome", crawler.ErrBrowserUnavailable)}
	sess, err := New(static, headless, detector.NewHeuristic(0), nil).Launch(context.Background())
	require.NoError(t, err)

	for range 3 {
		html, err := sess.FetchPage(context.Background(), "https://a.example")
		require.NoError(t, err)
		assert.Equal(t, shell, html)
	}
	assert.Equal(t, 1, headless.launches, "launch failure is remembered")
}

func TestSessionJoinsErrorsWhenBothFail(t *testing.T) {
	t.Parallel()

	static := &fakeLauncher{fetchErr: errors.New("static boom")}
	headless := &fakeLauncher{fetchErr: errors.New("render boom")}
	sess, err := New(static, headless, detector.NewHeuristic(0), nil).Launch(context.Background())
	require.NoError(t, err)

	_, err = sess.FetchPage(context.Background(), "https://a.example")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "static boom") && strings.Contains(err.Error(), "render boom"))
}

func TestLaunchFailsWhenStaticFails(t *testing.T) {
	t.Parallel()

	static := &fakeLauncher{launchErr: errors.New("no network")}
	_, err := New(static, &fakeLauncher{}, detector.NewHeuristic(0), nil).Launch(context.Background())
	require.Error(t, err)
}
