package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func TestSessionFetchPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "careers-test" || r.Header.Get("Accept-Language") != "en-US" {
			http.Error(w, "bad client", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div class="job-card">Go Engineer</div></body></html>`))
	}))
	defer srv.Close()

	launcher := New(Config{
		UserAgent: "careers-test",
		Timeout:   time.Second,
		Headers:   http.Header{"Accept-Language": {"en-US"}},
	})
	session, err := launcher.Launch(context.Background())
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	for i := 0; i < 2; i++ {
		html, err := session.FetchPage(context.Background(), srv.URL+"/careers")
		require.NoError(t, err, "revisit %d", i)
		require.Contains(t, html, "job-card")
	}
}

func TestSessionFetchPageHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	session, err := New(Config{Timeout: time.Second}).Launch(context.Background())
	require.NoError(t, err)
	_, err = session.FetchPage(context.Background(), srv.URL)
	require.ErrorContains(t, err, "status 404")
}

func TestSessionFetchPageCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	session, err := New(Config{Timeout: 5 * time.Second}).Launch(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = session.FetchPage(ctx, srv.URL)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	l := New(Config{Headers: http.Header{"X-Trace": {"yes"}}})
	var body string
	var fetchErr error
	hooks := &stubHooks{}
	l.configureCollectorHooks(hooks, &body, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	req := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(req)
	require.Equal(t, "yes", req.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{Body: []byte("<html></html>")})
	require.Equal(t, "<html></html>", body)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	require.ErrorContains(t, fetchErr, "status 502")
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }
