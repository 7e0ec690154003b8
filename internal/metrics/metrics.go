// Package metrics exposes Prometheus collectors for the HTTP surface and page
// fetching, plus the /metrics handler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	httpRateLimitedTotal       *prometheus.CounterVec
	pageFetchesTotal           *prometheus.CounterVec
	pageFetchDurationSeconds   *prometheus.HistogramVec
	browserLaunchesTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 30, 120, 600},
			},
			[]string{"method", "route"},
		)

		httpRateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Trigger requests rejected by the rate limiter, labeled by route.",
			},
			[]string{"route"},
		)

		pageFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_page_fetches_total",
				Help: "Listing page fetches, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		pageFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrape_page_fetch_duration_seconds",
				Help:    "Page render time including the settle delay, labeled by site.",
				Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
			},
			[]string{"site"},
		)

		browserLaunchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_browser_launches_total",
				Help: "Browser launch attempts, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimited counts a request rejected by the trigger guard.
func ObserveRateLimited(route string) {
	httpRateLimitedTotal.WithLabelValues(route).Inc()
}

// ObservePageFetch records one page fetch against the page's host.
func ObservePageFetch(pageURL string, err error, duration time.Duration) {
	site := SanitizeSite(pageURL)
	result := "success"
	if err != nil {
		result = "error"
	}
	pageFetchesTotal.WithLabelValues(site, result).Inc()
	pageFetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveBrowserLaunch records a launch attempt.
func ObserveBrowserLaunch(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	browserLaunchesTotal.WithLabelValues(result).Inc()
}
