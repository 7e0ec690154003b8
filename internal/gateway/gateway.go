// Package gateway hands finished listing batches to the Persistence Gateway,
// either over HTTP or straight into a local ListingStore.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// PersistRequest is the gateway request body.
type PersistRequest struct {
	Jobs []crawler.JobListing `json:"jobs"`
}

// PersistResponse is the gateway response body.
type PersistResponse struct {
	Success bool   `json:"success"`
	Stored  int    `json:"stored"`
	Error   string `json:"error,omitempty"`
}

// ClientConfig configures the HTTP gateway client.
type ClientConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client posts batches to a remote gateway.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a Client. URL must be absolute.
func NewClient(cfg ClientConfig) (*Client, error) {
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("gateway url must be http(s), got %q", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Persist implements crawler.Persister.
func (c *Client) Persist(ctx context.Context, listings []crawler.JobListing) (int, error) {
	if listings == nil {
		listings = []crawler.JobListing{}
	}
	body, err := json.Marshal(PersistRequest{Jobs: listings})
	if err != nil {
		return 0, fmt.Errorf("marshal gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post to gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out PersistResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode gateway response: %w", err)
	}
	if !out.Success {
		return 0, fmt.Errorf("gateway rejected batch: %s", out.Error)
	}
	return out.Stored, nil
}

// Local persists straight into a ListingStore in this process.
type Local struct {
	store crawler.ListingStore
}

// NewLocal wraps store.
func NewLocal(store crawler.ListingStore) *Local {
	return &Local{store: store}
}

// Persist implements crawler.Persister.
func (l *Local) Persist(ctx context.Context, listings []crawler.JobListing) (int, error) {
	if l == nil || l.store == nil {
		return 0, fmt.Errorf("listing store is not configured")
	}
	stored, err := l.store.Upsert(ctx, listings)
	if err != nil {
		return stored, fmt.Errorf("upsert listings: %w", err)
	}
	return stored, nil
}
