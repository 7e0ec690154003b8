// Package redis provides a listing cache shared between processes, stored as
// a single Redis hash keyed by listing URL.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

const defaultKey = "career:listings"

// Config selects the server and hash key.
type Config struct {
	// Addr is host:port or a redis:// URL.
	Addr string
	Key  string
}

// ListingStore stores listings as JSON values in one hash.
type ListingStore struct {
	client goredis.UniversalClient
	key    string
}

// NewClient parses cfg.Addr and verifies connectivity.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	opts := &goredis.Options{Addr: cfg.Addr}
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		parsed, err := goredis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewListingStore wraps an existing client.
func NewListingStore(client goredis.UniversalClient, key string) (*ListingStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		key = defaultKey
	}
	return &ListingStore{client: client, key: key}, nil
}

// Upsert writes every listing under its URL in one HSET.
func (s *ListingStore) Upsert(ctx context.Context, listings []crawler.JobListing) (int, error) {
	batch := crawler.DedupeByURL(listings)
	if len(batch) == 0 {
		return 0, nil
	}
	values := make([]any, 0, len(batch)*2)
	for _, l := range batch {
		payload, err := json.Marshal(l)
		if err != nil {
			return 0, fmt.Errorf("marshal listing %s: %w", l.URL, err)
		}
		values = append(values, l.URL, payload)
	}
	if err := s.client.HSet(ctx, s.key, values...).Err(); err != nil {
		return 0, fmt.Errorf("hset %s: %w", s.key, err)
	}
	return len(batch), nil
}

// List returns matching listings, newest first.
func (s *ListingStore) List(ctx context.Context, filter crawler.ListingFilter) ([]crawler.JobListing, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]crawler.JobListing, 0, len(all))
	for _, l := range all {
		if filter.Matches(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScrapedAt.Equal(out[j].ScrapedAt) {
			return out[i].ScrapedAt.After(out[j].ScrapedAt)
		}
		return out[i].URL < out[j].URL
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete removes matching listings and reports how many fields were removed.
func (s *ListingStore) Delete(ctx context.Context, filter crawler.ListingFilter) (int, error) {
	all, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	var fields []string
	for _, l := range all {
		if filter.Matches(l) {
			fields = append(fields, l.URL)
		}
	}
	if len(fields) == 0 {
		return 0, nil
	}
	removed, err := s.client.HDel(ctx, s.key, fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("hdel %s: %w", s.key, err)
	}
	return int(removed), nil
}

func (s *ListingStore) load(ctx context.Context) ([]crawler.JobListing, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	listings := make([]crawler.JobListing, 0, len(raw))
	for url, payload := range raw {
		var l crawler.JobListing
		if err := json.Unmarshal([]byte(payload), &l); err != nil {
			return nil, fmt.Errorf("decode listing %s: %w", url, err)
		}
		listings = append(listings, l)
	}
	return listings, nil
}
