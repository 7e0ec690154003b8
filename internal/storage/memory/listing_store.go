package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// ListingStore is the process-local listing cache. Listings are keyed by URL.
type ListingStore struct {
	mu       sync.RWMutex
	listings map[string]crawler.JobListing
}

// NewListingStore constructs an empty ListingStore.
func NewListingStore() *ListingStore {
	return &ListingStore{listings: make(map[string]crawler.JobListing)}
}

// Upsert stores each listing under its URL, replacing earlier rows.
func (s *ListingStore) Upsert(_ context.Context, listings []crawler.JobListing) (int, error) {
	batch := crawler.DedupeByURL(listings)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range batch {
		s.listings[l.URL] = l
	}
	return len(batch), nil
}

// List returns matching listings, newest first.
func (s *ListingStore) List(_ context.Context, filter crawler.ListingFilter) ([]crawler.JobListing, error) {
	s.mu.RLock()
	out := make([]crawler.JobListing, 0, len(s.listings))
	for _, l := range s.listings {
		if filter.Matches(l) {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()

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

// Delete removes matching listings and reports how many were dropped.
func (s *ListingStore) Delete(_ context.Context, filter crawler.ListingFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for url, l := range s.listings {
		if filter.Matches(l) {
			delete(s.listings, url)
			deleted++
		}
	}
	return deleted, nil
}
