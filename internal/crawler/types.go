package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Placeholder values used whenever a listing field cannot be extracted.
const (
	DefaultTitle      = "Software Engineer"
	DefaultLocation   = "Not specified"
	DefaultPostedDate = "Recently posted"
	DefaultSalary     = "Competitive"
	DefaultType       = "Full-time"
	DefaultExperience = "Not specified"

	// MaxDescriptionLength bounds JobListing.Description in runes.
	MaxDescriptionLength = 500

	defaultPageParam  = "page"
	pagePlaceholder   = "{page}"
	offsetPlaceholder = "{offset}"
)

// SelectorHints holds advisory CSS selectors for one target. Any of them may
// be empty or stale; the extractor always has generic fallbacks.
type SelectorHints struct {
	ListingContainer string `json:"listingContainer" yaml:"listingContainer"`
	Title            string `json:"title" yaml:"title"`
	Company          string `json:"company" yaml:"company"`
	Location         string `json:"location" yaml:"location"`
	Description      string `json:"description" yaml:"description"`
	URL              string `json:"url" yaml:"url"`
	PostedDate       string `json:"postedDate,omitempty" yaml:"postedDate"`
	Salary           string `json:"salary,omitempty" yaml:"salary"`
	Type             string `json:"type,omitempty" yaml:"type"`
	Experience       string `json:"experience,omitempty" yaml:"experience"`
}

// Pagination bounds how many sequential result pages are visited.
//   - MaxPages: pages to fetch, 1 when unset.
//   - PageParam: query parameter carrying the page number (default "page").
//   - Pattern: optional URL template containing "{page}" or "{offset}";
//     overrides PageParam. "{offset}" is (n-1)*PageSize for page n.
type Pagination struct {
	MaxPages  int    `json:"maxPages" yaml:"maxPages"`
	PageParam string `json:"pageParam,omitempty" yaml:"pageParam"`
	Pattern   string `json:"pattern,omitempty" yaml:"pattern"`
	PageSize  int    `json:"pageSize,omitempty" yaml:"pageSize"`
}

// Pages returns the effective page count.
func (p Pagination) Pages() int {
	if p.MaxPages <= 0 {
		return 1
	}
	return p.MaxPages
}

// PageURL returns the URL for page n (1-based). Page 1 is always entry.
func (p Pagination) PageURL(entry string, n int) (string, error) {
	if n <= 1 {
		return entry, nil
	}
	if p.Pattern != "" {
		return strings.NewReplacer(
			pagePlaceholder, strconv.Itoa(n),
			offsetPlaceholder, strconv.Itoa((n-1)*p.PageSize),
		).Replace(p.Pattern), nil
	}
	u, err := url.Parse(entry)
	if err != nil {
		return "", fmt.Errorf("parse entry url: %w", err)
	}
	param := p.PageParam
	if param == "" {
		param = defaultPageParam
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CrawlTarget is one job-listing source site.
type CrawlTarget struct {
	Name       string        `json:"name" yaml:"name"`
	EntryURL   string        `json:"entryUrl" yaml:"entryUrl"`
	Selectors  SelectorHints `json:"selectorHints" yaml:"selectors"`
	Pagination Pagination    `json:"pagination" yaml:"pagination"`
}

// Validate checks that the target can be crawled.
func (t CrawlTarget) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("target name is required")
	}
	u, err := url.Parse(t.EntryURL)
	if err != nil {
		return fmt.Errorf("target %q: parse entry url: %w", t.Name, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("target %q: entry url must be absolute", t.Name)
	}
	if pat := t.Pagination.Pattern; pat != "" {
		hasOffset := strings.Contains(pat, offsetPlaceholder)
		if !hasOffset && !strings.Contains(pat, pagePlaceholder) {
			return fmt.Errorf("target %q: pagination pattern must contain %s or %s", t.Name, pagePlaceholder, offsetPlaceholder)
		}
		if hasOffset && t.Pagination.PageSize <= 0 {
			return fmt.Errorf("target %q: pagination pattern with %s needs a positive pageSize", t.Name, offsetPlaceholder)
		}
	}
	return nil
}

// JobListing is one normalized job posting.
type JobListing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PostedDate  string    `json:"postedDate"`
	Salary      string    `json:"salary"`
	Type        string    `json:"type"`
	Experience  string    `json:"experience"`
	ScrapedAt   time.Time `json:"scrapedAt"`
}

// ListingID composes a listing id from the target name, the page and in-page
// indexes, and the millisecond timestamp. Two runs of the same target within
// one millisecond can collide.
func ListingID(target string, page, index int, at time.Time) string {
	return fmt.Sprintf("%s-%d-%d-%d", slug(target), page, index, at.UnixMilli())
}

// ListingFilter narrows listing queries. Empty fields match everything.
type ListingFilter struct {
	Company string
	Keyword string
	Limit   int
}

// Matches reports whether listing satisfies the company and keyword filters.
func (f ListingFilter) Matches(listing JobListing) bool {
	if f.Company != "" && !containsLower(listing.Company, f.Company) {
		return false
	}
	if f.Keyword == "" {
		return true
	}
	return containsLower(listing.Title, f.Keyword) ||
		containsLower(listing.Description, f.Keyword) ||
		containsLower(listing.Company, f.Keyword)
}

// FilterListings applies the keyword part of f to listings and returns the
// matches in order. The company filter selects targets before the run, so
// only the keyword is applied here.
func FilterListings(listings []JobListing, keyword string) []JobListing {
	if keyword == "" {
		return listings
	}
	f := ListingFilter{Keyword: keyword}
	out := make([]JobListing, 0, len(listings))
	for _, l := range listings {
		if f.Matches(l) {
			out = append(out, l)
		}
	}
	return out
}

// DedupeByURL drops listings without a URL and keeps the last listing for
// each URL, in first-seen order.
func DedupeByURL(listings []JobListing) []JobListing {
	index := make(map[string]int, len(listings))
	out := make([]JobListing, 0, len(listings))
	for _, l := range listings {
		if l.URL == "" {
			continue
		}
		if i, ok := index[l.URL]; ok {
			out[i] = l
			continue
		}
		index[l.URL] = len(out)
		out = append(out, l)
	}
	return out
}
