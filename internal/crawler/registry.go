package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry is the immutable, ordered table of crawl targets.
type Registry struct {
	targets []CrawlTarget
}

// NewRegistry validates targets and freezes them in the given order.
func NewRegistry(targets []CrawlTarget) (*Registry, error) {
	if len(targets) == 0 {
		return nil, errors.New("registry requires at least one target")
	}
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(t.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[key] = struct{}{}
	}
	return &Registry{targets: append([]CrawlTarget(nil), targets...)}, nil
}

// DefaultRegistry returns the built-in career-site table.
func DefaultRegistry() *Registry {
	return &Registry{targets: DefaultTargets()}
}

// Targets returns a copy of every target in registry order.
func (r *Registry) Targets() []CrawlTarget {
	return append([]CrawlTarget(nil), r.targets...)
}

// Len reports the number of targets.
func (r *Registry) Len() int {
	return len(r.targets)
}

// Filter returns targets whose name contains company, case-insensitively.
// An empty filter returns every target.
func (r *Registry) Filter(company string) []CrawlTarget {
	company = strings.TrimSpace(company)
	if company == "" {
		return r.Targets()
	}
	out := make([]CrawlTarget, 0, len(r.targets))
	for _, t := range r.targets {
		if containsLower(t.Name, company) {
			out = append(out, t)
		}
	}
	return out
}

type targetsFile struct {
	Targets []CrawlTarget `yaml:"targets"`
}

// LoadRegistry reads a YAML targets file and builds a Registry from it.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path.
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	var file targetsFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode targets file: %w", err)
	}
	return NewRegistry(file.Targets)
}

// DefaultTargets is the built-in list of company career pages.
func DefaultTargets() []CrawlTarget {
	return []CrawlTarget{
		{
			Name:     "Google",
			EntryURL: "https://www.google.com/about/careers/applications/jobs/results/?q=software%20engineer",
			Selectors: SelectorHints{
				ListingContainer: "li.lLd3Je",
				Title:            "h3.QJPWVe",
				Location:         "span.r0wTof",
				Description:      "div.Xsxa1e",
				URL:              "a.WpHeLc",
				Experience:       "span.wVSTAb",
			},
			Pagination: Pagination{MaxPages: 2},
		},
		{
			Name:     "Microsoft",
			EntryURL: "https://jobs.careers.microsoft.com/global/en/search?q=software%20engineer",
			Selectors: SelectorHints{
				ListingContainer: "div.ms-List-cell",
				Title:            "h2",
				Location:         "i[data-icon-name='POI'] + span",
				Description:      "div[class*='description']",
				URL:              "a",
				PostedDate:       "i[data-icon-name='Clock'] + span",
			},
			Pagination: Pagination{MaxPages: 2, PageParam: "pg"},
		},
		{
			Name:     "Amazon",
			EntryURL: "https://www.amazon.jobs/en/search?base_query=software+engineer",
			Selectors: SelectorHints{
				ListingContainer: "div.job-tile",
				Title:            "h3.job-title",
				Location:         "div.location-and-id",
				Description:      "div.qualifications-preview",
				URL:              "a.job-link",
				PostedDate:       "h2.posting-date",
			},
			Pagination: Pagination{MaxPages: 2, PageSize: 10, Pattern: "https://www.amazon.jobs/en/search?base_query=software+engineer&offset={offset}"},
		},
		{
			Name:     "Apple",
			EntryURL: "https://jobs.apple.com/en-us/search?search=software%20engineer",
			Selectors: SelectorHints{
				ListingContainer: "tbody[id^='accordion']",
				Title:            "a.table--advanced-search__title",
				Location:         "span.table--advanced-search__location-sub",
				Description:      "p[id$='summary']",
				URL:              "a.table--advanced-search__title",
				PostedDate:       "span.table--advanced-search__date",
			},
		},
		{
			Name:     "Meta",
			EntryURL: "https://www.metacareers.com/jobs?q=software%20engineer",
			Selectors: SelectorHints{
				ListingContainer: "a[href^='/jobs/']",
				Title:            "div._6g3g",
				Location:         "span._8lfp",
				URL:              "a[href^='/jobs/']",
			},
		},
		{
			Name:     "Netflix",
			EntryURL: "https://explore.jobs.netflix.net/careers?query=engineer",
			Selectors: SelectorHints{
				ListingContainer: "div.position-card",
				Title:            "div.position-title",
				Location:         "p.position-location",
				Type:             "div.position-department",
			},
		},
		{
			Name:     "Stripe",
			EntryURL: "https://stripe.com/jobs/search?query=engineer",
			Selectors: SelectorHints{
				ListingContainer: "tr.TableRow",
				Title:            "a.JobsListings__link",
				Location:         "span.JobsListings__locationDisplayName",
				URL:              "a.JobsListings__link",
				Type:             "td.JobsListings__tableCell--departments",
			},
			Pagination: Pagination{MaxPages: 2},
		},
		{
			Name:     "Shopify",
			EntryURL: "https://www.shopify.com/careers/search?keywords=engineer",
			Selectors: SelectorHints{
				ListingContainer: "a[href*='/careers/']",
				Title:            "p.font-bold",
				Location:         "p.text-body-sm",
				URL:              "a[href*='/careers/']",
			},
		},
	}
}
