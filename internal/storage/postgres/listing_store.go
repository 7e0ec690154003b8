package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

const (
	defaultListingTable = "job_listings"
	listingColumns      = "id, url, title, company, location, description, posted_date, salary, employment_type, experience, scraped_at"
	listingColumnCount  = 11
	// Postgres caps bind parameters at 65535 per statement.
	maxRowsPerInsert = 1000
)

// ListingStore persists listings in Postgres, upserting on url.
type ListingStore struct {
	pool  dbPool
	table string
}

// NewListingStore constructs a store from an existing pool.
func NewListingStore(pool dbPool, table string) (*ListingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultListingTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ListingStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the listings table when it does not exist.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT NOT NULL,
	url TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	company TEXT NOT NULL,
	location TEXT NOT NULL,
	description TEXT NOT NULL,
	posted_date TEXT NOT NULL,
	salary TEXT NOT NULL,
	employment_type TEXT NOT NULL,
	experience TEXT NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Upsert writes listings in multi-row statements. A listing whose url is
// already stored replaces the stored row.
func (s *ListingStore) Upsert(ctx context.Context, listings []crawler.JobListing) (int, error) {
	batch := crawler.DedupeByURL(listings)
	stored := 0
	for start := 0; start < len(batch); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(batch))
		query, args := s.upsertStatement(batch[start:end])
		tag, err := s.pool.Exec(ctx, query, args...)
		if err != nil {
			return stored, fmt.Errorf("upsert listings: %w", err)
		}
		stored += int(tag.RowsAffected())
	}
	return stored, nil
}

func (s *ListingStore) upsertStatement(rows []crawler.JobListing) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", s.table, listingColumns)
	args := make([]any, 0, len(rows)*listingColumnCount)
	for i, l := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 0; c < listingColumnCount; c++ {
			if c > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", i*listingColumnCount+c+1)
		}
		b.WriteString(")")
		args = append(args,
			l.ID, l.URL, l.Title, l.Company, l.Location, l.Description,
			l.PostedDate, l.Salary, l.Type, l.Experience, l.ScrapedAt,
		)
	}
	b.WriteString(` ON CONFLICT (url) DO UPDATE SET
	id = EXCLUDED.id,
	title = EXCLUDED.title,
	company = EXCLUDED.company,
	location = EXCLUDED.location,
	description = EXCLUDED.description,
	posted_date = EXCLUDED.posted_date,
	salary = EXCLUDED.salary,
	employment_type = EXCLUDED.employment_type,
	experience = EXCLUDED.experience,
	scraped_at = EXCLUDED.scraped_at`)
	return b.String(), args
}

// filterClause matches the in-memory ListingFilter semantics: case-insensitive
// substring on company, and on title/description/company for the keyword.
// Arguments must go through likePattern so wildcards match literally.
const filterClause = `($1 = '' OR company ILIKE '%' || $1 || '%' ESCAPE '\')
	AND ($2 = '' OR title ILIKE '%' || $2 || '%' ESCAPE '\' OR description ILIKE '%' || $2 || '%' ESCAPE '\' OR company ILIKE '%' || $2 || '%' ESCAPE '\')`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern escapes ILIKE metacharacters in user filter text.
func likePattern(s string) string {
	return likeEscaper.Replace(s)
}

// List returns matching listings, newest first.
func (s *ListingStore) List(ctx context.Context, filter crawler.ListingFilter) ([]crawler.JobListing, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE %s
ORDER BY scraped_at DESC, url
LIMIT NULLIF($3, 0)`, listingColumns, s.table, filterClause)
	rows, err := s.pool.Query(ctx, query, likePattern(filter.Company), likePattern(filter.Keyword), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	listings := []crawler.JobListing{}
	for rows.Next() {
		var l crawler.JobListing
		if err := rows.Scan(
			&l.ID, &l.URL, &l.Title, &l.Company, &l.Location, &l.Description,
			&l.PostedDate, &l.Salary, &l.Type, &l.Experience, &l.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return listings, nil
}

// Delete removes matching listings and reports how many rows were dropped.
func (s *ListingStore) Delete(ctx context.Context, filter crawler.ListingFilter) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.table, filterClause)
	tag, err := s.pool.Exec(ctx, query, likePattern(filter.Company), likePattern(filter.Keyword))
	if err != nil {
		return 0, fmt.Errorf("delete listings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
