package crawler

import (
	"fmt"
	"time"
)

// mockPage is the page index carried by mock listings; no page was fetched.
const mockPage = 0

var mockProfiles = []struct {
	title, salary, experience, location string
}{
	{"Senior Software Engineer", "$140,000 - $190,000", "5+ years", "Remote"},
	{"Full Stack Developer", "$110,000 - $150,000", "3+ years", "Hybrid"},
}

// MockListings returns the fixed pair of synthetic listings used when no
// browser session could be started for target. Each carries its own URL
// fragment so upsert-by-URL keeps both.
func MockListings(target CrawlTarget, now time.Time) []JobListing {
	out := make([]JobListing, 0, len(mockProfiles))
	for i, p := range mockProfiles {
		out = append(out, JobListing{
			ID:          ListingID(target.Name, mockPage, i, now),
			Title:       p.title,
			Company:     target.Name,
			Location:    p.location,
			Description: fmt.Sprintf("Join %s as a %s building reliable, large-scale products.", target.Name, p.title),
			URL:         fmt.Sprintf("%s#mock-%d", target.EntryURL, i+1),
			PostedDate:  DefaultPostedDate,
			Salary:      p.salary,
			Type:        DefaultType,
			Experience:  p.experience,
			ScrapedAt:   now,
		})
	}
	return out
}

// PlaceholderListing returns the single listing standing in for a page that
// failed to load or yielded no accepted candidates.
func PlaceholderListing(target CrawlTarget, page int, now time.Time) JobListing {
	description := fmt.Sprintf(
		"Explore current career opportunities at %s. Visit the careers page for the latest openings.",
		target.Name,
	)
	return JobListing{
		ID:          ListingID(target.Name, page, 0, now),
		Title:       DefaultTitle,
		Company:     target.Name,
		Location:    DefaultLocation,
		Description: truncateRunes(description, MaxDescriptionLength),
		URL:         target.EntryURL,
		PostedDate:  DefaultPostedDate,
		Salary:      DefaultSalary,
		Type:        DefaultType,
		Experience:  DefaultExperience,
		ScrapedAt:   now,
	}
}
