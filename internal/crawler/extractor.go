package crawler

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// maxAnchorFallback caps listings harvested from bare links.
	maxAnchorFallback = 20
	// minTitleLength is exclusive: titles must be longer than this.
	minTitleLength = 3
)

// genericContainerSelectors are tried after the target's container hint, in
// priority order. Ties keep the earlier selector.
var genericContainerSelectors = []string{
	"[class*='job-listing']",
	"[class*='job-card']",
	"[class*='job-item']",
	"[class*='job-result']",
	"[class*='job']",
	"[class*='career']",
	"[class*='position']",
	"[class*='opening']",
	"[class*='vacanc']",
	"[class*='posting']",
	"[class*='result']",
	"[data-job-id]",
	"[data-testid*='job']",
}

var anchorKeywords = []string{"job", "career", "position", "search"}

var (
	titleSelectors       = []string{"h1", "h2", "h3", "h4", "h5", "[class*='title']", "[role='heading']"}
	locationSelectors    = []string{"[class*='location']", "[class*='city']", "[data-testid*='location']"}
	descriptionSelectors = []string{"[class*='description']", "[class*='summary']", "[class*='snippet']", "p"}
	postedSelectors      = []string{"time", "[class*='date']", "[class*='posted']"}
	salarySelectors      = []string{"[class*='salary']", "[class*='compensation']", "[class*='pay']"}
	typeSelectors        = []string{"[class*='employment']", "[class*='job-type']", "[class*='jobtype']"}
	experienceSelectors  = []string{"[class*='experience']", "[class*='seniority']", "[class*='level']"}

	salaryRe     = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?\s?[kK]?(?:\s?(?:-|–|to)\s?\$?\s?\d[\d,]*(?:\.\d+)?\s?[kK]?)?`)
	postedRe     = regexp.MustCompile(`(?i)\b(?:posted\s+)?(?:\d+\+?\s+(?:hour|day|week|month)s?\s+ago|today|yesterday|just posted)\b`)
	experienceRe = regexp.MustCompile(`(?i)\b\d+\s*(?:\+|-\s*\d+)?\s*(?:years?|yrs?)\b`)

	employmentTypes = []struct{ needle, label string }{
		{"full-time", "Full-time"},
		{"full time", "Full-time"},
		{"part-time", "Part-time"},
		{"part time", "Part-time"},
		{"contract", "Contract"},
		{"internship", "Internship"},
		{"temporary", "Temporary"},
	}
	seniorityLevels = []struct{ needle, label string }{
		{"principal", "Principal"},
		{"staff", "Staff"},
		{"senior", "Senior"},
		{"sr.", "Senior"},
		{"lead", "Lead"},
		{"junior", "Junior"},
		{"jr.", "Junior"},
		{"entry level", "Entry level"},
		{"entry-level", "Entry level"},
		{"new grad", "Entry level"},
		{"mid-level", "Mid-level"},
	}
)

// Extractor turns rendered pages into JobListing candidates.
type Extractor struct {
	parser DocumentParser
	clock  Clock
}

// NewExtractor wires the HTML engine and clock.
func NewExtractor(parser DocumentParser, clock Clock) *Extractor {
	return &Extractor{parser: parser, clock: clock}
}

// Extract parses html and returns accepted listings for one page of target.
// It returns an error only when the document cannot be parsed; zero accepted
// listings is a valid result.
func (e *Extractor) Extract(target CrawlTarget, page int, html string) ([]JobListing, error) {
	doc, err := e.parser.Parse(html)
	if err != nil {
		return nil, fmt.Errorf("parse page %d of %s: %w", page, target.Name, err)
	}
	elements, _ := selectListingElements(doc, target.Selectors.ListingContainer)
	scrapedAt := e.clock.Now()

	listings := make([]JobListing, 0, len(elements))
	for _, el := range elements {
		listing := extractListing(el, target)
		if utf8.RuneCountInString(listing.Title) <= minTitleLength {
			continue
		}
		listing.ID = ListingID(target.Name, page, len(listings), scrapedAt)
		listing.ScrapedAt = scrapedAt
		listings = append(listings, listing)
	}
	return listings, nil
}

// selectListingElements evaluates the container hint and the generic
// selectors, keeping the one with strictly more matches than any earlier
// candidate. With no matches it falls back to keyword anchors. The winning
// selector is returned for logging; it is empty for the anchor fallback.
func selectListingElements(doc DocumentQuery, containerHint string) ([]Element, string) {
	candidates := make([]string, 0, len(genericContainerSelectors)+1)
	candidates = append(candidates, containerHint)
	candidates = append(candidates, genericContainerSelectors...)

	var (
		best     []Element
		bestSel  string
		bestSize int
	)
	for _, sel := range candidates {
		if strings.TrimSpace(sel) == "" {
			continue
		}
		matches := doc.MatchAll(sel)
		if len(matches) > bestSize {
			best, bestSel, bestSize = matches, sel, len(matches)
		}
	}
	if bestSize > 0 {
		return best, bestSel
	}
	return keywordAnchors(doc), ""
}

func keywordAnchors(doc DocumentQuery) []Element {
	var out []Element
	for _, a := range doc.MatchAll("a[href]") {
		href, _ := a.Attr("href")
		href = strings.ToLower(href)
		for _, kw := range anchorKeywords {
			if strings.Contains(href, kw) {
				out = append(out, a)
				break
			}
		}
		if len(out) == maxAnchorFallback {
			break
		}
	}
	return out
}

// extractListing pulls every field independently; none of them can fail.
func extractListing(el Element, target CrawlTarget) JobListing {
	hints := target.Selectors
	text := el.Text()

	title := firstText(el, prepend(hints.Title, titleSelectors)...)
	if title == "" {
		title = firstLine(text)
	}
	if title == "" {
		title = DefaultTitle
	}

	company := firstText(el, hints.Company)
	if company == "" {
		company = target.Name
	}

	description := firstText(el, prepend(hints.Description, descriptionSelectors)...)
	if description == "" {
		description = collapse(text)
	}
	if description == "" {
		description = fmt.Sprintf("%s opportunity at %s.", title, company)
	}

	return JobListing{
		Title:       title,
		Company:     company,
		Location:    orDefault(firstText(el, prepend(hints.Location, locationSelectors)...), DefaultLocation),
		Description: truncateRunes(description, MaxDescriptionLength),
		URL:         ResolveListingURL(target.EntryURL, listingHref(el, hints.URL)),
		PostedDate:  orDefault(firstNonEmpty(firstText(el, prepend(hints.PostedDate, postedSelectors)...), postedRe.FindString(text)), DefaultPostedDate),
		Salary:      orDefault(firstNonEmpty(firstText(el, prepend(hints.Salary, salarySelectors)...), collapse(salaryRe.FindString(text))), DefaultSalary),
		Type:        orDefault(firstNonEmpty(firstText(el, prepend(hints.Type, typeSelectors)...), matchLabel(text, employmentTypes)), DefaultType),
		Experience:  orDefault(firstNonEmpty(firstText(el, prepend(hints.Experience, experienceSelectors)...), experienceRe.FindString(text), matchLabel(title, seniorityLevels)), DefaultExperience),
	}
}

func listingHref(el Element, hint string) string {
	if hint != "" {
		for _, m := range el.MatchAll(hint) {
			if href, ok := m.Attr("href"); ok && strings.TrimSpace(href) != "" {
				return href
			}
		}
	}
	if strings.EqualFold(el.Tag(), "a") {
		if href, ok := el.Attr("href"); ok {
			return href
		}
	}
	for _, m := range el.MatchAll("a[href]") {
		if href, ok := m.Attr("href"); ok && strings.TrimSpace(href) != "" {
			return href
		}
	}
	return ""
}

// firstText returns the collapsed text of the first non-empty match across
// selectors, tried in order.
func firstText(el Element, selectors ...string) string {
	for _, sel := range selectors {
		if strings.TrimSpace(sel) == "" {
			continue
		}
		for _, m := range el.MatchAll(sel) {
			if t := collapse(m.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

func matchLabel(text string, table []struct{ needle, label string }) string {
	lower := strings.ToLower(text)
	for _, entry := range table {
		if strings.Contains(lower, entry.needle) {
			return entry.label
		}
	}
	return ""
}

func prepend(hint string, defaults []string) []string {
	out := make([]string, 0, len(defaults)+1)
	out = append(out, hint)
	return append(out, defaults...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
