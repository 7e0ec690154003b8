// Package document adapts goquery to the crawler's DocumentQuery capability.
package document

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/career-crawler/internal/crawler"
)

// Parser builds goquery documents from serialized HTML.
type Parser struct{}

// NewParser returns a goquery-backed parser.
func NewParser() Parser {
	return Parser{}
}

// Parse implements crawler.DocumentParser.
func (Parser) Parse(html string) (crawler.DocumentQuery, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return selection{sel: doc.Selection}, nil
}

// selection wraps a single-node (or document root) goquery selection.
type selection struct {
	sel *goquery.Selection
}

// MatchAll returns descendants matching selector. goquery yields an empty
// selection for selectors that fail to compile.
func (s selection) MatchAll(selector string) []crawler.Element {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	found := s.sel.Find(selector)
	out := make([]crawler.Element, 0, found.Length())
	found.Each(func(_ int, node *goquery.Selection) {
		out = append(out, selection{sel: node})
	})
	return out
}

func (s selection) Text() string {
	return s.sel.Text()
}

func (s selection) Attr(name string) (string, bool) {
	return s.sel.Attr(name)
}

func (s selection) Tag() string {
	return goquery.NodeName(s.sel)
}
