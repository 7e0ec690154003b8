package crawler

import (
	"net/url"
	"strings"
)

// ResolveListingURL resolves href against entry. It returns entry when href is
// empty, a fragment or script link, or when the result is not an absolute
// http(s) URL.
func ResolveListingURL(entry, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return entry
	}
	base, err := url.Parse(entry)
	if err != nil {
		return entry
	}
	ref, err := url.Parse(href)
	if err != nil {
		return entry
	}
	resolved := base.ResolveReference(ref)
	if resolved.Host == "" || (resolved.Scheme != "http" && resolved.Scheme != "https") {
		return entry
	}
	resolved.Fragment = ""
	return resolved.String()
}
