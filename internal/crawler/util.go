package crawler

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

func containsLower(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func slug(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "target"
	}
	return s
}

// collapse trims text and folds internal whitespace runs to single spaces.
func collapse(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// firstLine returns the first non-blank line of text, whitespace-collapsed.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = collapse(line); line != "" {
			return line
		}
	}
	return ""
}

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
