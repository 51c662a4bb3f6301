package domain

import (
	"regexp"
	"strings"
	"unicode"
)

var doiPrefixPattern = regexp.MustCompile(`(?i)^(doi:\s*|https?://(dx\.)?doi\.org/)`)

// NormalizeDOI strips URL and "doi:" prefixes and whitespace and lower-cases
// the result. DOIs are case-insensitive by definition.
func NormalizeDOI(doi string) string {
	d := strings.TrimSpace(doi)
	if d == "" {
		return ""
	}
	d = doiPrefixPattern.ReplaceAllString(d, "")
	d = strings.Join(strings.Fields(d), "")
	d = strings.TrimRight(d, ".")
	return strings.ToLower(d)
}

// NormalizeTitle lower-cases a title, replaces punctuation with spaces and
// collapses runs of whitespace.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
