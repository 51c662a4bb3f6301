package dedup

import (
	"strings"
	"unicode"
)

// NormalizeName normalizes an author name for comparison:
//   - Converts to lowercase
//   - Detects and reorders "Last, First" format to "First Last"
//   - Removes all non-letter, non-space characters (apostrophes, periods, hyphens, etc.)
//   - Collapses multiple spaces to a single space
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToLower(name)

	// "Last, First" -> "First Last"
	if idx := strings.Index(name, ","); idx >= 0 {
		last := strings.TrimSpace(name[:idx])
		first := strings.TrimSpace(name[idx+1:])
		if first != "" {
			name = first + " " + last
		} else {
			name = last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	prevSpace := false

	for _, r := range name {
		if unicode.IsLetter(r) {
			sb.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimRight(sb.String(), " ")
}

// Surname returns the normalized family name of an author: the last token
// after NormalizeName, so "Smith, John", "John Smith" and "J. Smith" agree.
func Surname(name string) string {
	norm := NormalizeName(name)
	if norm == "" {
		return ""
	}
	if idx := strings.LastIndexByte(norm, ' '); idx >= 0 {
		return norm[idx+1:]
	}
	return norm
}

// surnameSet collects the distinct surnames of an author list.
func surnameSet(authors []string) map[string]struct{} {
	set := make(map[string]struct{}, len(authors))
	for _, a := range authors {
		if s := Surname(a); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// sharesSurname reports whether the two sets have at least one surname in common.
func sharesSurname(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for s := range a {
		if _, ok := b[s]; ok {
			return true
		}
	}
	return false
}

// SharesAuthor reports whether two author lists have at least one surname in common.
func SharesAuthor(a, b []string) bool {
	return sharesSurname(surnameSet(a), surnameSet(b))
}
