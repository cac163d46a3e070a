package user

import (
	"strings"
	"unicode"
)

// SanitizeDisplayName normalizes a client-supplied display name: tags
// and control characters are stripped, whitespace runs collapse to a
// single space. ENS names and hex addresses pass through unchanged.
func SanitizeDisplayName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	inTag := false
	for _, r := range name {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case inTag:
		case unicode.IsControl(r):
			// Tabs and newlines separate words; the Fields collapse
			// below folds any resulting runs into one space.
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
