package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes an identity field for comparison: lower-case,
// diacritics stripped, every rune outside [a-z0-9@. ] dropped, trimmed.
// Both sides of every comparison go through Normalize.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	decomposed := norm.NFD.String(strings.ToLower(s))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if keepRune(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func keepRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '@', r == '.', r == ' ':
		return true
	}
	return false
}
