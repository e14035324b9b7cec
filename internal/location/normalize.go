// Package location canonicalizes city names and holds the client-side
// location preference.
package location

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// AllCities is the city sentinel that disables city filtering.
const AllCities = "all"

// Normalize folds a free-text city into its comparison key: NFKD decomposition,
// removal of everything except ASCII word characters, whitespace and hyphens,
// whitespace collapse, trim, lowercase. Combining marks produced by the
// decomposition are outside the kept set, so "Hyderābad" folds to "hyderabad".
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	decomposed := norm.NFKD.String(raw)

	var b strings.Builder
	b.Grow(len(decomposed))
	pendingSpace := false
	for _, r := range decomposed {
		switch {
		case isSpace(r):
			pendingSpace = true
		case isWord(r) || r == '-':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// isWord matches the ASCII word class [A-Za-z0-9_].
func isWord(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// isSpace matches the ECMAScript whitespace class, which has U+FEFF and
// lacks NEL.
func isSpace(r rune) bool {
	if r == '\u0085' {
		return false
	}
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// EffectiveCity returns the trimmed explicit city when present, otherwise the
// preference's city.
func EffectiveCity(param string, pref Preference) string {
	if c := strings.TrimSpace(param); c != "" {
		return c
	}
	return strings.TrimSpace(pref.City)
}
