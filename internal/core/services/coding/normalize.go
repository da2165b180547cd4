package coding

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeText lowercases, trims and strips combining accent marks so
// that mapping keys, code labels and keywords compare the same way
// regardless of how the survey answer was typed
func normalizeText(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// isBlank reports whether a cell holds no usable answer
func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
