package ledger

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize lowercases a value, strips diacritics and collapses internal
// whitespace. It is idempotent, so already-normalized input passes through
// unchanged.
func Normalize(s string) string {
	stripped, _, err := transform.String(stripAccents, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// SearchKey derives the duplicate-detection key for a medication from its
// identifying triple. Two medications with the same key are the same product.
func SearchKey(name, presentation, manufacturer string) string {
	return Normalize(name) + "|" + Normalize(presentation) + "|" + Normalize(manufacturer)
}
