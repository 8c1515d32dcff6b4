package utils

import (
	"strings"
	"unicode"
)

// NormalizeBarcode canonicalizes a barcode for cross-catalog equality:
// whitespace of any kind is removed, letters are upper-cased and leading
// zeros are stripped ("0460..." and "460..." are the same EAN in the two
// exports). The bool is false for the "no barcode" case.
//
// NormalizeBarcode(NormalizeBarcode(x)) == NormalizeBarcode(x).
func NormalizeBarcode(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) || r == '\u200B' || r == '\uFEFF' {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	s := b.String()
	if s == "" {
		return "", false
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		// all zeros: keep one so "000" and "0" collapse to the same key
		return "0", true
	}
	return trimmed, true
}
