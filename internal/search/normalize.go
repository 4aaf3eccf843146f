package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// normalizeQuery applies Unicode NFC normalization, whitespace
// collapse, and optional lowercasing (spec §4.11 stage 1).
func normalizeQuery(q string, lowercase bool) string {
	q = norm.NFC.String(q)
	q = collapseWhitespace(q)
	if lowercase {
		q = strings.ToLower(q)
	}
	return q
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteRune(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
