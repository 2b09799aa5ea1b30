package ingest

import (
	"strings"
	"unicode"
)

// Preprocess trims text and collapses every whitespace run to a single space.
func Preprocess(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pending := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			pending = true
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
