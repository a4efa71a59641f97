// Package parser holds the string-level helpers shared by the extractors:
// text normalization, rating parsing and record validation.
package parser

import (
	"regexp"
	"strings"
)

// htmlTag only matches real tags, so literal comparisons such as "3 < 4" survive.
var htmlTag = regexp.MustCompile(`</?[A-Za-z][^>]*>`)

// NormalizeText turns raw element text into a single trimmed line.
//
// Newlines, carriage returns and tabs become spaces, remaining control
// characters are dropped, markup tags are removed and whitespace runs are
// collapsed. NormalizeText(NormalizeText(s)) == NormalizeText(s).
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r < 32:
		default:
			b.WriteRune(r)
		}
	}
	out := htmlTag.ReplaceAllString(b.String(), " ")

	return strings.Join(strings.Fields(out), " ")
}
