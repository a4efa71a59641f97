package parser

import (
	"regexp"
	"strconv"
)

// ratingPatterns are tried in order. Phrasings that name the scale come
// before the bare number so "4 out of 5" never reads as 5.
var ratingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*out of\s*\d+`),
	regexp.MustCompile(`(?i)Rating\s*(\d+\.?\d*)`),
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*stars?`),
	regexp.MustCompile(`(?i)(\d+\.?\d*)\s*/\s*\d+`),
	regexp.MustCompile(`(\d+\.?\d*)`),
}

// ParseRating extracts a numeric rating from a label such as
// "Rating 4 out of 5" or "3.5 stars". It returns nil when no pattern matches.
func ParseRating(label string) *float64 {
	if label == "" {
		return nil
	}
	for _, pattern := range ratingPatterns {
		match := pattern.FindStringSubmatch(label)
		if len(match) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		return &value
	}
	return nil
}
