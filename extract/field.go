// Package extract turns a fetched book page into records. Field lookups are
// declarative selector chains; the first selector that yields a non-empty
// value wins and a field-specific default covers the rest.
package extract

import (
	"strings"

	"github.com/aluiziolira/go-scrape-goodreads/dom"
	"github.com/aluiziolira/go-scrape-goodreads/parser"
)

// Field describes how to locate one scalar value.
type Field struct {
	Name      string
	Selectors []string
	// Attr reads an attribute of the matched element instead of its text.
	Attr string
	// Default is returned when no selector matches. Nil means "absent".
	Default *string
	// Transform post-processes the matched text. A transform that returns
	// "" makes the lookup fall through to the next selector.
	Transform func(string) string
}

// Extract returns the first non-empty match or the field default. It never
// fails: selectors that error are treated as misses.
func (f Field) Extract(n dom.Node) *string {
	for _, selector := range f.Selectors {
		if value, ok := f.match(n, selector); ok {
			return &value
		}
	}
	if f.Default == nil {
		return nil
	}
	v := *f.Default
	return &v
}

// Value is Extract flattened to a string, "" for an absent value.
func (f Field) Value(n dom.Node) string {
	if v := f.Extract(n); v != nil {
		return *v
	}
	return ""
}

func (f Field) match(n dom.Node, selector string) (string, bool) {
	nodes, err := n.Find(selector)
	if err != nil {
		return "", false
	}
	for _, node := range nodes {
		raw, ok := f.read(node)
		if !ok {
			continue
		}
		transform := f.Transform
		if transform == nil {
			transform = parser.NormalizeText
		}
		if value := transform(raw); value != "" {
			return value, true
		}
	}
	return "", false
}

func (f Field) read(node dom.Node) (string, bool) {
	if f.Attr != "" {
		return node.Attr(f.Attr)
	}
	text, err := node.Text()
	if err != nil {
		return "", false
	}
	return text, strings.TrimSpace(text) != ""
}

func ptr(s string) *string {
	return &s
}

// Book-level fields of a Goodreads book page.
var (
	TitleField = Field{
		Name:      "title",
		Selectors: []string{`h1[data-testid="bookTitle"]`, "h1.Text__title1"},
		Default:   ptr("Unknown Title"),
	}
	AuthorField = Field{
		Name:      "author",
		Selectors: []string{"span.ContributorLink__name", ".ContributorLink__name", `a[data-testid="nameLink"]`},
		Default:   ptr("Unknown Author"),
	}
	AvgRatingField = Field{
		Name:      "avg_rating",
		Selectors: []string{`div[data-testid="avgRating"]`, ".RatingStatistics__rating"},
		Default:   ptr("N/A"),
	}
	RatingsCountField = Field{
		Name:      "ratings_count",
		Selectors: []string{`span[data-testid="ratingsCount"]`, `[data-testid="ratingsCount"]`},
		Default:   ptr("0"),
		Transform: parser.LeadingToken,
	}
	ReviewsCountField = Field{
		Name:      "reviews_count",
		Selectors: []string{`span[data-testid="reviewsCount"]`, `[data-testid="reviewsCount"]`},
		Default:   ptr("0"),
		Transform: parser.LeadingToken,
	}
)

// Review-card fields, looked up relative to one card.
var (
	ReviewerField = Field{
		Name:      "reviewer",
		Selectors: []string{".ReviewerProfile__name a", ".ReviewerProfile__name", "a.user"},
		Default:   ptr("Anonymous"),
	}
	RatingLabelField = Field{
		Name:      "rating",
		Selectors: []string{"span.RatingStars__small[aria-label]", "span[aria-label]"},
		Attr:      "aria-label",
	}
	DateField = Field{
		Name:      "date",
		Selectors: []string{"span.Text__body3 a", ".Text__metadata", ".ReviewCard-date"},
		Default:   ptr("Unknown date"),
		Transform: parser.CleanDate,
	}
	// Expanded containers come first; they only hold the full text after
	// the "show more" controls were clicked.
	ReviewTextField = Field{
		Name: "review_text",
		Selectors: []string{
			".TruncatedContent__text--expanded",
			".TruncatedContent_text--expanded",
			".ReviewText__content",
			".ReviewText",
		},
	}
)
