package extract

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/dom"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/google/go-cmp/cmp"
)

func parse(t *testing.T, body string) dom.Node {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func float(v float64) *float64 { return &v }

const dunePage = `<html><body>
<h1 data-testid="bookTitle">Dune</h1>
<span class="ContributorLink__name">Frank Herbert</span>
<div class="RatingStatistics__rating">4.27</div>
<span data-testid="ratingsCount">1,234,567 ratings</span>
<span data-testid="reviewsCount">52,000 reviews</span>
<div class="FeaturedDetails">
  <p>896 pages, Mass Market Paperback</p>
  <p>Published August 1, 1965 by Ace Books</p>
  <p>ISBN: 9780441172719</p>
</div>
<div class="BookPageMetadataSection__genreButton"><a>Science Fiction</a></div>
<div class="BookPageMetadataSection__genreButton"><a> Fantasy </a></div>
<article class="ReviewCard">
  <div class="ReviewerProfile__name"><a>Paul</a></div>
  <span class="RatingStars__small" aria-label="5 out of 5 stars"></span>
  <span class="Text__body3"><a>March 3, 2021 ·</a></span>
  <div class="ReviewText__content"><span>The spice
  must   flow.</span></div>
</article>
<article class="ReviewCard">
  <div class="ReviewerProfile__name"><a>Chani</a></div>
  <div class="ReviewText__content">Tell me of your homeworld.</div>
</article>
</body></html>`

func TestPageDuneScenario(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := parse(t, dunePage)

	result, ok := Page(doc, 234225, models.BookURL("https://www.goodreads.com", 234225), ReviewExtractor{}, now)
	if !ok {
		t.Fatalf("page classified as missing")
	}

	wantBook := &models.Book{
		BookID:       234225,
		URL:          "https://www.goodreads.com/book/show/234225",
		Title:        "Dune",
		Author:       "Frank Herbert",
		AvgRating:    "4.27",
		RatingsCount: "1,234,567",
		ReviewsCount: "52,000",
		ISBN:         ptr("9780441172719"),
		Pages:        ptr("896"),
		Publisher:    ptr("Ace Books"),
		Genres:       []string{"Science Fiction", "Fantasy"},
		ScrapedAt:    now,
	}
	if diff := cmp.Diff(wantBook, result.Book); diff != "" {
		t.Fatalf("book mismatch (-want +got):\n%s", diff)
	}

	wantReviews := []models.Review{
		{
			ReviewID:   "review_234225_0",
			BookID:     234225,
			Reviewer:   "Paul",
			Rating:     float(5),
			Date:       "March 3, 2021",
			ReviewText: "The spice must flow.",
		},
		{
			ReviewID:   "review_234225_1",
			BookID:     234225,
			Reviewer:   "Chani",
			Rating:     nil,
			Date:       "Unknown date",
			ReviewText: "Tell me of your homeworld.",
		},
	}
	if diff := cmp.Diff(wantReviews, result.Reviews); diff != "" {
		t.Fatalf("reviews mismatch (-want +got):\n%s", diff)
	}
}

func TestPageMissing(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not found marker", body: `<html><body><h1 class="Text__title1">Page not found</h1></body></html>`},
		{name: "no title element", body: `<html><body><article class="ReviewCard" id="r1">orphan</article></body></html>`},
		{name: "empty document", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := Page(parse(t, tt.body), 7, "u", ReviewExtractor{}, time.Now())
			if ok {
				t.Fatalf("expected missing page")
			}
			if result.Book != nil || len(result.Reviews) != 0 {
				t.Fatalf("missing page produced records: %+v", result)
			}
		})
	}
}

func TestFieldDefaults(t *testing.T) {
	doc := parse(t, `<html><body><h1 class="Text__title1">Only a title</h1></body></html>`)

	tests := []struct {
		field Field
		want  string
	}{
		{field: TitleField, want: "Only a title"},
		{field: AuthorField, want: "Unknown Author"},
		{field: AvgRatingField, want: "N/A"},
		{field: RatingsCountField, want: "0"},
		{field: ReviewsCountField, want: "0"},
		{field: ReviewerField, want: "Anonymous"},
		{field: DateField, want: "Unknown date"},
	}

	for _, tt := range tests {
		t.Run(tt.field.Name, func(t *testing.T) {
			if got := tt.field.Value(doc); got != tt.want {
				t.Fatalf("%s = %q, want %q", tt.field.Name, got, tt.want)
			}
		})
	}

	if got := RatingLabelField.Extract(doc); got != nil {
		t.Fatalf("rating label = %q, want nil", *got)
	}
	if got := TitleField.Extract(parse(t, `<p>x</p>`)); got == nil || *got != "Unknown Title" {
		t.Fatalf("missing title = %v, want Unknown Title", got)
	}
}

func TestFieldDefaultIsCopied(t *testing.T) {
	doc := parse(t, `<p>x</p>`)

	first := AuthorField.Extract(doc)
	*first = "changed by caller"

	if got := AuthorField.Value(doc); got != "Unknown Author" {
		t.Fatalf("default after write = %q, want Unknown Author", got)
	}
}

func TestFieldFallbackOrder(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		body  string
		want  string
	}{
		{
			name:  "test id beats class",
			field: TitleField,
			body:  `<h1 class="Text__title1">Class Title</h1><h1 data-testid="bookTitle">Test Id Title</h1>`,
			want:  "Test Id Title",
		},
		{
			name:  "empty first match falls through",
			field: AuthorField,
			body:  `<span class="ContributorLink__name">  </span><a data-testid="nameLink">Ursula K. Le Guin</a>`,
			want:  "Ursula K. Le Guin",
		},
		{
			name:  "count keeps non numeric token",
			field: RatingsCountField,
			body:  `<div data-testid="ratingsCount">No ratings</div>`,
			want:  "No",
		},
		{
			name:  "invalid selector is skipped",
			field: Field{Name: "x", Selectors: []string{"p[[", "p"}},
			body:  `<p>ok</p>`,
			want:  "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.field.Value(parse(t, tt.body)); got != tt.want {
				t.Fatalf("%s = %q, want %q", tt.field.Name, got, tt.want)
			}
		})
	}
}

func TestDetailsKeywordOrder(t *testing.T) {
	tests := []struct {
		name string
		body string
		want BookDetails
	}{
		{
			name: "one block per keyword",
			body: `<p>ISBN: 123</p><p>300 pages, Hardcover</p><p>Published 2001 by Tor</p>`,
			want: BookDetails{ISBN: ptr("123"), Pages: ptr("300"), Publisher: ptr("Tor")},
		},
		{
			name: "ISBN wins over pages in the same block",
			body: `<p>300 pages, ISBN: 999</p>`,
			want: BookDetails{ISBN: ptr("999")},
		},
		{
			name: "pages wins over Published in the same block",
			body: `<p>Published with 120 pages by Nobody</p>`,
			want: BookDetails{Pages: ptr("Published")},
		},
		{
			name: "first block per keyword wins",
			body: `<p>ISBN: first</p><p>ISBN: second</p>`,
			want: BookDetails{ISBN: ptr("first")},
		},
		{
			name: "unmatched blocks are ignored",
			body: `<p>Kindle Edition</p><p>Published 1990</p>`,
			want: BookDetails{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, `<div class="FeaturedDetails">`+tt.body+`</div>`)
			if diff := cmp.Diff(tt.want, Details(doc)); diff != "" {
				t.Fatalf("details mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func reviewPage(cards ...string) string {
	return `<html><body><h1 class="Text__title1">T</h1>` + strings.Join(cards, "") + `</body></html>`
}

func TestReviewIDsSyntheticAreUnique(t *testing.T) {
	const n = 6
	cards := make([]string, n)
	for i := range cards {
		cards[i] = fmt.Sprintf(`<div class="ReviewCard"><div class="ReviewText">review %d</div></div>`, i)
	}

	reviews := ReviewExtractor{}.Extract(parse(t, reviewPage(cards...)), 42)
	if len(reviews) != n {
		t.Fatalf("reviews=%d, want %d", len(reviews), n)
	}
	for i, r := range reviews {
		if want := fmt.Sprintf("review_42_%d", i); r.ReviewID != want {
			t.Fatalf("review %d id=%q, want %q", i, r.ReviewID, want)
		}
		if r.BookID != 42 {
			t.Fatalf("review %d book_id=%d, want 42", i, r.BookID)
		}
	}
}

func TestReviewIDsNativeAndCollisions(t *testing.T) {
	page := reviewPage(
		`<article class="ReviewCard" id="r-100"><div class="ReviewText">a</div></article>`,
		`<article class="ReviewCard" id="r-100"><div class="ReviewText">b</div></article>`,
		`<article class="ReviewCard" id="review_9_1"><div class="ReviewText">c</div></article>`,
		`<article class="ReviewCard"><div class="ReviewText">d</div></article>`,
	)

	reviews := ReviewExtractor{}.Extract(parse(t, page), 9)
	var got []string
	for _, r := range reviews {
		got = append(got, r.ReviewID)
	}
	want := []string{"r-100", "review_9_1", "review_9_2", "review_9_3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestReviewTextPrefersExpandedContent(t *testing.T) {
	page := reviewPage(
		`<div class="ReviewCard"><div class="ReviewText__content">short…</div>`+
			`<div class="TruncatedContent__text--expanded">the whole<br>review</div></div>`,
		`<div class="ReviewCard"><span>Just the card</span> <b>text</b></div>`,
	)

	reviews := ReviewExtractor{}.Extract(parse(t, page), 1)
	if len(reviews) != 2 {
		t.Fatalf("reviews=%d, want 2", len(reviews))
	}
	if reviews[0].ReviewText != "the whole review" {
		t.Fatalf("expanded text=%q", reviews[0].ReviewText)
	}
	if reviews[1].ReviewText != "Just the card text" {
		t.Fatalf("fallback text=%q", reviews[1].ReviewText)
	}
}

func TestReviewTextKeepsEscapedAngleBrackets(t *testing.T) {
	page := reviewPage(
		`<div class="ReviewCard"><div class="ReviewText__content">I &lt;3 this, &gt;9000 stars. ` +
			`Chapter 3 &lt; chapter 4 &gt; chapter 2.</div></div>`,
	)

	reviews := ReviewExtractor{}.Extract(parse(t, page), 1)
	if len(reviews) != 1 {
		t.Fatalf("reviews=%d, want 1", len(reviews))
	}
	want := "I <3 this, >9000 stars. Chapter 3 < chapter 4 > chapter 2."
	if reviews[0].ReviewText != want {
		t.Fatalf("text=%q, want %q", reviews[0].ReviewText, want)
	}
}

func TestReviewExtractorCap(t *testing.T) {
	cards := make([]string, 5)
	for i := range cards {
		cards[i] = `<div class="ReviewCard">x</div>`
	}

	reviews := ReviewExtractor{MaxReviews: 3}.Extract(parse(t, reviewPage(cards...)), 5)
	if len(reviews) != 3 {
		t.Fatalf("reviews=%d, want 3", len(reviews))
	}
	if reviews[2].ReviewID != "review_5_2" {
		t.Fatalf("last id=%q, want review_5_2", reviews[2].ReviewID)
	}
}

// fakeNode lets a test decide how a node behaves on each call.
type fakeNode struct {
	children map[string][]dom.Node
	attrs    map[string]string
	text     string
	textErr  error
	panicMsg string
}

func (f *fakeNode) Find(selector string) ([]dom.Node, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.children[selector], nil
}

func (f *fakeNode) Attr(name string) (string, bool) {
	v, ok := f.attrs[name]
	return v, ok
}

func (f *fakeNode) Text() (string, error) {
	return f.text, f.textErr
}

func TestReviewExtractorIsolatesCardFailures(t *testing.T) {
	tests := []struct {
		name   string
		broken dom.Node
	}{
		{name: "text error", broken: &fakeNode{textErr: errors.New("stale element")}},
		{name: "panic", broken: &fakeNode{panicMsg: "detached node"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cards := make([]dom.Node, 5)
			for i := range cards {
				cards[i] = &fakeNode{text: fmt.Sprintf("card %d", i)}
			}
			cards[2] = tt.broken
			root := &fakeNode{children: map[string][]dom.Node{ReviewCardSelectors[0]: cards}}

			reviews := ReviewExtractor{}.Extract(root, 3)
			var got []string
			for _, r := range reviews {
				got = append(got, r.ReviewID+"="+r.ReviewText)
			}
			want := []string{
				"review_3_0=card 0",
				"review_3_1=card 1",
				"review_3_3=card 3",
				"review_3_4=card 4",
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("reviews mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReviewExtractorIdempotent(t *testing.T) {
	doc := parse(t, dunePage)
	x := ReviewExtractor{}
	first := x.Extract(doc, 1)
	second := x.Extract(doc, 1)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second pass differs (-first +second):\n%s", diff)
	}
}
