package extract

import (
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/dom"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/aluiziolira/go-scrape-goodreads/parser"
)

// NotFoundMarker is the text Goodreads serves for unknown book ids.
const NotFoundMarker = "Page not found"

const (
	detailsSelector = ".FeaturedDetails p"
	genresSelector  = ".BookPageMetadataSection__genreButton a"
)

// Exists reports whether the document is a real book page: it must not
// carry the not-found marker and must have a title element.
func Exists(n dom.Node) bool {
	text, err := n.Text()
	if err != nil {
		return false
	}
	if strings.Contains(text, NotFoundMarker) {
		return false
	}
	return len(dom.FirstMatch(n, TitleField.Selectors)) > 0
}

// Book builds the book record of a page. now is the scrape timestamp.
func Book(n dom.Node, bookID int, url string, now time.Time) *models.Book {
	details := Details(n)
	return &models.Book{
		BookID:       bookID,
		URL:          url,
		Title:        TitleField.Value(n),
		Author:       AuthorField.Value(n),
		AvgRating:    AvgRatingField.Value(n),
		RatingsCount: RatingsCountField.Value(n),
		ReviewsCount: ReviewsCountField.Value(n),
		ISBN:         details.ISBN,
		Pages:        details.Pages,
		Publisher:    details.Publisher,
		Genres:       Genres(n),
		ScrapedAt:    now,
	}
}

// BookDetails are the values sniffed out of the featured details block.
type BookDetails struct {
	ISBN      *string
	Pages     *string
	Publisher *string
}

// Details classifies each details paragraph by keyword. Keywords are checked
// in the order ISBN, pages, Published and a paragraph lands in the first
// category it matches; the first paragraph per category wins.
func Details(n dom.Node) BookDetails {
	var details BookDetails
	blocks, err := n.Find(detailsSelector)
	if err != nil {
		return details
	}

	for _, block := range blocks {
		raw, err := block.Text()
		if err != nil {
			continue
		}
		text := parser.NormalizeText(raw)
		switch {
		case strings.Contains(text, "ISBN"):
			if details.ISBN == nil {
				details.ISBN = nonEmpty(afterLast(text, ":"))
			}
		case strings.Contains(text, "pages"):
			if details.Pages == nil {
				details.Pages = nonEmpty(parser.LeadingToken(text))
			}
		case strings.Contains(text, "Published"):
			if details.Publisher == nil {
				if idx := strings.LastIndex(text, " by "); idx >= 0 {
					details.Publisher = nonEmpty(text[idx+len(" by "):])
				}
			}
		}
	}
	return details
}

// Genres returns the genre labels in page order.
func Genres(n dom.Node) []string {
	nodes, err := n.Find(genresSelector)
	if err != nil {
		return nil
	}
	var genres []string
	for _, node := range nodes {
		raw, err := node.Text()
		if err != nil {
			continue
		}
		if genre := parser.NormalizeText(raw); genre != "" {
			genres = append(genres, genre)
		}
	}
	return genres
}

func afterLast(text, sep string) string {
	if idx := strings.LastIndex(text, sep); idx >= 0 {
		return text[idx+len(sep):]
	}
	return text
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
