package extract

import (
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/dom"
	"github.com/aluiziolira/go-scrape-goodreads/models"
)

// Result is everything extracted from one book page.
type Result struct {
	Book    *models.Book
	Reviews []models.Review
}

// Page extracts the book and its reviews. It returns false when the
// document is not a book page, in which case nothing may be emitted.
func Page(n dom.Node, bookID int, url string, reviews ReviewExtractor, now time.Time) (Result, bool) {
	if !Exists(n) {
		return Result{}, false
	}
	return Result{
		Book:    Book(n, bookID, url, now),
		Reviews: reviews.Extract(n, bookID),
	}, true
}
