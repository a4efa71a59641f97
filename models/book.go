// Package models defines data structures for the scraper.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Book is one catalog page worth of book metadata.
type Book struct {
	BookID       int       `json:"book_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	AvgRating    string    `json:"avg_rating"`
	RatingsCount string    `json:"ratings_count"`
	ReviewsCount string    `json:"reviews_count"`
	ISBN         *string   `json:"isbn"`
	Pages        *string   `json:"pages"`
	Publisher    *string   `json:"publisher"`
	Genres       []string  `json:"-"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// BookHeader is the positional column order of the books sink.
var BookHeader = []string{
	"book_id", "url", "title", "author", "avg_rating", "ratings_count",
	"reviews_count", "isbn", "pages", "publisher", "genres", "scraped_at",
}

// BookURL derives the canonical page URL of a book id.
func BookURL(baseURL string, bookID int) string {
	return fmt.Sprintf("%s/book/show/%d", strings.TrimSuffix(baseURL, "/"), bookID)
}

// GenresField joins genres for flat storage. Empty genres yield nil.
func (b *Book) GenresField() *string {
	if len(b.Genres) == 0 {
		return nil
	}
	joined := strings.Join(b.Genres, ", ")
	return &joined
}

// CSVRecord returns the row in BookHeader order.
func (b *Book) CSVRecord() []string {
	return []string{
		strconv.Itoa(b.BookID),
		b.URL,
		b.Title,
		b.Author,
		b.AvgRating,
		b.RatingsCount,
		b.ReviewsCount,
		deref(b.ISBN),
		deref(b.Pages),
		deref(b.Publisher),
		deref(b.GenresField()),
		b.ScrapedAt.Format(time.RFC3339),
	}
}

// bookJSON mirrors Book with genres flattened the same way as the CSV column.
type bookJSON struct {
	bookAlias
	Genres *string `json:"genres"`
}

type bookAlias Book

// JSONRecord returns the value encoded into JSONL output.
func (b *Book) JSONRecord() any {
	return bookJSON{bookAlias: bookAlias(*b), Genres: b.GenresField()}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
