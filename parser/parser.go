package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-goodreads/models"
)

// ValidateBook ensures the extractor produced a writable book.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if b.BookID <= 0 {
		return fmt.Errorf("book has invalid id %d", b.BookID)
	}
	if strings.TrimSpace(b.URL) == "" {
		return fmt.Errorf("book %d missing url", b.BookID)
	}
	if b.ScrapedAt.IsZero() {
		return fmt.Errorf("book %d missing scrape time", b.BookID)
	}
	return nil
}

// ValidateReview rejects reviews that cannot be tied back to a book.
func ValidateReview(r *models.Review) error {
	if r == nil {
		return fmt.Errorf("review is nil")
	}
	if r.BookID <= 0 {
		return fmt.Errorf("review %q has no book id", r.ReviewID)
	}
	if strings.TrimSpace(r.ReviewID) == "" {
		return fmt.Errorf("review for book %d missing id", r.BookID)
	}
	return nil
}

var middleDot = regexp.MustCompile(`\s*·\s*`)

// CleanDate strips the decorative middle-dot separators around review dates.
func CleanDate(date string) string {
	return NormalizeText(middleDot.ReplaceAllString(date, " "))
}

// LeadingToken returns the first whitespace-delimited token of text, or ""
// when text is blank. "1,234 ratings" becomes "1,234".
func LeadingToken(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
