package models

import (
	"strconv"
	"time"
)

// Review is one reader review card from a book page.
type Review struct {
	ReviewID   string   `json:"review_id"`
	BookID     int      `json:"book_id"`
	Reviewer   string   `json:"reviewer"`
	Rating     *float64 `json:"rating"`
	Date       string   `json:"date"`
	ReviewText string   `json:"review_text"`
}

// ReviewRow is a review denormalized with its parent book for flat output.
type ReviewRow struct {
	Review
	BookTitle        string `json:"book_title"`
	BookAuthor       string `json:"book_author"`
	BookAvgRating    string `json:"book_avg_rating"`
	BookRatingsCount string `json:"book_ratings_count"`
}

// ReviewHeader is the positional column order of the reviews sink.
var ReviewHeader = []string{
	"review_id", "book_id", "reviewer", "rating", "date", "review_text",
	"book_title", "book_author", "book_avg_rating", "book_ratings_count",
}

// NewReviewRow copies the selected book fields onto a review.
func NewReviewRow(r Review, b *Book) *ReviewRow {
	return &ReviewRow{
		Review:           r,
		BookTitle:        b.Title,
		BookAuthor:       b.Author,
		BookAvgRating:    b.AvgRating,
		BookRatingsCount: b.RatingsCount,
	}
}

// CSVRecord returns the row in ReviewHeader order.
func (r *ReviewRow) CSVRecord() []string {
	return []string{
		r.ReviewID,
		strconv.Itoa(r.BookID),
		r.Reviewer,
		FormatRating(r.Rating),
		r.Date,
		r.ReviewText,
		r.BookTitle,
		r.BookAuthor,
		r.BookAvgRating,
		r.BookRatingsCount,
	}
}

// JSONRecord returns the value encoded into JSONL output.
func (r *ReviewRow) JSONRecord() any {
	return r
}

// FormatRating renders a rating with at least one decimal ("5.0", "4.5").
// A nil rating renders as an empty cell.
func FormatRating(rating *float64) string {
	if rating == nil {
		return ""
	}
	v := *rating
	if v == float64(int64(v)) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ScraperResult holds the overall result of a crawl.
type ScraperResult struct {
	StartTime    time.Time
	EndTime      time.Time
	IDsVisited   int
	BooksScraped int
	BooksMissing int
	BooksFailed  int
	// ReviewsFound counts extracted reviews, before pipeline validation
	// and de-duplication.
	ReviewsFound int
	RetryCount   int
	RequestCount int
	FailedIDs    []int
	ErrorsByType map[string]int
}
