package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/config"
	"github.com/aluiziolira/go-scrape-goodreads/fetch"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/aluiziolira/go-scrape-goodreads/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type collectingWriter struct {
	mu      sync.Mutex
	records []models.Record
}

func (cw *collectingWriter) Write(records []models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.records = append(cw.records, records...)
	return nil
}

func (cw *collectingWriter) Close() error {
	return nil
}

func (cw *collectingWriter) Validate() error {
	return nil
}

func (cw *collectingWriter) All() []models.Record {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make([]models.Record, len(cw.records))
	copy(out, cw.records)
	return out
}

func (cw *collectingWriter) bookIDs() []int {
	var ids []int
	for _, record := range cw.All() {
		ids = append(ids, record.(*models.Book).BookID)
	}
	return ids
}

type fakeFetcher struct {
	pages  map[int]string
	errs   map[int]error
	onCall func(id int)
	calls  []int
}

func (f *fakeFetcher) Fetch(ctx context.Context, bookID int) (*fetch.Page, error) {
	f.calls = append(f.calls, bookID)
	if f.onCall != nil {
		f.onCall(bookID)
	}
	if err, ok := f.errs[bookID]; ok {
		return nil, err
	}
	body, ok := f.pages[bookID]
	if !ok {
		return nil, fmt.Errorf("book %d: %w", bookID, fetch.ErrMissing)
	}
	return fetch.NewPage(bookID, models.BookURL("http://example.test", bookID), []byte(body))
}

func (f *fakeFetcher) Close() error {
	return nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.Delay = 0
	cfg.RandomDelay = 0
	cfg.MaxRetries = 1
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = time.Millisecond
	cfg.BatchSize = 2
	return cfg
}

func bookPage(title string, reviewers ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, `<h1 data-testid="bookTitle">%s</h1>`, title)
	b.WriteString(`<span class="ContributorLink__name">Frank Herbert</span>`)
	b.WriteString(`<div class="RatingStatistics__rating">4.27</div>`)
	for _, reviewer := range reviewers {
		fmt.Fprintf(&b, `<article class="ReviewCard"><div class="ReviewerProfile__name"><a>%s</a></div>`, reviewer)
		b.WriteString(`<span class="RatingStars__small" aria-label="Rating 4 out of 5"></span>`)
		fmt.Fprintf(&b, `<div class="ReviewText__content">Review by %s.</div></article>`, reviewer)
	}
	b.WriteString("</body></html>")
	return b.String()
}

const notFoundPage = `<html><body><h1>Page not found</h1><p>Sorry, that page does not exist.</p></body></html>`

func runScraper(t *testing.T, cfg *config.Config, fetcher fetch.Fetcher, metrics *Metrics) (*models.ScraperResult, *collectingWriter, *collectingWriter) {
	t.Helper()
	books, reviews := &collectingWriter{}, &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), books, reviews, cfg)
	p.Start()

	s := NewScraper(cfg, metrics)
	result, err := s.Run(context.Background(), fetcher, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}
	return result, books, reviews
}

func TestScraperOutcomes(t *testing.T) {
	cfg := testConfig()
	cfg.StartID = 1
	cfg.EndID = 5

	fetcher := &fakeFetcher{
		pages: map[int]string{
			1: bookPage("Dune", "Paul", "Chani"),
			3: notFoundPage,
			5: bookPage("Children of Dune"),
		},
		errs: map[int]error{
			4: fetch.ErrServer{Status: http.StatusServiceUnavailable, Err: errors.New("Service Unavailable")},
		},
	}
	metrics := NewMetrics()

	result, books, reviews := runScraper(t, cfg, fetcher, metrics)

	if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, fetcher.calls); diff != "" {
		t.Fatalf("visit order (-want +got):\n%s", diff)
	}
	if result.IDsVisited != 5 || result.BooksScraped != 2 || result.BooksMissing != 2 || result.BooksFailed != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.ReviewsFound != 2 {
		t.Fatalf("reviews found = %d, want 2", result.ReviewsFound)
	}
	if diff := cmp.Diff([]int{4}, result.FailedIDs); diff != "" {
		t.Fatalf("failed ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"server": 1}, result.ErrorsByType); diff != "" {
		t.Fatalf("errors by type (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 5}, books.bookIDs()); diff != "" {
		t.Fatalf("written books (-want +got):\n%s", diff)
	}

	rows := reviews.All()
	if len(rows) != 2 {
		t.Fatalf("written reviews = %d, want 2", len(rows))
	}
	first := rows[0].(*models.ReviewRow)
	if first.ReviewID != "review_1_0" || first.Reviewer != "Paul" || first.BookTitle != "Dune" {
		t.Fatalf("first review = %+v", first)
	}
	if first.Rating == nil || *first.Rating != 4 {
		t.Fatalf("rating = %v", first.Rating)
	}

	if got := counterValue(t, metrics.BooksTotal.WithLabelValues(OutcomeScraped)); got != 2 {
		t.Fatalf("scraped metric = %v", got)
	}
	if got := counterValue(t, metrics.BooksTotal.WithLabelValues(OutcomeMissing)); got != 2 {
		t.Fatalf("missing metric = %v", got)
	}
	if got := counterValue(t, metrics.ReviewsTotal); got != 2 {
		t.Fatalf("reviews metric = %v", got)
	}
}

func TestScraperMaxReviews(t *testing.T) {
	cfg := testConfig()
	cfg.StartID = 9
	cfg.EndID = 9
	cfg.MaxReviews = 1

	fetcher := &fakeFetcher{pages: map[int]string{9: bookPage("Dune", "Paul", "Chani", "Stilgar")}}
	result, _, reviews := runScraper(t, cfg, fetcher, nil)

	if result.ReviewsFound != 1 || len(reviews.All()) != 1 {
		t.Fatalf("reviews found=%d written=%d, want 1", result.ReviewsFound, len(reviews.All()))
	}
}

func TestScraperExtractedReviewsIncludeDroppedRows(t *testing.T) {
	cfg := testConfig()
	cfg.StartID = 1
	cfg.EndID = 2

	page := func(title string) string {
		return `<html><body><h1 data-testid="bookTitle">` + title + `</h1>` +
			`<article class="ReviewCard" id="r-shared"><div class="ReviewText__content">Same review.</div></article>` +
			`</body></html>`
	}
	fetcher := &fakeFetcher{pages: map[int]string{1: page("Dune"), 2: page("Dune Messiah")}}

	books, reviews := &collectingWriter{}, &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), books, reviews, cfg)
	p.Start()
	result, err := NewScraper(cfg, nil).Run(context.Background(), fetcher, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if result.ReviewsFound != 2 {
		t.Fatalf("reviews extracted = %d, want 2", result.ReviewsFound)
	}
	if got := p.GetMetrics()["processed_reviews"]; got != int64(1) || len(reviews.All()) != 1 {
		t.Fatalf("reviews written = %v (%d rows), want 1", got, len(reviews.All()))
	}
}

func TestScraperStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.StartID = 1
	cfg.EndID = 10

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{
		pages: map[int]string{1: bookPage("One"), 2: bookPage("Two"), 3: bookPage("Three")},
		onCall: func(id int) {
			if id == 2 {
				cancel()
			}
		},
	}

	books, reviews := &collectingWriter{}, &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), books, reviews, cfg)
	p.Start()

	result, err := NewScraper(cfg, nil).Run(ctx, fetcher, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if diff := cmp.Diff([]int{1, 2}, fetcher.calls); diff != "" {
		t.Fatalf("calls (-want +got):\n%s", diff)
	}
	if got := len(books.All()); got < 1 {
		t.Fatalf("books written = %d, want at least the first", got)
	}
	if result.IDsVisited > 2 {
		t.Fatalf("visited = %d after cancel", result.IDsVisited)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func htmlResponder(status int, body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestScraperHTTPIntegration(t *testing.T) {
	cfg := testConfig()
	cfg.StartID = 1
	cfg.EndID = 3
	cfg.DebugDir = t.TempDir()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://example.test/book/show/1", htmlResponder(http.StatusOK, bookPage("Dune", "Paul")))
	transport.RegisterResponder("GET", "http://example.test/book/show/2", htmlResponder(http.StatusNotFound, ""))
	transport.RegisterResponder("GET", "http://example.test/book/show/3", htmlResponder(http.StatusInternalServerError, ""))

	books, reviews := &collectingWriter{}, &collectingWriter{}
	p := pipeline.NewPipeline(context.Background(), books, reviews, cfg)
	p.Start()

	metrics := NewMetrics()
	s := NewScraper(cfg, metrics)
	fetcher, err := fetch.NewHTTPFetcher(cfg, s.Recorder())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	fetcher.SetTransport(transport)

	result, err := s.Run(context.Background(), fetcher, p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}

	if result.BooksScraped != 1 || result.BooksMissing != 1 || result.BooksFailed != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.ErrorsByType["server"] != 1 {
		t.Fatalf("errors by type = %v", result.ErrorsByType)
	}
	// 1 + 1 + (1 + MaxRetries)
	if result.RequestCount != 4 || result.RetryCount != 1 {
		t.Fatalf("requests=%d retries=%d, want 4 and 1", result.RequestCount, result.RetryCount)
	}
	if got := counterValue(t, metrics.RetriesTotal); got != 1 {
		t.Fatalf("retries metric = %v", got)
	}
	if got := len(reviews.All()); got != 1 {
		t.Fatalf("reviews written = %d, want 1", got)
	}

	if _, err := os.Stat(filepath.Join(cfg.DebugDir, "book_1.html")); err != nil {
		t.Fatalf("debug dump missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DebugDir, "book_2.html")); err == nil {
		t.Fatalf("missing book should not be dumped")
	}
}

func TestScraperReplaysDumpedPages(t *testing.T) {
	dir := t.TempDir()
	page, err := fetch.NewPage(42, "http://example.test/book/show/42", []byte(bookPage("Dune Messiah", "Alia")))
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	if err := fetch.DumpPage(dir, page); err != nil {
		t.Fatalf("dump: %v", err)
	}

	cfg := testConfig()
	cfg.Mode = config.ModeFile
	cfg.PagesDir = dir
	cfg.StartID = 41
	cfg.EndID = 42

	fetcher, err := fetch.New(cfg, nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	result, books, _ := runScraper(t, cfg, fetcher, nil)

	if result.BooksScraped != 1 || result.BooksMissing != 1 {
		t.Fatalf("result = %+v", result)
	}
	written := books.All()
	if len(written) != 1 {
		t.Fatalf("books written = %d", len(written))
	}
	if got := written[0].(*models.Book); got.Title != "Dune Messiah" || got.URL != "http://example.test/book/show/42" {
		t.Fatalf("book = %+v", got)
	}
}
