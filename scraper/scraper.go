// Package scraper walks a range of book ids and feeds every page it can read
// into the output pipeline.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/config"
	"github.com/aluiziolira/go-scrape-goodreads/extract"
	"github.com/aluiziolira/go-scrape-goodreads/fetch"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/aluiziolira/go-scrape-goodreads/pipeline"
)

// Outcomes of a single book id.
const (
	OutcomeScraped = "scraped"
	OutcomeMissing = "missing"
	OutcomeFailed  = "failed"
)

// Scraper visits book ids one at a time, in order.
type Scraper struct {
	cfg     *config.Config
	reviews extract.ReviewExtractor
	Metrics *Metrics

	tally *tally
	now   func() time.Time
}

// NewScraper builds a scraper configured from cfg. metrics may be nil.
func NewScraper(cfg *config.Config, metrics *Metrics) *Scraper {
	return &Scraper{
		cfg:     cfg,
		reviews: extract.ReviewExtractor{MaxReviews: cfg.MaxReviews},
		Metrics: metrics,
		tally:   &tally{next: metrics},
		now:     time.Now,
	}
}

// Recorder is the fetch.Recorder fetchers should report to, so that request
// and retry totals reach both the metrics and the run result.
func (s *Scraper) Recorder() fetch.Recorder {
	return s.tally
}

// Run scrapes StartID..EndID inclusive. Missing and failed ids are counted
// and skipped. Cancelling ctx stops the crawl after the current id; the
// partial result is returned without error. A pipeline failure aborts the run.
func (s *Scraper) Run(ctx context.Context, fetcher fetch.Fetcher, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.ScraperResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	defer func() {
		result.EndTime = time.Now()
		result.RequestCount = int(s.tally.requests.Load())
		result.RetryCount = int(s.tally.retries.Load())
	}()

	for id := s.cfg.StartID; id <= s.cfg.EndID; id++ {
		if ctx.Err() != nil {
			break
		}

		outcome, err := s.scrapeOne(ctx, fetcher, p, id, result)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return result, err
		}
		result.IDsVisited++
		s.Metrics.IncBook(outcome)

		if s.cfg.ProgressEvery > 0 && result.IDsVisited%s.cfg.ProgressEvery == 0 {
			slog.Info("progress",
				slog.Int("visited", result.IDsVisited),
				slog.Int("scraped", result.BooksScraped),
				slog.Int("missing", result.BooksMissing),
				slog.Int("failed", result.BooksFailed),
				slog.Int("reviews", result.ReviewsFound),
			)
		}

		if id < s.cfg.EndID {
			if err := fetch.Sleep(ctx, fetch.Jitter(s.cfg.Delay, s.cfg.RandomDelay)); err != nil {
				break
			}
		}
	}

	if ctx.Err() != nil {
		slog.Info("crawl interrupted", slog.Int("visited", result.IDsVisited))
	}
	return result, nil
}

// scrapeOne handles one id and logs exactly one line with its outcome. The
// returned error is either ctx's error or a fatal pipeline error.
func (s *Scraper) scrapeOne(ctx context.Context, fetcher fetch.Fetcher, p *pipeline.Pipeline, id int, result *models.ScraperResult) (string, error) {
	page, err := fetcher.Fetch(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, fetch.ErrMissing) {
			result.BooksMissing++
			slog.Info("book missing", slog.Int("book_id", id))
			return OutcomeMissing, nil
		}

		label := fetch.ErrorTypeLabel(err)
		result.BooksFailed++
		result.FailedIDs = append(result.FailedIDs, id)
		result.ErrorsByType[label]++
		slog.Warn("book failed",
			slog.Int("book_id", id),
			slog.String("category", label),
			slog.Any("error", err),
		)
		return OutcomeFailed, nil
	}

	if s.cfg.DebugDir != "" {
		if err := fetch.DumpPage(s.cfg.DebugDir, page); err != nil {
			slog.Debug("debug dump failed", slog.Int("book_id", id), slog.Any("error", err))
		}
	}

	extracted, ok := extract.Page(page.Root, id, page.URL, s.reviews, s.now())
	if !ok {
		result.BooksMissing++
		slog.Info("book missing", slog.Int("book_id", id), slog.String("reason", "no book content"))
		return OutcomeMissing, nil
	}

	if err := p.Process(extracted.Book, extracted.Reviews); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("book %d: pipeline: %w", id, err)
	}

	result.BooksScraped++
	result.ReviewsFound += len(extracted.Reviews)
	s.Metrics.AddReviews(len(extracted.Reviews))
	slog.Info("book scraped",
		slog.Int("book_id", id),
		slog.String("title", extracted.Book.Title),
		slog.Int("reviews", len(extracted.Reviews)),
	)
	return OutcomeScraped, nil
}

// tally counts requests and retries on their way to the metrics.
type tally struct {
	next     *Metrics
	requests atomic.Int64
	retries  atomic.Int64
}

func (t *tally) IncRequest(phase string) {
	if phase == "started" {
		t.requests.Add(1)
	}
	t.next.IncRequest(phase)
}

func (t *tally) ObserveDuration(d time.Duration) { t.next.ObserveDuration(d) }

func (t *tally) IncRetries() {
	t.retries.Add(1)
	t.next.IncRetries()
}

func (t *tally) IncError(errorType string) { t.next.IncError(errorType) }

func (t *tally) IncExpandClick(result string) { t.next.IncExpandClick(result) }
