// Package fetch retrieves book pages and hands them over as queryable
// documents. Three transports implement Fetcher: plain HTTP through colly,
// a scripted Chrome session through chromedp, and saved HTML files.
package fetch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/config"
	"github.com/aluiziolira/go-scrape-goodreads/dom"
)

// Fetcher retrieves the page of one book id. Implementations return an
// error matching ErrMissing when the id has no book.
type Fetcher interface {
	Fetch(ctx context.Context, bookID int) (*Page, error)
	Close() error
}

// Page is a fetched book page.
type Page struct {
	BookID    int
	URL       string
	Body      []byte
	Root      dom.Node
	FetchedAt time.Time
}

// NewPage parses body into a Page.
func NewPage(bookID int, url string, body []byte) (*Page, error) {
	root, err := dom.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("book %d: %w", bookID, err)
	}
	return &Page{
		BookID:    bookID,
		URL:       url,
		Body:      body,
		Root:      root,
		FetchedAt: time.Now(),
	}, nil
}

// Recorder receives transport-level measurements. A nil Recorder is allowed
// wherever one is accepted.
type Recorder interface {
	IncRequest(phase string)
	ObserveDuration(d time.Duration)
	IncRetries()
	IncError(errorType string)
	IncExpandClick(result string)
}

type nopRecorder struct{}

func (nopRecorder) IncRequest(string) {}
func (nopRecorder) ObserveDuration(time.Duration) {}
func (nopRecorder) IncRetries() {}
func (nopRecorder) IncError(string) {}
func (nopRecorder) IncExpandClick(string) {}

func orNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Jitter returns base plus a uniform random duration in [0, spread).
func Jitter(base, spread time.Duration) time.Duration {
	if spread <= 0 {
		return base
	}
	return base + rand.N(spread)
}

// Backoff returns the capped exponential delay before retry attempt n (1-based).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max > 0 && (delay > max || delay <= 0) {
		delay = max
	}
	return delay
}

// New builds the fetcher selected by cfg.Mode.
func New(cfg *config.Config, rec Recorder) (Fetcher, error) {
	switch cfg.Mode {
	case config.ModeHTTP:
		f, err := NewHTTPFetcher(cfg, rec)
		if err != nil {
			return nil, err
		}
		return f, nil
	case config.ModeBrowser:
		f, err := NewBrowserFetcher(cfg, rec)
		if err != nil {
			return nil, err
		}
		return f, nil
	case config.ModeFile:
		return NewFileFetcher(cfg.PagesDir, cfg.BaseURL, rec), nil
	default:
		return nil, fmt.Errorf("unsupported fetch mode: %s", cfg.Mode)
	}
}
