package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/config"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/gocolly/colly/v2"
)

// HTTPFetcher downloads static book pages with colly. Each attempt runs on a
// clone of the base collector, so callbacks never leak between ids.
type HTTPFetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	rec       Recorder
}

// NewHTTPFetcher builds an HTTP fetcher configured from cfg.
func NewHTTPFetcher(cfg *config.Config, rec Recorder) (*HTTPFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &HTTPFetcher{
		cfg:       cfg,
		collector: collector,
		rec:       orNop(rec),
	}, nil
}

// Fetch downloads the page of bookID, retrying transient failures with
// capped exponential backoff.
func (f *HTTPFetcher) Fetch(ctx context.Context, bookID int) (*Page, error) {
	pageURL := models.BookURL(f.cfg.BaseURL, bookID)

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			f.rec.IncRetries()
			delay := Backoff(attempt, f.cfg.RetryBackoff, f.cfg.RetryBackoffMax)
			slog.Debug("retrying book",
				slog.Int("book_id", bookID),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr),
			)
			if err := Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := f.get(pageURL)
		if err == nil {
			return NewPage(bookID, pageURL, body)
		}
		lastErr = err
		f.rec.IncError(ErrorTypeLabel(err))
		if !Retryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("book %d: %w", bookID, lastErr)
}

func (f *HTTPFetcher) get(pageURL string) ([]byte, error) {
	c := f.collector.Clone()

	var (
		body   []byte
		status int
		start  time.Time
	)
	c.OnRequest(func(r *colly.Request) {
		start = time.Now()
		if f.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		f.rec.IncRequest("started")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	err := c.Visit(pageURL)
	if !start.IsZero() {
		f.rec.ObserveDuration(time.Since(start))
	}
	if err != nil {
		f.rec.IncRequest("failed")
		return nil, classifyError(err, status)
	}
	f.rec.IncRequest("completed")
	return body, nil
}

// SetTransport replaces the HTTP transport of every later request.
func (f *HTTPFetcher) SetTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Close releases nothing; the collector holds no long-lived resources.
func (f *HTTPFetcher) Close() error {
	return nil
}
