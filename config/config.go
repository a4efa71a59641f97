package config

import (
	"fmt"
	"net/url"
	"time"
)

// Fetch modes.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
	ModeFile    = "file"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL string
	StartID int
	EndID   int
	Mode    string // http, browser, or file

	Delay           time.Duration
	RandomDelay     time.Duration
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	MaxReviews    int
	BooksOutput   string
	ReviewsOutput string
	OutputFormat  string // csv, json, or dual
	BatchSize     int
	DedupeMaxSize int

	UserAgent        string
	AcceptLanguage   string
	RespectRobotsTxt bool

	ChromePath    string
	Headless      bool
	RenderTimeout time.Duration
	ClickDelay    time.Duration
	ClickJitter   time.Duration

	PagesDir      string
	DebugDir      string
	MetricsAddr   string
	ProgressEvery int
	Verbose       bool
}

// DefaultConfig returns conservative defaults for goodreads.com.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.goodreads.com",
		StartID:          1,
		EndID:            1000,
		Mode:             ModeHTTP,
		Delay:            1500 * time.Millisecond,
		RandomDelay:      3 * time.Second,
		Timeout:          10 * time.Second,
		MaxRetries:       3,
		RetryBackoff:     500 * time.Millisecond,
		RetryBackoffMax:  8 * time.Second,
		MaxReviews:       10,
		BooksOutput:      "output/goodreads_books.csv",
		ReviewsOutput:    "output/goodreads_reviews.csv",
		OutputFormat:     "csv",
		BatchSize:        64,
		DedupeMaxSize:    100000,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		AcceptLanguage:   "en-US,en;q=0.9",
		RespectRobotsTxt: false,
		Headless:         true,
		RenderTimeout:    15 * time.Second,
		ClickDelay:       time.Second,
		ClickJitter:      time.Second,
		PagesDir:         "debug",
		ProgressEvery:    100,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.StartID <= 0 {
		return fmt.Errorf("start id must be positive")
	}
	if c.EndID < c.StartID {
		return fmt.Errorf("end id (%d) cannot be below start id (%d)", c.EndID, c.StartID)
	}
	switch c.Mode {
	case ModeHTTP, ModeBrowser, ModeFile:
	default:
		return fmt.Errorf("mode must be http, browser, or file")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.MaxReviews < 0 {
		return fmt.Errorf("max reviews cannot be negative")
	}
	if c.BooksOutput == "" {
		return fmt.Errorf("books output cannot be empty")
	}
	if c.ReviewsOutput == "" {
		return fmt.Errorf("reviews output cannot be empty")
	}
	if c.BooksOutput == c.ReviewsOutput {
		return fmt.Errorf("books and reviews output must differ")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Mode == ModeBrowser && c.RenderTimeout <= 0 {
		return fmt.Errorf("render timeout must be positive")
	}
	if c.ClickDelay < 0 || c.ClickJitter < 0 {
		return fmt.Errorf("click delay cannot be negative")
	}
	if c.Mode == ModeFile && c.PagesDir == "" {
		return fmt.Errorf("pages dir is required in file mode")
	}
	if c.ProgressEvery < 0 {
		return fmt.Errorf("progress interval cannot be negative")
	}

	return nil
}
