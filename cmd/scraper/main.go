package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/config"
	"github.com/aluiziolira/go-scrape-goodreads/fetch"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/aluiziolira/go-scrape-goodreads/pipeline"
	"github.com/aluiziolira/go-scrape-goodreads/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.DefaultConfig()
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	registerFlags(flag.CommandLine, cfg)
	flag.Parse()
	cfg.Mode = strings.ToLower(cfg.Mode)
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("scrape failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("start_id", cfg.StartID),
		slog.Int("end_id", cfg.EndID),
		slog.String("mode", cfg.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing current book")
	}()

	metrics := scraper.NewMetrics()
	s := scraper.NewScraper(cfg, metrics)

	fetcher, err := fetch.New(cfg, s.Recorder())
	if err != nil {
		return fmt.Errorf("initialising fetcher: %w", err)
	}
	defer fetcher.Close()

	bookWriter, err := pipeline.NewWriter(cfg.OutputFormat, cfg.BooksOutput, models.BookHeader)
	if err != nil {
		return fmt.Errorf("creating books writer: %w", err)
	}
	defer closeWriter("books", bookWriter)

	reviewWriter, err := pipeline.NewWriter(cfg.OutputFormat, cfg.ReviewsOutput, models.ReviewHeader)
	if err != nil {
		return fmt.Errorf("creating reviews writer: %w", err)
	}
	defer closeWriter("reviews", reviewWriter)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	// The pipeline outlives ctx so records already handed over are written
	// after an interrupt.
	p := pipeline.NewPipeline(context.Background(), bookWriter, reviewWriter, cfg)
	p.Start()

	result, runErr := s.Run(ctx, fetcher, p)

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	if err := bookWriter.Validate(); err != nil {
		return fmt.Errorf("books output validation: %w", err)
	}
	if err := reviewWriter.Validate(); err != nil {
		return fmt.Errorf("reviews output validation: %w", err)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(os.Stdout, result, cfg, p.GetMetrics())
	return nil
}

func registerFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Site root")
	fs.IntVar(&cfg.StartID, "start", cfg.StartID, "First book id")
	fs.IntVar(&cfg.EndID, "end", cfg.EndID, "Last book id (inclusive)")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Fetch mode: http, browser, or file")
	fs.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Fixed delay between books")
	fs.DurationVar(&cfg.RandomDelay, "random-delay", cfg.RandomDelay, "Random jitter added to delay")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retry attempts per book")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	fs.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	fs.IntVar(&cfg.MaxReviews, "max-reviews", cfg.MaxReviews, "Maximum reviews per book (0 = all)")
	fs.StringVar(&cfg.BooksOutput, "books-output", cfg.BooksOutput, "Books output file")
	fs.StringVar(&cfg.ReviewsOutput, "reviews-output", cfg.ReviewsOutput, "Reviews output file")
	fs.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, or dual")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Records per write batch")
	fs.IntVar(&cfg.DedupeMaxSize, "dedupe-max-size", cfg.DedupeMaxSize, "Book and review ids remembered for de-duplication")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header")
	fs.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	fs.StringVar(&cfg.ChromePath, "chrome", cfg.ChromePath, "Chrome binary (browser mode)")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run Chrome headless (browser mode)")
	fs.DurationVar(&cfg.RenderTimeout, "render-timeout", cfg.RenderTimeout, "Wait for the book title to render (browser mode)")
	fs.DurationVar(&cfg.ClickDelay, "click-delay", cfg.ClickDelay, "Delay between review expansion clicks")
	fs.DurationVar(&cfg.ClickJitter, "click-jitter", cfg.ClickJitter, "Random jitter added to click delay")
	fs.StringVar(&cfg.PagesDir, "pages-dir", cfg.PagesDir, "Saved pages directory (file mode)")
	fs.StringVar(&cfg.DebugDir, "debug-dir", cfg.DebugDir, "Save every fetched page here")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.IntVar(&cfg.ProgressEvery, "progress-every", cfg.ProgressEvery, "Log progress every N ids (0 = off)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
}

func closeWriter(name string, w pipeline.RecordWriter) {
	if err := w.Close(); err != nil {
		slog.Error("close writer", slog.String("output", name), slog.Any("error", err))
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
