package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/config"
	"github.com/aluiziolira/go-scrape-goodreads/extract"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/chromedp/chromedp"
)

// ExpandButtonSelector matches the "show more" control of a truncated review.
const ExpandButtonSelector = `button[aria-label="Tap to show more review"]`

// expandedMarker tags controls that were already clicked, so a control whose
// label does not change is never toggled back.
const expandedMarker = "data-scraper-expanded"

// BrowserFetcher renders book pages in a shared headless Chrome and clicks
// every review expansion control before taking the HTML snapshot.
type BrowserFetcher struct {
	cfg *config.Config
	rec Recorder

	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// NewBrowserFetcher starts a browser process configured from cfg.
func NewBrowserFetcher(cfg *config.Config, rec Recorder) (*BrowserFetcher, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("incognito", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if bin := findChromeBinary(cfg.ChromePath); bin != "" {
		slog.Info("using browser binary", slog.String("path", bin))
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Launch the browser eagerly.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &BrowserFetcher{
		cfg:           cfg,
		rec:           orNop(rec),
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
	}, nil
}

// Fetch loads the page of bookID in a fresh tab. A page whose title never
// renders within RenderTimeout is reported as missing.
func (f *BrowserFetcher) Fetch(ctx context.Context, bookID int) (*Page, error) {
	pageURL := models.BookURL(f.cfg.BaseURL, bookID)

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	start := time.Now()
	f.rec.IncRequest("started")

	if err := chromedp.Run(tabCtx, chromedp.Navigate(pageURL)); err != nil {
		f.rec.IncRequest("failed")
		return nil, f.fail(ctx, bookID, classifyError(err, 0))
	}

	renderCtx, cancelRender := context.WithTimeout(tabCtx, f.cfg.RenderTimeout)
	err := chromedp.Run(renderCtx, chromedp.WaitReady(titleSelector(), chromedp.ByQuery))
	cancelRender()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.rec.IncRequest("failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("book %d: title not rendered: %w", bookID, ErrMissing)
		}
		return nil, f.fail(ctx, bookID, classifyError(err, 0))
	}

	if err := f.expandReviews(ctx, tabCtx, bookID); err != nil {
		return nil, err
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		f.rec.IncRequest("failed")
		return nil, f.fail(ctx, bookID, classifyError(err, 0))
	}

	f.rec.IncRequest("completed")
	f.rec.ObserveDuration(time.Since(start))
	return NewPage(bookID, pageURL, []byte(html))
}

// expandReviews clicks every expansion control on the page once.
func (f *BrowserFetcher) expandReviews(ctx, tabCtx context.Context, bookID int) error {
	return f.clickExpanders(ctx, bookID, func(script string, res any) error {
		return chromedp.Run(tabCtx, chromedp.Evaluate(script, res))
	})
}

// clickExpanders counts the controls once, then clicks the first unmarked one
// per step until none remain, pausing a jittered ClickDelay between clicks.
// A failed click is logged and skipped.
func (f *BrowserFetcher) clickExpanders(ctx context.Context, bookID int, eval func(script string, res any) error) error {
	var count int
	if err := eval(countButtonsScript(), &count); err != nil {
		slog.Warn("count expand buttons",
			slog.Int("book_id", bookID),
			slog.Any("error", err),
		)
		return nil
	}

	clicks := 0
	for i := 0; i < count; i++ {
		if err := Sleep(ctx, Jitter(f.cfg.ClickDelay, f.cfg.ClickJitter)); err != nil {
			return err
		}
		var clicked bool
		if err := eval(clickNextButtonScript(), &clicked); err != nil {
			f.rec.IncExpandClick("error")
			slog.Warn("expand click failed",
				slog.Int("book_id", bookID),
				slog.Int("button", i),
				slog.Any("error", err),
			)
			continue
		}
		if !clicked {
			f.rec.IncExpandClick("missing")
			break
		}
		f.rec.IncExpandClick("clicked")
		clicks++
	}
	if count > 0 {
		slog.Debug("expanded reviews",
			slog.Int("book_id", bookID),
			slog.Int("buttons", count),
			slog.Int("clicked", clicks),
		)
	}
	return nil
}

func (f *BrowserFetcher) fail(ctx context.Context, bookID int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.rec.IncError(ErrorTypeLabel(err))
	return fmt.Errorf("book %d: %w", bookID, err)
}

// Close shuts the browser down.
func (f *BrowserFetcher) Close() error {
	f.cancelBrowser()
	f.cancelAlloc()
	return nil
}

// titleSelector matches any title element the extractor accepts.
func titleSelector() string {
	return strings.Join(extract.TitleField.Selectors, ", ")
}

func countButtonsScript() string {
	return `document.querySelectorAll(` + strconv.Quote(ExpandButtonSelector) + `).length`
}

// clickNextButtonScript marks and clicks the first expansion control not
// clicked yet. It returns false when none is left.
func clickNextButtonScript() string {
	return `(() => {
	const button = document.querySelector(` + strconv.Quote(ExpandButtonSelector+":not(["+expandedMarker+"])") + `);
	if (!button) { return false; }
	button.setAttribute(` + strconv.Quote(expandedMarker) + `, "1");
	button.scrollIntoView({block: "center"});
	button.click();
	return true;
})()`
}

func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
