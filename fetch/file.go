package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/models"
)

// PagePath is where the page of bookID is stored under dir.
func PagePath(dir string, bookID int) string {
	return filepath.Join(dir, fmt.Sprintf("book_%d.html", bookID))
}

// FileFetcher replays pages saved under a directory, as written by DumpPage.
type FileFetcher struct {
	dir     string
	baseURL string
	rec     Recorder
}

// NewFileFetcher reads pages from dir. baseURL only feeds the page URL.
func NewFileFetcher(dir, baseURL string, rec Recorder) *FileFetcher {
	return &FileFetcher{dir: dir, baseURL: baseURL, rec: orNop(rec)}
}

// Fetch loads the saved page of bookID. A missing file matches ErrMissing.
func (f *FileFetcher) Fetch(ctx context.Context, bookID int) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	f.rec.IncRequest("started")
	body, err := os.ReadFile(PagePath(f.dir, bookID))
	if err != nil {
		f.rec.IncRequest("failed")
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("book %d: %w", bookID, ErrMissing)
		}
		f.rec.IncError(ErrorTypeLabel(err))
		return nil, fmt.Errorf("book %d: %w", bookID, err)
	}
	f.rec.IncRequest("completed")
	f.rec.ObserveDuration(time.Since(start))

	return NewPage(bookID, models.BookURL(f.baseURL, bookID), body)
}

// Close is a no-op.
func (f *FileFetcher) Close() error {
	return nil
}

// DumpPage writes the raw body of page under dir.
func DumpPage(dir string, page *Page) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}
	path := PagePath(dir, page.BookID)
	if err := os.WriteFile(path, page.Body, 0o644); err != nil {
		return fmt.Errorf("dump %s: %w", path, err)
	}
	return nil
}
