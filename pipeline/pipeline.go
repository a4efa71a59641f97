// Package pipeline validates, de-duplicates and writes scraped records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-goodreads/config"
	"github.com/aluiziolira/go-scrape-goodreads/models"
	"github.com/aluiziolira/go-scrape-goodreads/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when pending records do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for pending writes.
var drainTimeout = 30 * time.Second

// item is one book page worth of records.
type item struct {
	book    *models.Book
	reviews []models.Review
}

// Pipeline hands records to a single writer goroutine that validates,
// de-duplicates, denormalizes reviews and writes in batches, so rows keep
// the order in which books were processed.
type Pipeline struct {
	ctx       context.Context
	books     RecordWriter
	reviews   RecordWriter
	itemCh    chan item
	batchSize int

	seenBooks   *lru.Cache[int, struct{}]
	seenReviews *lru.Cache[string, struct{}]

	metrics metrics

	startOnce sync.Once
	done      chan struct{}

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline writing books and reviews to separate sinks.
func NewPipeline(ctx context.Context, books, reviews RecordWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	dedupeSize := cfg.DedupeMaxSize
	if dedupeSize <= 0 {
		dedupeSize = 1
	}

	// lru.New only fails on a non-positive size.
	seenBooks, _ := lru.New[int, struct{}](dedupeSize)
	seenReviews, _ := lru.New[string, struct{}](dedupeSize)

	return &Pipeline{
		ctx:         ctx,
		books:       books,
		reviews:     reviews,
		itemCh:      make(chan item, batchSize),
		batchSize:   batchSize,
		seenBooks:   seenBooks,
		seenReviews: seenReviews,
		metrics:     newMetrics(),
		done:        make(chan struct{}),
		shutdown:    make(chan struct{}),
	}
}

// Start launches the writer goroutine. Further calls are no-ops.
func (p *Pipeline) Start() {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.startOnce.Do(func() {
		go p.worker()
	})
}

// Process enqueues a book with its reviews.
func (p *Pipeline) Process(book *models.Book, reviews []models.Review) error {
	if book == nil {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}
	return p.enqueue(item{book: book, reviews: reviews})
}

// Close stops accepting records and waits for pending ones to be written.
// Writers are left open for the caller to close.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.itemCh)
	})
	p.startOnce.Do(func() {
		go p.worker()
	})

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

func (p *Pipeline) worker() {
	defer close(p.done)

	bookBatch := make([]models.Record, 0, p.batchSize)
	reviewBatch := make([]models.Record, 0, p.batchSize)
	flush := func(w RecordWriter, batch *[]models.Record, kind string) error {
		if len(*batch) == 0 {
			return nil
		}
		if err := w.Write(*batch); err != nil {
			return fmt.Errorf("write %s batch: %w", kind, err)
		}
		*batch = (*batch)[:0]
		return nil
	}

	for it := range p.itemCh {
		book := p.prepareBook(it.book)
		if book == nil {
			continue
		}
		bookBatch = append(bookBatch, book)
		for _, row := range p.prepareReviews(book, it.reviews) {
			reviewBatch = append(reviewBatch, row)
		}

		if len(bookBatch) >= p.batchSize {
			if err := flush(p.books, &bookBatch, "book"); err != nil {
				p.setErr(err)
				return
			}
		}
		if len(reviewBatch) >= p.batchSize {
			if err := flush(p.reviews, &reviewBatch, "review"); err != nil {
				p.setErr(err)
				return
			}
		}
	}

	if err := flush(p.books, &bookBatch, "book"); err != nil {
		p.setErr(err)
		return
	}
	if err := flush(p.reviews, &reviewBatch, "review"); err != nil {
		p.setErr(err)
	}
}

func (p *Pipeline) prepareBook(book *models.Book) *models.Book {
	if err := parser.ValidateBook(book); err != nil {
		p.metrics.addValidation("invalid_book")
		slog.Debug("dropping book", slog.Int("book_id", book.BookID), slog.Any("error", err))
		return nil
	}
	if p.seenBooks.Contains(book.BookID) {
		p.metrics.addValidation("duplicate_book")
		return nil
	}
	p.seenBooks.Add(book.BookID, struct{}{})
	p.metrics.incrementBooks()
	return book
}

func (p *Pipeline) prepareReviews(book *models.Book, reviews []models.Review) []*models.ReviewRow {
	rows := make([]*models.ReviewRow, 0, len(reviews))
	for i := range reviews {
		review := &reviews[i]
		if err := parser.ValidateReview(review); err != nil {
			p.metrics.addValidation("invalid_review")
			continue
		}
		if review.BookID != book.BookID {
			p.metrics.addValidation("orphan_review")
			continue
		}
		if p.seenReviews.Contains(review.ReviewID) {
			p.metrics.addValidation("duplicate_review")
			continue
		}
		p.seenReviews.Add(review.ReviewID, struct{}{})
		rows = append(rows, models.NewReviewRow(*review, book))
		p.metrics.incrementReviews()
	}
	return rows
}

func (p *Pipeline) enqueue(it item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.itemCh <- it:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	// Keep draining so blocked producers are released.
	go func() {
		for range p.itemCh {
		}
	}()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	books      int64
	reviews    int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementBooks() {
	m.mu.Lock()
	m.books++
	m.mu.Unlock()
}

func (m *metrics) incrementReviews() {
	m.mu.Lock()
	m.reviews++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_books":   m.books,
		"processed_reviews": m.reviews,
		"validation_errors": copyValidation,
	}
}
