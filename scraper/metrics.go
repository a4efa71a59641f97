package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper. It satisfies
// fetch.Recorder, and every method is safe on a nil receiver.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	BooksTotal      *prometheus.CounterVec
	ReviewsTotal    prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	ExpandClicks    *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total page requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "Page fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	books := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_books_total",
			Help: "Book ids processed by outcome.",
		},
		[]string{"outcome"},
	)
	reviews := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_reviews_total",
			Help: "Total number of reviews extracted.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	expandClicks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_expand_clicks_total",
			Help: "Review expansion clicks by result.",
		},
		[]string{"result"},
	)

	registry.MustRegister(requests, requestDuration, books, reviews, retries, errorsTotal, expandClicks)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		BooksTotal:      books,
		ReviewsTotal:    reviews,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		ExpandClicks:    expandClicks,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a page fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncBook counts one processed id under its outcome.
func (m *Metrics) IncBook(outcome string) {
	if m == nil {
		return
	}
	m.BooksTotal.WithLabelValues(outcome).Inc()
}

// AddReviews adds n extracted reviews.
func (m *Metrics) AddReviews(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReviewsTotal.Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncExpandClick counts one review expansion click.
func (m *Metrics) IncExpandClick(result string) {
	if m == nil {
		return
	}
	m.ExpandClicks.WithLabelValues(result).Inc()
}
