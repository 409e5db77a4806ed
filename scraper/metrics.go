package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry            *prometheus.Registry
	PagesFetchedTotal   prometheus.Counter
	BooksExtractedTotal prometheus.Counter
	RequestDuration     prometheus.Histogram
	ErrorsTotal         *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pagesFetched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscraper_pages_fetched_total",
			Help: "Total catalogue pages fetched successfully.",
		},
	)
	booksExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscraper_books_extracted_total",
			Help: "Total book records extracted from catalogue pages.",
		},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookscraper_request_duration_seconds",
			Help:    "HTTP request latency for catalogue page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscraper_errors_total",
			Help: "Total fetch errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(pagesFetched, booksExtracted, requestDuration, errorsTotal)

	return &Metrics{
		Registry:            registry,
		PagesFetchedTotal:   pagesFetched,
		BooksExtractedTotal: booksExtracted,
		RequestDuration:     requestDuration,
		ErrorsTotal:         errorsTotal,
	}
}

// IncPages increments the fetched pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesFetchedTotal.Inc()
}

// AddBooks adds to the extracted books counter.
func (m *Metrics) AddBooks(n int) {
	if m == nil {
		return
	}
	m.BooksExtractedTotal.Add(float64(n))
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
