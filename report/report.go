// Package report accumulates catalogue statistics during a crawl and renders
// them as a summary table after it finishes.
package report

import (
	"io"
	"strconv"
	"sync"

	"bookscraper/models"
	"bookscraper/pipeline"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Stats aggregates price and rating statistics without retaining records.
type Stats struct {
	mu sync.Mutex

	total    int
	priced   int
	priceSum float64

	minPrice      float64
	minPriceTitle string
	maxPrice      float64
	maxPriceTitle string

	ratings [6]int // index 0 holds "no rating"
}

// Add folds a batch of books into the statistics.
func (s *Stats) Add(books []*models.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, book := range books {
		s.total++
		if book.Rating >= 0 && book.Rating <= 5 {
			s.ratings[book.Rating]++
		}

		price, err := strconv.ParseFloat(book.Price, 64)
		if err != nil {
			continue
		}
		if s.priced == 0 || price < s.minPrice {
			s.minPrice = price
			s.minPriceTitle = book.Title
		}
		if s.priced == 0 || price > s.maxPrice {
			s.maxPrice = price
			s.maxPriceTitle = book.Title
		}
		s.priced++
		s.priceSum += price
	}
}

// TotalBooks returns the number of books observed.
func (s *Stats) TotalBooks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// AveragePrice returns the mean of all parseable prices, or 0 when none.
func (s *Stats) AveragePrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priced == 0 {
		return 0
	}
	return s.priceSum / float64(s.priced)
}

// Render writes the analysis table to w. Nothing is written when no books
// were observed.
func (s *Stats) Render(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Catalogue analysis")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Total books", s.total})
	if s.priced > 0 {
		t.AppendRow(table.Row{"Average price", "£" + strconv.FormatFloat(s.priceSum/float64(s.priced), 'f', 2, 64)})
		t.AppendRow(table.Row{"Price range", "£" + strconv.FormatFloat(s.minPrice, 'f', 2, 64) + " - £" + strconv.FormatFloat(s.maxPrice, 'f', 2, 64)})
		t.AppendRow(table.Row{"Most expensive", s.maxPriceTitle})
		t.AppendRow(table.Row{"Cheapest", s.minPriceTitle})
	}
	for rating := 5; rating >= 1; rating-- {
		if s.ratings[rating] > 0 {
			t.AppendRow(table.Row{strconv.Itoa(rating) + "-star books", s.ratings[rating]})
		}
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// Writer forwards batches to an inner output writer while folding them into
// the statistics, so the summary costs no extra pass over the data.
type Writer struct {
	inner pipeline.OutputWriter
	stats *Stats
}

// NewWriter wraps inner with statistics collection.
func NewWriter(inner pipeline.OutputWriter) *Writer {
	return &Writer{inner: inner, stats: &Stats{}}
}

// Stats exposes the accumulated statistics.
func (w *Writer) Stats() *Stats {
	return w.stats
}

// Write folds the batch into the stats and forwards it.
func (w *Writer) Write(books []*models.Book) error {
	w.stats.Add(books)
	return w.inner.Write(books)
}

// Close closes the inner writer.
func (w *Writer) Close() error {
	return w.inner.Close()
}

// Validate validates the inner writer's output.
func (w *Writer) Validate() error {
	return w.inner.Validate()
}
