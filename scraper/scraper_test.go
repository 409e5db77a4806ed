package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"bookscraper/config"
	"bookscraper/models"
	"bookscraper/pipeline"

	"github.com/jarcoal/httpmock"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.Delay = 0
	return cfg
}

type collectingWriter struct {
	mu    sync.Mutex
	books []*models.Book
}

func (cw *collectingWriter) Write(books []*models.Book) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.books = append(cw.books, books...)
	return nil
}

func (cw *collectingWriter) Close() error {
	return nil
}

func (cw *collectingWriter) Validate() error {
	return nil
}

func (cw *collectingWriter) Count() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return len(cw.books)
}

func (cw *collectingWriter) All() []*models.Book {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make([]*models.Book, len(cw.books))
	copy(out, cw.books)
	return out
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func buildCatalogPage(page, count int) string {
	var builder strings.Builder
	builder.WriteString("<html><body><section>")

	for i := 1; i <= count; i++ {
		id := (page-1)*20 + i
		fmt.Fprintf(&builder, "<article class=\"product_pod\">")
		fmt.Fprintf(&builder, "<h3><a href=\"/catalogue/book-%d/index.html\" title=\"Book %d\">Book %d</a></h3>", id, id, id)
		fmt.Fprintf(&builder, "<p class=\"price_color\">&pound;%0.2f</p>", float64(id))
		builder.WriteString("<p class=\"star-rating Two\"></p>")
		builder.WriteString("<p class=\"instock availability\">In stock</p>")
		builder.WriteString("</article>")
	}

	builder.WriteString("</section></body></html>")
	return builder.String()
}

func pageURL(n int) string {
	return fmt.Sprintf("http://example.test/catalogue/page-%d.html", n)
}

func runScrape(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport, writer pipeline.OutputWriter) *models.ScrapeResult {
	t.Helper()

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)

	p := pipeline.NewPipeline(context.Background(), writer, cfg)
	p.Start(cfg.Workers)

	result, err := s.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close pipeline: %v", err)
	}
	return result
}

func TestScraperFetchesRequestedPages(t *testing.T) {
	cfg := testConfig()
	cfg.Pages = 3

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL(1), htmlResponder(buildCatalogPage(1, 20)))
	transport.RegisterResponder("GET", pageURL(2), htmlResponder(buildCatalogPage(2, 20)))
	transport.RegisterResponder("GET", pageURL(3), htmlResponder(buildCatalogPage(3, 20)))

	writer := &collectingWriter{}
	result := runScrape(t, cfg, transport, writer)

	if result.PageCount != 3 {
		t.Fatalf("pages=%d, want 3", result.PageCount)
	}
	if got := writer.Count(); got != 60 {
		t.Fatalf("books=%d, want 60", got)
	}

	books := writer.All()
	sample := books[0]
	if sample.Title != "Book 1" {
		t.Fatalf("title=%q, want %q", sample.Title, "Book 1")
	}
	if sample.Price != "1.00" {
		t.Fatalf("price=%q, want %q", sample.Price, "1.00")
	}
	if sample.Rating != 2 {
		t.Fatalf("rating=%d, want 2", sample.Rating)
	}
	if sample.Availability != "In stock" {
		t.Fatalf("availability=%q, want %q", sample.Availability, "In stock")
	}
	if sample.URL != "http://example.test/catalogue/book-1/index.html" {
		t.Fatalf("url=%q unexpected", sample.URL)
	}
}

func TestScraperHaltsOnFetchFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Pages = 5

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL(1), htmlResponder(buildCatalogPage(1, 20)))
	transport.RegisterResponder("GET", pageURL(2), httpmock.NewStringResponder(404, "not found"))
	transport.RegisterResponder("GET", pageURL(3), htmlResponder(buildCatalogPage(3, 20)))

	writer := &collectingWriter{}
	result := runScrape(t, cfg, transport, writer)

	if result.PageCount != 1 {
		t.Fatalf("pages=%d, want 1", result.PageCount)
	}
	if got := writer.Count(); got != 20 {
		t.Fatalf("books=%d, want page 1's 20", got)
	}
	if result.ErrorsByType["not_found"] == 0 {
		t.Fatalf("expected not_found error, got %v", result.ErrorsByType)
	}

	calls := transport.GetCallCountInfo()
	if calls["GET "+pageURL(3)] != 0 {
		t.Fatalf("page 3 should never be fetched after page 2 failed")
	}
}

func TestScraperFailureKeepsEarlierRowsInCSV(t *testing.T) {
	cfg := testConfig()
	cfg.Pages = 5
	csvPath := filepath.Join(t.TempDir(), "books.csv")

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL(1), htmlResponder(buildCatalogPage(1, 20)))
	transport.RegisterResponder("GET", pageURL(2), httpmock.NewStringResponder(404, "not found"))

	writer, err := pipeline.NewCSVWriter(csvPath)
	if err != nil {
		t.Fatalf("new csv writer: %v", err)
	}
	runScrape(t, cfg, transport, writer)
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	// Header plus page 1's rows, each with the four fixed fields.
	if len(records) != 21 {
		t.Fatalf("csv rows=%d, want 21", len(records))
	}
	for i, record := range records {
		if len(record) != 4 {
			t.Fatalf("row %d has %d fields, want 4", i, len(record))
		}
	}
}

func TestScraperStopsOnEmptyPage(t *testing.T) {
	cfg := testConfig()
	cfg.Pages = 3

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL(1), htmlResponder(buildCatalogPage(1, 20)))
	transport.RegisterResponder("GET", pageURL(2), htmlResponder("<html><body>no books</body></html>"))
	transport.RegisterResponder("GET", pageURL(3), htmlResponder(buildCatalogPage(3, 20)))

	writer := &collectingWriter{}
	result := runScrape(t, cfg, transport, writer)

	if result.PageCount != 1 {
		t.Fatalf("pages=%d, want 1", result.PageCount)
	}
	calls := transport.GetCallCountInfo()
	if calls["GET "+pageURL(3)] != 0 {
		t.Fatalf("page 3 should never be fetched after an empty page 2")
	}
}

func TestScraperZeroPagesFetchesNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Pages = 0

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL(1), htmlResponder(buildCatalogPage(1, 20)))

	writer := &collectingWriter{}
	result := runScrape(t, cfg, transport, writer)

	if result.PageCount != 0 || writer.Count() != 0 {
		t.Fatalf("pages=%d books=%d, want 0/0", result.PageCount, writer.Count())
	}
	if transport.GetTotalCallCount() != 0 {
		t.Fatalf("no requests expected, got %v", transport.GetCallCountInfo())
	}
}

func TestScraperHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := testConfig()
			cfg.Pages = 1

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", pageURL(1), httpmock.NewStringResponder(tt.status, ""))

			writer := &collectingWriter{}
			result := runScrape(t, cfg, transport, writer)

			if got := result.ErrorsByType[tt.expected]; got == 0 {
				t.Fatalf("expected %q classification for status %d, got %v", tt.expected, tt.status, result.ErrorsByType)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error without err", err: nil, statusCode: http.StatusInternalServerError, expected: "other"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestPageURL(t *testing.T) {
	cfg := testConfig()
	cfg.BaseURL = "http://example.test/"
	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	if got := s.pageURL(4); got != "http://example.test/catalogue/page-4.html" {
		t.Fatalf("pageURL(4)=%q", got)
	}
}
