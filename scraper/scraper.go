// Package scraper walks the catalogue one page at a time and feeds extracted
// books into the pipeline.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bookscraper/config"
	"bookscraper/models"
	"bookscraper/parser"
	"bookscraper/pipeline"

	"github.com/gocolly/colly/v2"
)

// Scraper fetches catalogue pages sequentially. Any fetch failure or empty
// page is treated as end of catalogue; nothing is retried.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics

	mu            sync.Mutex
	errorCount    int
	errorsByType  map[string]int
	lastPageBooks int
	lastPageErr   error

	handlersOnce sync.Once
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
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

	s := &Scraper{
		cfg:          cfg,
		collector:    collector,
		errorsByType: make(map[string]int),
		Metrics:      NewMetrics(),
	}
	return s, nil
}

// Run fetches pages 1..cfg.Pages in order, stopping early on the first fetch
// failure or empty page. Partial results are not an error: the summary always
// reflects whatever was written before the crawl stopped.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.configureHandlers(p)

	result := &models.ScrapeResult{StartTime: time.Now()}

	for page := 1; page <= s.cfg.Pages; page++ {
		if ctx.Err() != nil {
			slog.Info("crawl cancelled", slog.Int("page", page))
			break
		}

		pageURL := s.pageURL(page)
		s.mu.Lock()
		s.lastPageBooks = 0
		s.lastPageErr = nil
		s.mu.Unlock()

		err := s.collector.Visit(pageURL)

		s.mu.Lock()
		books := s.lastPageBooks
		pageErr := s.lastPageErr
		s.mu.Unlock()

		if err == nil {
			err = pageErr
		}
		if err != nil {
			slog.Warn("page fetch failed, treating as end of catalogue",
				slog.Int("page", page),
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			break
		}
		if books == 0 {
			slog.Warn("page contained no books, treating as end of catalogue",
				slog.Int("page", page),
				slog.String("url", pageURL),
			)
			break
		}

		result.PageCount++
		result.BookCount += books
		s.Metrics.IncPages()
		slog.Info("page scraped",
			slog.Int("page", page),
			slog.String("url", pageURL),
			slog.Int("books", books),
		)

		if page < s.cfg.Pages && s.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.Delay):
			}
		}
	}

	result.EndTime = time.Now()
	s.mu.Lock()
	result.ErrorCount = s.errorCount
	result.ErrorsByType = make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		result.ErrorsByType[k] = v
	}
	s.mu.Unlock()

	return result, nil
}

func (s *Scraper) pageURL(page int) string {
	return fmt.Sprintf("%s/catalogue/page-%d.html", strings.TrimSuffix(s.cfg.BaseURL, "/"), page)
}

func (s *Scraper) configureHandlers(p *pipeline.Pipeline) {
	s.handlersOnce.Do(func() { s.registerHandlers(p) })
}

func (s *Scraper) registerHandlers(p *pipeline.Pipeline) {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		slog.Debug("fetching page", slog.String("url", r.URL.String()))
	})

	s.collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			s.Metrics.ObserveDuration(time.Since(start))
		}

		books, err := parser.ExtractBooks(r.Request.URL.String(), bytes.NewReader(r.Body))
		if err != nil {
			s.recordError(err, r.StatusCode)
			s.mu.Lock()
			s.lastPageErr = err
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		s.lastPageBooks = len(books)
		s.mu.Unlock()
		s.Metrics.AddBooks(len(books))

		if err := p.Process(books...); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
			slog.Error("pipeline process error", slog.Any("error", err))
		}
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		pageURL := ""
		if r != nil {
			statusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				pageURL = r.Request.URL.String()
			}
		}
		classified := classifyError(err, statusCode)
		category := errorTypeLabel(classified)
		s.recordError(classified, statusCode)

		slog.Error("request error",
			slog.String("url", pageURL),
			slog.Int("status", statusCode),
			slog.String("category", category),
			slog.Any("error", err),
		)
	})
}

func (s *Scraper) recordError(err error, statusCode int) {
	category := errorTypeLabel(classifyError(err, statusCode))
	s.mu.Lock()
	s.errorCount++
	s.errorsByType[category]++
	s.mu.Unlock()
	s.Metrics.IncError(category)
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		if statusCode >= http.StatusBadRequest {
			return wrapped
		}
	}

	if err == nil {
		return nil
	}
	return err
}
