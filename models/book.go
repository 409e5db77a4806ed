// Package models defines data structures shared across the scraper.
package models

import "time"

// Book is one record extracted from a catalogue page. Only Title, Price,
// Availability and Rating reach the CSV output; the remaining fields feed
// de-duplication and the JSONL output.
type Book struct {
	Title        string    `json:"title"`
	Price        string    `json:"price"`
	Availability string    `json:"availability"`
	Rating       int       `json:"rating"`
	RatingText   string    `json:"rating_text,omitempty"`
	URL          string    `json:"url,omitempty"`
	ScrapedAt    time.Time `json:"scraped_at"`
}

// ScrapeResult summarises a finished crawl.
type ScrapeResult struct {
	StartTime    time.Time
	EndTime      time.Time
	PageCount    int
	BookCount    int
	ErrorCount   int
	ErrorsByType map[string]int
}

// Duration reports the wall-clock time of the crawl.
func (r *ScrapeResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
