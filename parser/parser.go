// Package parser turns raw catalogue page HTML into book records.
package parser

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"bookscraper/models"

	"github.com/PuerkitoBio/goquery"
)

// ExtractBooks parses one catalogue page and returns its books in document
// order. pageURL is used to resolve the relative links on the page. Records
// without a title are dropped; every other missing field defaults to empty.
func ExtractBooks(pageURL string, r io.Reader) ([]*models.Book, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var books []*models.Book
	doc.Find("article.product_pod").Each(func(_ int, s *goquery.Selection) {
		if book := extractBook(base, s); book != nil {
			books = append(books, book)
		}
	})
	return books, nil
}

func extractBook(base *url.URL, s *goquery.Selection) *models.Book {
	title := strings.TrimSpace(s.Find("h3 a").AttrOr("title", ""))
	if title == "" {
		// The thumbnail alt text carries the title on some catalogue pages.
		title = strings.TrimSpace(s.Find("img").AttrOr("alt", ""))
	}
	if title == "" {
		return nil
	}

	ratingText := ratingClass(s.Find("p.star-rating").AttrOr("class", ""))

	availability := NormalizeAvailability(s.Find("p.instock.availability").Text())
	if availability == "" {
		availability = NormalizeAvailability(s.Find("p.availability").Text())
	}

	bookURL := ""
	if href := s.Find("h3 a").AttrOr("href", ""); href != "" {
		if ref, err := url.Parse(href); err == nil {
			bookURL = base.ResolveReference(ref).String()
		}
	}

	return &models.Book{
		Title:        title,
		Price:        NormalizePrice(s.Find("p.price_color").Text()),
		Availability: availability,
		Rating:       RatingToNumeric(ratingText),
		RatingText:   ratingText,
		URL:          bookURL,
		ScrapedAt:    time.Now(),
	}
}

// ratingClass extracts the rating word from a "star-rating Three" class list.
func ratingClass(class string) string {
	parts := strings.Fields(class)
	for _, part := range parts {
		if part != "star-rating" {
			return part
		}
	}
	return ""
}

// ValidateBook ensures the extractor captured the required fields.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book missing title")
	}
	if strings.TrimSpace(b.Price) == "" {
		return fmt.Errorf("book missing price for %s", b.Title)
	}
	if b.Rating < 0 || b.Rating > 5 {
		return fmt.Errorf("book rating %d out of range for %s", b.Rating, b.Title)
	}
	return nil
}

// NormalizePrice removes the currency symbol and surrounding whitespace.
func NormalizePrice(price string) string {
	price = strings.TrimSpace(price)
	price = strings.ReplaceAll(price, "Â£", "")
	price = strings.ReplaceAll(price, "£", "")
	return strings.TrimSpace(price)
}

// NormalizeAvailability collapses the whitespace the site pads around the
// availability text.
func NormalizeAvailability(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// RatingToNumeric converts the textual rating to the 1-5 scale. Unknown or
// missing ratings map to 0.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}
