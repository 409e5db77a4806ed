// Package config holds scraper configuration and its validation rules.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL      string
	Pages        int
	CSVFile      string
	LogFile      string
	Delay        time.Duration
	Timeout      time.Duration
	OutputFormat string // csv, json, or dual
	MetricsAddr  string
	UserAgent    string
	Verbose      bool

	// Pipeline tuning.
	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int
	Workers            int
}

// DefaultConfig returns the defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "http://books.toscrape.com",
		Pages:              5,
		CSVFile:            "books.csv",
		LogFile:            "bookscraper.log",
		Delay:              400 * time.Millisecond,
		Timeout:            10 * time.Second,
		OutputFormat:       "csv",
		MetricsAddr:        "",
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:            false,
		PipelineBufferSize: 512,
		BatchSize:          64,
		DedupeMaxSize:      10000,
		Workers:            1,
	}
}

// Validate ensures all configuration values are coherent. It runs before any
// network call so bad input never reaches the site.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Pages < 0 {
		return fmt.Errorf("pages cannot be negative")
	}
	if !strings.HasSuffix(c.CSVFile, ".csv") {
		return fmt.Errorf("csv file name %q must end in .csv", c.CSVFile)
	}
	if !strings.HasSuffix(c.LogFile, ".log") {
		return fmt.Errorf("log file name %q must end in .log", c.LogFile)
	}
	if c.Delay < 0 || c.Delay >= 5*time.Second {
		return fmt.Errorf("delay must be in [0s, 5s), got %s", c.Delay)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}
