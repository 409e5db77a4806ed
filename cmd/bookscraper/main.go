// Command bookscraper crawls the demo book catalogue and writes the extracted
// records to a CSV file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bookscraper/config"
	"bookscraper/models"
	"bookscraper/pipeline"
	"bookscraper/report"
	"bookscraper/scraper"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, err := defaultsFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var delayMs, timeoutMs int

	cmd := &cobra.Command{
		Use:          "bookscraper",
		Short:        "bookscraper collects book listings from the demo catalogue into a CSV file.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Delay = time.Duration(delayMs) * time.Millisecond
			cfg.Timeout = time.Duration(timeoutMs) * time.Millisecond
			cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.CSVFile, "csv", "c", cfg.CSVFile, "CSV output file (must end in .csv)")
	flags.StringVarP(&cfg.LogFile, "log", "l", cfg.LogFile, "log file (must end in .log)")
	flags.IntVarP(&cfg.Pages, "pages", "n", cfg.Pages, "number of catalogue pages to fetch")
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "catalogue base URL")
	flags.IntVar(&delayMs, "delay", int(cfg.Delay/time.Millisecond), "delay between page fetches (milliseconds)")
	flags.IntVar(&timeoutMs, "timeout", int(cfg.Timeout/time.Millisecond), "per-request timeout (milliseconds)")
	flags.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "output format: csv, json, or dual")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (empty disables)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable debug logging")

	return cmd
}

// defaultsFromEnv starts from the built-in defaults and applies environment
// overrides, which in turn become the flag defaults.
func defaultsFromEnv() (*config.Config, error) {
	cfg := config.DefaultConfig()

	if value, ok, err := config.EnvInt("SCRAPER_PAGES"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_PAGES: %w", err)
	} else if ok {
		cfg.Pages = value
	}
	if value, ok := config.EnvString("SCRAPER_CSV"); ok {
		cfg.CSVFile = value
	}
	if value, ok := config.EnvString("SCRAPER_LOG"); ok {
		cfg.LogFile = value
	}
	if value, ok := config.EnvString("SCRAPER_BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok, err := config.EnvDuration("SCRAPER_DELAY"); err != nil {
		return nil, fmt.Errorf("invalid SCRAPER_DELAY: %w", err)
	} else if ok {
		cfg.Delay = value
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pages", cfg.Pages),
		slog.String("csv", cfg.CSVFile),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	inner, err := createWriter(cfg.OutputFormat, cfg.CSVFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	writer := report.NewWriter(inner)
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.Workers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, err := s.Run(ctx, p)
	if err != nil {
		return fmt.Errorf("scraping failed: %w", err)
	}

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}

	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	slog.Info("scrape finished",
		slog.Int("pages", result.PageCount),
		slog.Int("books", result.BookCount),
		slog.Int("errors", result.ErrorCount),
	)

	printSummary(result, cfg.CSVFile)
	writer.Stats().Render(os.Stdout)
	return nil
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(strings.TrimSuffix(filename, ".csv") + ".jsonl")
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.ScrapeResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Pages fetched: %d\n", result.PageCount)
	fmt.Printf("  Books found:   %d\n", result.BookCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", result.Duration().Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}
