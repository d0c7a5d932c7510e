package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/aluiziolira/go-price-sync/cache"
	"github.com/aluiziolira/go-price-sync/config"
	"github.com/aluiziolira/go-price-sync/models"
	"github.com/aluiziolira/go-price-sync/pipeline"
	"github.com/aluiziolira/go-price-sync/scraper"
	"github.com/aluiziolira/go-price-sync/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting price sync",
		slog.String("api", cfg.APIBaseURL),
		slog.String("source", cfg.Source),
		slog.Duration("delay", cfg.Delay),
	)

	// No signal handling: an interrupted run leaves its recorded rows and no summary.
	startTime := time.Now()
	result, err := run(context.Background(), cfg, nil)
	if err != nil {
		slog.Error("price sync aborted", slog.Any("error", err))
		os.Exit(1)
	}

	printSummary(result, time.Since(startTime))
}

// run executes one sync pass. Only configuration, store connection and
// catalog read failures are returned; per-product failures end up in the result.
func run(ctx context.Context, cfg *config.Config, transport http.RoundTripper) (*models.RunResult, error) {
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()
	slog.Info("store connected")

	if err := st.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	fetcher, err := scraper.NewFetcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialising fetcher: %w", err)
	}
	if transport != nil {
		fetcher.WithTransport(transport)
	}

	export, err := pipeline.NewOutputWriter(cfg.ExportFormat, cfg.ExportFile)
	if err != nil {
		return nil, fmt.Errorf("creating export writer: %w", err)
	}
	if export != nil {
		defer func() {
			if err := export.Close(); err != nil {
				slog.Error("close export", slog.Any("error", err))
			}
		}()
	}

	opts := pipeline.Options{
		Source:        cfg.Source,
		Delay:         cfg.Delay,
		DedupeMaxSize: cfg.DedupeMaxSize,
		Metrics:       fetcher.Metrics,
	}
	if priceCache := openPriceCache(ctx, cfg); priceCache != nil {
		defer priceCache.Close()
		opts.Cache = priceCache
	}

	stopMetrics := startMetricsServer(cfg.MetricsAddr, fetcher.Metrics)
	defer stopMetrics()

	d := pipeline.NewDriver(st, fetcher, pipeline.NewRecorder(st, export), pipeline.NewReporter(st), opts)
	result, err := d.Run(ctx)
	if err != nil && result == nil {
		return nil, err
	}
	if err != nil {
		slog.Error("run summary not recorded", slog.Any("error", err))
	}
	if err := validateExport(export, result.Counters); err != nil {
		slog.Error("export validation failed", slog.Any("error", err))
	}
	return result, nil
}

// validateExport checks the export file once something was recorded.
func validateExport(export pipeline.OutputWriter, counters models.RunCounters) error {
	if export == nil || counters.Success == 0 {
		return nil
	}
	return export.Validate()
}

func openPriceCache(ctx context.Context, cfg *config.Config) *cache.RedisPriceCache {
	if cfg.RedisAddr == "" {
		return nil
	}
	c := cache.NewRedisPriceCache(cfg.RedisAddr, cfg.PriceCacheTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		slog.Warn("price cache unavailable, continuing without change tracking", slog.Any("error", err))
		c.Close()
		return nil
	}
	slog.Info("price cache enabled", slog.String("addr", cfg.RedisAddr))
	return c
}

func startMetricsServer(addr string, metrics *scraper.Metrics) func() {
	if addr == "" || metrics == nil {
		return func() {}
	}

	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func loadConfig(args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if value, ok := config.EnvString("PRICESYNC_API_BASE_URL"); ok {
		cfg.APIBaseURL = value
	}
	if value, ok := config.EnvString("PRICESYNC_DATABASE_URL"); ok {
		cfg.DatabaseURL = value
	}
	if value, ok := config.EnvString("PRICESYNC_REDIS_ADDR"); ok {
		cfg.RedisAddr = value
	}
	if value, ok := config.EnvString("PRICESYNC_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok, err := config.EnvDuration("PRICESYNC_DELAY"); err != nil {
		return nil, fmt.Errorf("invalid PRICESYNC_DELAY: %w", err)
	} else if ok {
		cfg.Delay = value
	}
	if value, ok, err := config.EnvDuration("PRICESYNC_TIMEOUT"); err != nil {
		return nil, fmt.Errorf("invalid PRICESYNC_TIMEOUT: %w", err)
	} else if ok {
		cfg.Timeout = value
	}
	if value, ok, err := config.EnvInt("PRICESYNC_DEDUPE_MAX_SIZE"); err != nil {
		return nil, fmt.Errorf("invalid PRICESYNC_DEDUPE_MAX_SIZE: %w", err)
	} else if ok {
		cfg.DedupeMaxSize = value
	}

	fs := flag.NewFlagSet("pricesync", flag.ContinueOnError)
	fs.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "Vendor API base URL")
	fs.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "Database URL (postgres://... or sqlite://path)")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for last-price tracking (empty disables)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Pause between vendor requests")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	fs.StringVar(&cfg.ExportFile, "export", cfg.ExportFile, "Export file mirroring recorded prices")
	fs.StringVar(&cfg.ExportFormat, "format", cfg.ExportFormat, "Export format: csv or json (empty disables)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printSummary(result *models.RunResult, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Price sync complete")

	c := result.Counters
	fmt.Printf("  Total products: %d\n", c.Total)
	fmt.Printf("  Success:        %d (%.1f%%)\n", c.Success, c.SuccessRate())
	fmt.Printf("  Failed:         %d\n", c.Failed)
	fmt.Printf("  Skipped:        %d\n", c.Skipped)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:    %v\n", result.ErrorsByType)
	}
	if len(result.DealsByType) > 0 {
		deals := make([]string, 0, len(result.DealsByType))
		for deal := range result.DealsByType {
			deals = append(deals, string(deal))
		}
		sort.Strings(deals)
		for _, deal := range deals {
			fmt.Printf("  %-15s %d\n", deal+":", result.DealsByType[models.DealType(deal)])
		}
	}
	if result.Summary != nil {
		fmt.Printf("  Run status:     %s\n", result.Summary.Status)
	}
	fmt.Printf("  Duration:       %v\n", duration)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
