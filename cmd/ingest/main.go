package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-ingest-books/api"
	"github.com/aluiziolira/go-ingest-books/config"
	"github.com/aluiziolira/go-ingest-books/models"
	"github.com/aluiziolira/go-ingest-books/pipeline"
	"github.com/aluiziolira/go-ingest-books/schedule"
	"github.com/aluiziolira/go-ingest-books/scraper"
	"github.com/aluiziolira/go-ingest-books/store"
)

const leaseKey = "ingest:crawl-lease"

func main() {
	cfg := config.DefaultConfig()
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	once := flag.Bool("once", false, "Run a single crawl, print a summary and exit")
	registerFlags(flag.CommandLine, cfg)
	flag.Parse()
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)
	cfg.FeedFormat = strings.ToLower(cfg.FeedFormat)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once); err != nil {
		slog.Error("ingest failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func registerFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Root URL of the catalog site")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	fs.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	fs.IntVar(&cfg.ListingWorkers, "listing-workers", cfg.ListingWorkers, "Concurrent category listings")
	fs.IntVar(&cfg.ItemWorkers, "item-workers", cfg.ItemWorkers, "Concurrent item fetches")
	fs.IntVar(&cfg.MaxListingPages, "max-listing-pages", cfg.MaxListingPages, "Page cap per category listing")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retries per item for transient failures")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	fs.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	fs.DurationVar(&cfg.RunTimeout, "run-timeout", cfg.RunTimeout, "Deadline for one full crawl (0 disables)")
	fs.DurationVar(&cfg.CrawlInterval, "interval", cfg.CrawlInterval, "Time between scheduled crawls")
	fs.DurationVar(&cfg.BootstrapDelay, "bootstrap-delay", cfg.BootstrapDelay, "Delay before the startup crawl check")
	fs.DurationVar(&cfg.TriggerDelay, "trigger-delay", cfg.TriggerDelay, "Delay before a manually triggered crawl")
	fs.StringVar(&cfg.LeaseRedisAddr, "lease-redis", cfg.LeaseRedisAddr, "Redis address for the cross-replica crawl lease")
	fs.DurationVar(&cfg.LeaseTTL, "lease-ttl", cfg.LeaseTTL, "Crawl lease lifetime")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "Store driver: memory, sqlite, postgres, or mongo")
	fs.StringVar(&cfg.StoreDSN, "dsn", cfg.StoreDSN, "Store DSN (file path for sqlite)")
	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "Natural-key cache entries (0 disables)")
	fs.StringVar(&cfg.FeedFile, "feed", cfg.FeedFile, "Feed file for newly stored items")
	fs.StringVar(&cfg.FeedFormat, "feed-format", cfg.FeedFormat, "Feed format: csv, json, or dual")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
}

func run(ctx context.Context, cfg *config.Config, once bool) error {
	metrics := scraper.NewMetrics()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()

	sink, err := pipeline.NewSink(cfg)
	if err != nil {
		return fmt.Errorf("create feed: %w", err)
	}
	if sink != nil {
		defer func() {
			if err := sink.Close(); err != nil {
				slog.Error("close feed", slog.Any("error", err))
			}
		}()
	}

	fetcher, err := scraper.NewFetcher(cfg, metrics)
	if err != nil {
		return fmt.Errorf("initialise fetcher: %w", err)
	}

	opts := []pipeline.Option{pipeline.WithMetrics(metrics)}
	if sink != nil {
		opts = append(opts, pipeline.WithSink(sink))
	}
	orch := pipeline.NewOrchestrator(cfg, fetcher, st, opts...)
	defer orch.Close()

	if once {
		crawl, err := orch.RunFullCrawl(ctx)
		if crawl != nil {
			printSummary(crawl, cfg)
		}
		return err
	}

	var schedOpts []schedule.Option
	if cfg.LeaseRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.LeaseRedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect lease redis: %w", err)
		}
		schedOpts = append(schedOpts, schedule.WithLease(schedule.NewRedisLease(client, leaseKey)))
	}
	scheduler := schedule.New(cfg, orch, st, schedOpts...)

	handlers := api.NewHandlers(scheduler, st, slog.Default(), api.WithPoolStats(orch))
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(handlers, api.RouterOptions{Registry: metrics.Registry}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", slog.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown failed", slog.Any("error", err))
		}
		scheduler.Stop()
		return nil
	})

	return g.Wait()
}

func printSummary(run *models.CrawlRun, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Printf("Crawl %s (%s)\n", run.State, run.ID)

	fmt.Printf("  Categories:     %d\n", run.Categories)
	fmt.Printf("  URLs:           %d\n", run.URLsEnumerated)
	fmt.Printf("  Inserted:       %d\n", run.ItemsInserted)
	fmt.Printf("  Existing:       %d\n", run.ItemsExisting)
	fmt.Printf("  Fetch failures: %d\n", run.FetchFailures)
	fmt.Printf("  Store failures: %d\n", run.StoreFailures)
	fmt.Printf("  Retries:        %d\n", run.RetryCount)
	if len(run.ErrorsByType) > 0 {
		fmt.Printf("  Error types:    %v\n", run.ErrorsByType)
	}
	itemsPerSec := 0.0
	if d := run.Duration().Seconds(); d > 0 {
		itemsPerSec = float64(run.ItemsInserted+run.ItemsExisting) / d
	}
	fmt.Printf("  Duration:       %v\n", run.Duration())
	fmt.Printf("  Items/sec:      %.2f\n", itemsPerSec)
	fmt.Printf("  Store:          %s %s\n", cfg.StoreDriver, cfg.StoreDSN)
	if cfg.FeedFormat != "" {
		fmt.Printf("  Feed:           %s (%s)\n", cfg.FeedFile, cfg.FeedFormat)
	}
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
