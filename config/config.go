package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds ingest service configuration.
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	UserAgent        string
	RespectRobotsTxt bool

	ListingWorkers  int
	ItemWorkers     int
	MaxListingPages int
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	RunTimeout      time.Duration // zero disables the run deadline

	CrawlInterval  time.Duration
	BootstrapDelay time.Duration
	TriggerDelay   time.Duration
	LeaseRedisAddr string
	LeaseTTL       time.Duration

	StoreDriver string // memory, sqlite, postgres, or mongo
	StoreDSN    string
	CacheSize   int

	FeedFile   string
	FeedFormat string // csv, json, dual, or empty to disable

	ListenAddr string
	Verbose    bool
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://books.toscrape.com/",
		Timeout:          10 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		ListingWorkers:   20,
		ItemWorkers:      30,
		MaxListingPages:  100,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		RunTimeout:       0,
		CrawlInterval:    time.Hour,
		BootstrapDelay:   5 * time.Second,
		TriggerDelay:     2 * time.Second,
		LeaseTTL:         30 * time.Minute,
		StoreDriver:      "sqlite",
		StoreDSN:         "data/books.db",
		CacheSize:        4096,
		FeedFormat:       "",
		ListenAddr:       ":8080",
		Verbose:          false,
	}
}

// Validate ensures all configuration values are coherent.
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

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ListingWorkers <= 0 {
		return fmt.Errorf("listing workers must be positive")
	}
	if c.ItemWorkers <= 0 {
		return fmt.Errorf("item workers must be positive")
	}
	if c.MaxListingPages <= 0 {
		return fmt.Errorf("max listing pages must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run timeout cannot be negative")
	}
	if c.CrawlInterval <= 0 {
		return fmt.Errorf("crawl interval must be positive")
	}
	if c.BootstrapDelay < 0 || c.TriggerDelay < 0 {
		return fmt.Errorf("bootstrap and trigger delays cannot be negative")
	}
	if c.LeaseRedisAddr != "" && c.LeaseTTL <= 0 {
		return fmt.Errorf("lease ttl must be positive when a lease redis address is set")
	}

	switch c.StoreDriver {
	case "memory":
	case "sqlite", "postgres", "mongo":
		if c.StoreDSN == "" {
			return fmt.Errorf("store DSN cannot be empty for driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("store driver must be memory, sqlite, postgres, or mongo")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}

	switch c.FeedFormat {
	case "":
	case "csv", "json", "dual":
		if c.FeedFile == "" {
			return fmt.Errorf("feed file cannot be empty when feed format is %q", c.FeedFormat)
		}
	default:
		return fmt.Errorf("feed format must be csv, json, dual, or empty")
	}

	return nil
}
