package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key and whether it was set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overrides cfg with any INGEST_* variables present in the environment.
func ApplyEnv(cfg *Config) error {
	if v, ok := EnvString("INGEST_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := EnvString("INGEST_USER_AGENT"); ok {
		cfg.UserAgent = v
	}
	if v, ok := EnvString("INGEST_STORE_DRIVER"); ok {
		cfg.StoreDriver = strings.ToLower(v)
	}
	if v, ok := EnvString("INGEST_STORE_DSN"); ok {
		cfg.StoreDSN = v
	}
	if v, ok := EnvString("INGEST_LEASE_REDIS_ADDR"); ok {
		cfg.LeaseRedisAddr = v
	}
	if v, ok := EnvString("INGEST_FEED_FILE"); ok {
		cfg.FeedFile = v
	}
	if v, ok := EnvString("INGEST_FEED_FORMAT"); ok {
		cfg.FeedFormat = strings.ToLower(v)
	}
	if v, ok := EnvString("INGEST_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"INGEST_LISTING_WORKERS", &cfg.ListingWorkers},
		{"INGEST_ITEM_WORKERS", &cfg.ItemWorkers},
		{"INGEST_MAX_LISTING_PAGES", &cfg.MaxListingPages},
		{"INGEST_MAX_RETRIES", &cfg.MaxRetries},
		{"INGEST_CACHE_SIZE", &cfg.CacheSize},
	}
	for _, entry := range ints {
		value, ok, err := EnvInt(entry.key)
		if err != nil {
			return err
		}
		if ok {
			*entry.dst = value
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"INGEST_TIMEOUT", &cfg.Timeout},
		{"INGEST_RETRY_BACKOFF", &cfg.RetryBackoff},
		{"INGEST_RETRY_BACKOFF_MAX", &cfg.RetryBackoffMax},
		{"INGEST_RUN_TIMEOUT", &cfg.RunTimeout},
		{"INGEST_CRAWL_INTERVAL", &cfg.CrawlInterval},
		{"INGEST_BOOTSTRAP_DELAY", &cfg.BootstrapDelay},
		{"INGEST_TRIGGER_DELAY", &cfg.TriggerDelay},
		{"INGEST_LEASE_TTL", &cfg.LeaseTTL},
	}
	for _, entry := range durations {
		value, ok, err := EnvDuration(entry.key)
		if err != nil {
			return err
		}
		if ok {
			*entry.dst = value
		}
	}

	if value, ok, err := EnvBool("INGEST_RESPECT_ROBOTS"); err != nil {
		return err
	} else if ok {
		cfg.RespectRobotsTxt = value
	}
	if value, ok, err := EnvBool("INGEST_VERBOSE"); err != nil {
		return err
	} else if ok {
		cfg.Verbose = value
	}

	return nil
}
