package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero item workers",
			mutate: func(cfg *Config) {
				cfg.ItemWorkers = 0
			},
			wantErr: "item workers",
		},
		{
			name: "negative listing workers",
			mutate: func(cfg *Config) {
				cfg.ListingWorkers = -1
			},
			wantErr: "listing workers",
		},
		{
			name: "zero max listing pages",
			mutate: func(cfg *Config) {
				cfg.MaxListingPages = 0
			},
			wantErr: "max listing pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 5 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "unknown store driver",
			mutate: func(cfg *Config) {
				cfg.StoreDriver = "bolt"
			},
			wantErr: "store driver",
		},
		{
			name: "postgres without dsn",
			mutate: func(cfg *Config) {
				cfg.StoreDriver = "postgres"
				cfg.StoreDSN = ""
			},
			wantErr: "store DSN",
		},
		{
			name: "feed format without file",
			mutate: func(cfg *Config) {
				cfg.FeedFormat = "json"
				cfg.FeedFile = ""
			},
			wantErr: "feed file",
		},
		{
			name: "lease without ttl",
			mutate: func(cfg *Config) {
				cfg.LeaseRedisAddr = "localhost:6379"
				cfg.LeaseTTL = 0
			},
			wantErr: "lease ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestMemoryDriverNeedsNoDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StoreDriver = "memory"
	cfg.StoreDSN = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory driver should validate without dsn, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("INGEST_ITEM_WORKERS", "7")
	t.Setenv("INGEST_CRAWL_INTERVAL", "15m")
	t.Setenv("INGEST_STORE_DRIVER", "Postgres")
	t.Setenv("INGEST_STORE_DSN", "postgres://localhost/books")
	t.Setenv("INGEST_VERBOSE", "true")
	t.Setenv("INGEST_BASE_URL", "   ")

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if cfg.ItemWorkers != 7 {
		t.Fatalf("item workers = %d, want 7", cfg.ItemWorkers)
	}
	if cfg.CrawlInterval != 15*time.Minute {
		t.Fatalf("crawl interval = %s, want 15m", cfg.CrawlInterval)
	}
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("store driver = %q, want postgres", cfg.StoreDriver)
	}
	if !cfg.Verbose {
		t.Fatalf("verbose should be enabled")
	}
	if cfg.BaseURL != DefaultConfig().BaseURL {
		t.Fatalf("blank env value should not override base url, got %q", cfg.BaseURL)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("INGEST_TIMEOUT", "soon")

	if err := ApplyEnv(DefaultConfig()); err == nil || !strings.Contains(err.Error(), "INGEST_TIMEOUT") {
		t.Fatalf("expected INGEST_TIMEOUT error, got %v", err)
	}
}
