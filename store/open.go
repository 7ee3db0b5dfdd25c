package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-ingest-books/config"
)

// Open builds the Store selected by cfg.StoreDriver, wrapped in an LRU cache
// when cfg.CacheSize is positive.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var (
		backend Store
		err     error
	)
	switch cfg.StoreDriver {
	case "memory":
		backend = NewMemory()
	case "sqlite":
		backend, err = OpenSQLite(ctx, cfg.StoreDSN)
	case "postgres":
		backend, err = OpenPostgres(ctx, cfg.StoreDSN)
	case "mongo":
		backend, err = OpenMongo(ctx, cfg.StoreDSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("store opened",
		slog.String("driver", cfg.StoreDriver),
		slog.Int("cache_size", cfg.CacheSize),
	)

	if cfg.CacheSize <= 0 {
		return backend, nil
	}
	cached, err := NewCached(backend, cfg.CacheSize)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return cached, nil
}
