package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-ingest-books/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory with cache", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.StoreDriver = "memory"
		cfg.CacheSize = 4

		s, err := Open(ctx, cfg)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &Cached{}, s)
	})

	t.Run("sqlite without cache", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.StoreDSN = filepath.Join(t.TempDir(), "books.db")
		cfg.CacheSize = 0

		s, err := Open(ctx, cfg)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLite{}, s)
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.StoreDriver = "bolt"

		_, err := Open(ctx, cfg)
		assert.ErrorIs(t, err, ErrUnknownDriver)
	})
}
