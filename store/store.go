// Package store persists categories and items keyed by their natural keys.
//
// Every backend guarantees at most one record per natural key, even when
// writers race on the same key: UpsertCategory and UpsertItem insert when the
// key is new and otherwise return the stored record untouched.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/aluiziolira/go-ingest-books/models"
)

var (
	// ErrEmptyKey is returned when a natural key is blank.
	ErrEmptyKey = errors.New("store: empty natural key")
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrUnknownDriver is returned by Open for unsupported drivers.
	ErrUnknownDriver = errors.New("store: unknown driver")
)

// DefaultPageLimit applies when a Page has no limit.
const DefaultPageLimit = 50

// MaxPageLimit caps the rows returned by one list call.
const MaxPageLimit = 1000

// Page selects a window of a listing ordered by ID.
type Page struct {
	Limit  int
	Offset int
}

// ItemFilter narrows ListItems. Empty fields match everything.
type ItemFilter struct {
	Category      string
	TitleContains string
	Page
}

// Store is the ingest write path plus the read-only listing used by the API.
type Store interface {
	UpsertCategory(ctx context.Context, name string) (models.Category, bool, error)
	UpsertItem(ctx context.Context, item models.ParsedItem) (models.Item, bool, error)

	CountCategories(ctx context.Context) (int, error)
	ListCategories(ctx context.Context, page Page) ([]models.Category, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]models.Item, error)
	GetItem(ctx context.Context, detailURL string) (models.Item, error)

	Close() error
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyKey
	}
	return name, nil
}

func normalizeItem(item models.ParsedItem) (models.ParsedItem, error) {
	item.DetailURL = strings.TrimSpace(item.DetailURL)
	if item.DetailURL == "" {
		return item, ErrEmptyKey
	}
	return item, nil
}
