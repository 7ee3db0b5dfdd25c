package store

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-ingest-books/models"
)

// Cached fronts a Store with LRU caches of records already known to exist.
// Stored records never change, so a cache hit is always an "existing" answer.
// Misses on the same key are serialized so only one reaches the backend.
type Cached struct {
	Store

	categories *lru.Cache[string, models.Category]
	items      *lru.Cache[string, models.Item]
	locks      *KeyLock
}

// NewCached wraps inner with caches holding up to size entries each.
func NewCached(inner Store, size int) (*Cached, error) {
	categories, err := lru.New[string, models.Category](size)
	if err != nil {
		return nil, fmt.Errorf("category cache: %w", err)
	}
	items, err := lru.New[string, models.Item](size)
	if err != nil {
		return nil, fmt.Errorf("item cache: %w", err)
	}
	return &Cached{
		Store:      inner,
		categories: categories,
		items:      items,
		locks:      NewKeyLock(),
	}, nil
}

func (c *Cached) UpsertCategory(ctx context.Context, name string) (models.Category, bool, error) {
	name, err := normalizeName(name)
	if err != nil {
		return models.Category{}, false, err
	}
	if category, ok := c.categories.Get(name); ok {
		return category, false, nil
	}

	unlock := c.locks.Lock("category:" + name)
	defer unlock()

	if category, ok := c.categories.Get(name); ok {
		return category, false, nil
	}
	category, inserted, err := c.Store.UpsertCategory(ctx, name)
	if err != nil {
		return models.Category{}, false, err
	}
	c.categories.Add(name, category)
	return category, inserted, nil
}

func (c *Cached) UpsertItem(ctx context.Context, parsed models.ParsedItem) (models.Item, bool, error) {
	parsed, err := normalizeItem(parsed)
	if err != nil {
		return models.Item{}, false, err
	}
	if item, ok := c.items.Get(parsed.DetailURL); ok {
		return item, false, nil
	}

	unlock := c.locks.Lock("item:" + parsed.DetailURL)
	defer unlock()

	if item, ok := c.items.Get(parsed.DetailURL); ok {
		return item, false, nil
	}
	item, inserted, err := c.Store.UpsertItem(ctx, parsed)
	if err != nil {
		return models.Item{}, false, err
	}
	c.items.Add(item.DetailURL, item)
	return item, inserted, nil
}

func (c *Cached) GetItem(ctx context.Context, detailURL string) (models.Item, error) {
	detailURL = strings.TrimSpace(detailURL)
	if item, ok := c.items.Get(detailURL); ok {
		return item, nil
	}
	item, err := c.Store.GetItem(ctx, detailURL)
	if err != nil {
		return models.Item{}, err
	}
	c.items.Add(detailURL, item)
	return item, nil
}

// Purge empties both caches.
func (c *Cached) Purge() {
	c.categories.Purge()
	c.items.Purge()
}
