package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-ingest-books/models"
)

// Memory is an in-process Store. A single mutex makes check-then-insert atomic.
type Memory struct {
	mu         sync.RWMutex
	categories []models.Category
	byName     map[string]int
	items      []models.Item
	byURL      map[string]int
	now        func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byName: make(map[string]int),
		byURL:  make(map[string]int),
		now:    time.Now,
	}
}

func (m *Memory) UpsertCategory(_ context.Context, name string) (models.Category, bool, error) {
	name, err := normalizeName(name)
	if err != nil {
		return models.Category{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.byName[name]; ok {
		return m.categories[idx], false, nil
	}
	category := models.Category{
		ID:        int64(len(m.categories) + 1),
		Name:      name,
		CreatedAt: m.now().UTC(),
	}
	m.byName[name] = len(m.categories)
	m.categories = append(m.categories, category)
	return category, true, nil
}

func (m *Memory) UpsertItem(_ context.Context, parsed models.ParsedItem) (models.Item, bool, error) {
	parsed, err := normalizeItem(parsed)
	if err != nil {
		return models.Item{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.byURL[parsed.DetailURL]; ok {
		return m.items[idx], false, nil
	}
	item := models.NewItem(parsed)
	item.ID = int64(len(m.items) + 1)
	item.CreatedAt = m.now().UTC()
	m.byURL[item.DetailURL] = len(m.items)
	m.items = append(m.items, item)
	return item, true, nil
}

func (m *Memory) CountCategories(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.categories), nil
}

func (m *Memory) ListCategories(_ context.Context, page Page) ([]models.Category, error) {
	page = page.normalized()

	m.mu.RLock()
	defer m.mu.RUnlock()

	return window(m.categories, page), nil
}

func (m *Memory) ListItems(_ context.Context, filter ItemFilter) ([]models.Item, error) {
	page := filter.Page.normalized()
	needle := strings.ToLower(filter.TitleContains)

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]models.Item, 0, len(m.items))
	for _, item := range m.items {
		if filter.Category != "" && item.CategoryName != filter.Category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(item.Title), needle) {
			continue
		}
		matched = append(matched, item)
	}
	return window(matched, page), nil
}

func (m *Memory) GetItem(_ context.Context, detailURL string) (models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.byURL[strings.TrimSpace(detailURL)]
	if !ok {
		return models.Item{}, ErrNotFound
	}
	return m.items[idx], nil
}

func (m *Memory) Close() error {
	return nil
}

func window[T any](rows []T, page Page) []T {
	if page.Offset >= len(rows) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(rows) {
		end = len(rows)
	}
	out := make([]T, end-page.Offset)
	copy(out, rows[page.Offset:end])
	return out
}
