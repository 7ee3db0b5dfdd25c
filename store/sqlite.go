package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aluiziolira/go-ingest-books/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS categories (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	title            TEXT NOT NULL,
	price_raw        TEXT NOT NULL DEFAULT '',
	rating_raw       TEXT NOT NULL DEFAULT '',
	availability_raw TEXT NOT NULL DEFAULT '',
	category_name    TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	detail_url       TEXT NOT NULL UNIQUE,
	created_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS items_category_name_idx ON items (category_name);
`

const itemColumns = `id, title, price_raw, rating_raw, availability_raw, category_name, image_url, detail_url, created_at`

// SQLite stores records in a single SQLite file. Uniqueness is enforced by the
// schema; conflicting inserts are skipped and the winner is read back.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
}

func (s *SQLite) UpsertCategory(ctx context.Context, name string) (models.Category, bool, error) {
	name, err := normalizeName(name)
	if err != nil {
		return models.Category{}, false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, time.Now().UTC(),
	)
	if err != nil {
		return models.Category{}, false, fmt.Errorf("insert category %q: %w", name, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return models.Category{}, false, fmt.Errorf("insert category %q: %w", name, err)
	}

	var c models.Category
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM categories WHERE name = ?`, name,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return models.Category{}, false, fmt.Errorf("read category %q: %w", name, err)
	}
	return c, inserted == 1, nil
}

func (s *SQLite) UpsertItem(ctx context.Context, parsed models.ParsedItem) (models.Item, bool, error) {
	parsed, err := normalizeItem(parsed)
	if err != nil {
		return models.Item{}, false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (title, price_raw, rating_raw, availability_raw, category_name, image_url, detail_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (detail_url) DO NOTHING`,
		parsed.Title, parsed.PriceRaw, parsed.RatingRaw, parsed.AvailabilityRaw,
		parsed.CategoryName, parsed.ImageURL, parsed.DetailURL, time.Now().UTC(),
	)
	if err != nil {
		return models.Item{}, false, fmt.Errorf("insert item %s: %w", parsed.DetailURL, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return models.Item{}, false, fmt.Errorf("insert item %s: %w", parsed.DetailURL, err)
	}

	item, err := s.GetItem(ctx, parsed.DetailURL)
	if err != nil {
		return models.Item{}, false, fmt.Errorf("read item %s: %w", parsed.DetailURL, err)
	}
	return item, inserted == 1, nil
}

func (s *SQLite) CountCategories(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

func (s *SQLite) ListCategories(ctx context.Context, page Page) ([]models.Category, error) {
	page = page.normalized()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM categories ORDER BY id LIMIT ? OFFSET ?`,
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *SQLite) ListItems(ctx context.Context, filter ItemFilter) ([]models.Item, error) {
	page := filter.Page.normalized()

	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		where = append(where, "category_name = ?")
		args = append(args, filter.Category)
	}
	if filter.TitleContains != "" {
		where = append(where, "instr(lower(title), lower(?)) > 0")
		args = append(args, filter.TitleContains)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, page.Limit, page.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLite) GetItem(ctx context.Context, detailURL string) (models.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE detail_url = ?`, strings.TrimSpace(detailURL))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	return item, err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var item models.Item
	err := row.Scan(
		&item.ID, &item.Title, &item.PriceRaw, &item.RatingRaw, &item.AvailabilityRaw,
		&item.CategoryName, &item.ImageURL, &item.DetailURL, &item.CreatedAt,
	)
	if err != nil {
		return models.Item{}, fmt.Errorf("scan item: %w", err)
	}
	return item, nil
}
