package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-ingest-books/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS categories (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS items (
	id               BIGSERIAL PRIMARY KEY,
	title            TEXT NOT NULL,
	price_raw        TEXT NOT NULL DEFAULT '',
	rating_raw       TEXT NOT NULL DEFAULT '',
	availability_raw TEXT NOT NULL DEFAULT '',
	category_name    TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	detail_url       TEXT NOT NULL UNIQUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS items_category_name_idx ON items (category_name);
`

// Postgres stores records through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, pings the server and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) UpsertCategory(ctx context.Context, name string) (models.Category, bool, error) {
	name, err := normalizeName(name)
	if err != nil {
		return models.Category{}, false, err
	}

	var c models.Category
	err = p.pool.QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id, name, created_at`, name,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Category{}, false, fmt.Errorf("insert category %q: %w", name, err)
	}

	err = p.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM categories WHERE name = $1`, name,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return models.Category{}, false, fmt.Errorf("read category %q: %w", name, err)
	}
	return c, false, nil
}

func (p *Postgres) UpsertItem(ctx context.Context, parsed models.ParsedItem) (models.Item, bool, error) {
	parsed, err := normalizeItem(parsed)
	if err != nil {
		return models.Item{}, false, err
	}

	row := p.pool.QueryRow(ctx,
		`INSERT INTO items (title, price_raw, rating_raw, availability_raw, category_name, image_url, detail_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (detail_url) DO NOTHING
		 RETURNING `+itemColumns,
		parsed.Title, parsed.PriceRaw, parsed.RatingRaw, parsed.AvailabilityRaw,
		parsed.CategoryName, parsed.ImageURL, parsed.DetailURL,
	)
	item, err := scanItem(row)
	if err == nil {
		return item, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Item{}, false, fmt.Errorf("insert item %s: %w", parsed.DetailURL, err)
	}

	item, err = p.GetItem(ctx, parsed.DetailURL)
	if err != nil {
		return models.Item{}, false, fmt.Errorf("read item %s: %w", parsed.DetailURL, err)
	}
	return item, false, nil
}

func (p *Postgres) CountCategories(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

func (p *Postgres) ListCategories(ctx context.Context, page Page) ([]models.Category, error) {
	page = page.normalized()
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, created_at FROM categories ORDER BY id LIMIT $1 OFFSET $2`,
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

func (p *Postgres) ListItems(ctx context.Context, filter ItemFilter) ([]models.Item, error) {
	page := filter.Page.normalized()

	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category_name = $%d", len(args)))
	}
	if filter.TitleContains != "" {
		args = append(args, filter.TitleContains)
		where = append(where, fmt.Sprintf("strpos(lower(title), lower($%d)) > 0", len(args)))
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
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

func (p *Postgres) GetItem(ctx context.Context, detailURL string) (models.Item, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE detail_url = $1`, strings.TrimSpace(detailURL))
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	return item, err
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
