package scraper

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-ingest-books/models"
)

const categoryLinkSelector = "div.side_categories ul li ul li a"

// CategoryLister reads the category sidebar of the site root.
type CategoryLister struct {
	fetcher PageFetcher
	rootURL string
	logger  *slog.Logger
}

// NewCategoryLister returns a lister for the sidebar at rootURL.
func NewCategoryLister(fetcher PageFetcher, rootURL string) *CategoryLister {
	return &CategoryLister{
		fetcher: fetcher,
		rootURL: rootURL,
		logger:  slog.Default().With(slog.String("component", "categories")),
	}
}

// ListCategories returns the sidebar categories in page order. Any failure is
// an *EnumerationError.
func (l *CategoryLister) ListCategories(ctx context.Context) ([]models.CategoryLink, error) {
	doc, err := l.fetcher.Fetch(ctx, l.rootURL)
	if err != nil {
		return nil, &EnumerationError{URL: l.rootURL, Err: err}
	}

	var categories []models.CategoryLink
	doc.Find(categoryLinkSelector).Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		link := doc.AbsoluteURL(href)
		if name == "" || link == "" {
			l.logger.Debug("skipping malformed category link", slog.String("href", href))
			return
		}
		categories = append(categories, models.CategoryLink{Name: name, URL: link})
	})

	if len(categories) == 0 {
		return nil, &EnumerationError{
			URL: doc.URL(),
			Err: errors.New("no category links found"),
		}
	}

	l.logger.Debug("categories discovered", slog.Int("count", len(categories)))
	return categories, nil
}
