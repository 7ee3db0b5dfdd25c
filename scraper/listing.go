package scraper

import (
	"context"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
)

const (
	itemCardSelector = "article.product_pod h3 a"
	nextPageSelector = "li.next a"
)

// Paginator walks a category listing by following its "next" links.
type Paginator struct {
	fetcher  PageFetcher
	maxPages int
	logger   *slog.Logger
}

// NewPaginator returns a paginator that visits at most maxPages pages per listing.
func NewPaginator(fetcher PageFetcher, maxPages int) *Paginator {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Paginator{
		fetcher:  fetcher,
		maxPages: maxPages,
		logger:   slog.Default().With(slog.String("component", "paginator")),
	}
}

// ListItemURLs returns the detail URLs of every item card reachable from
// listingURL, in page order and without duplicates. It never fails: a page
// that cannot be fetched ends the walk with what was collected so far.
func (p *Paginator) ListItemURLs(ctx context.Context, listingURL string) []string {
	var urls []string
	seenURLs := make(map[string]struct{})
	visited := make(map[string]struct{})

	current := listingURL
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			p.logger.Debug("listing walk cancelled", slog.String("url", current))
			return urls
		}
		if page > p.maxPages {
			p.logger.Warn("listing page limit reached",
				slog.String("listing", listingURL),
				slog.Int("max_pages", p.maxPages),
			)
			return urls
		}
		visited[current] = struct{}{}

		doc, err := p.fetcher.Fetch(ctx, current)
		if err != nil {
			p.logger.Warn("listing page failed, truncating category",
				slog.String("listing", listingURL),
				slog.String("url", current),
				slog.Int("collected", len(urls)),
				slog.Any("error", err),
			)
			return urls
		}
		// Redirects land on a different URL than requested.
		visited[doc.URL()] = struct{}{}

		doc.Find(itemCardSelector).Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			link := doc.AbsoluteURL(href)
			if link == "" {
				return
			}
			if _, dup := seenURLs[link]; dup {
				return
			}
			seenURLs[link] = struct{}{}
			urls = append(urls, link)
		})

		href, ok := doc.Attr(nextPageSelector, "href")
		if !ok {
			return urls
		}
		next := doc.AbsoluteURL(href)
		if next == "" {
			return urls
		}
		if _, seen := visited[next]; seen {
			p.logger.Warn("listing next link cycles, stopping",
				slog.String("listing", listingURL),
				slog.String("url", current),
				slog.String("next", next),
			)
			return urls
		}
		current = next
	}
}
