package scraper

import (
	"context"
	"strings"

	"github.com/aluiziolira/go-ingest-books/models"
	"github.com/aluiziolira/go-ingest-books/parser"
)

// ItemFetcher extracts one book from its detail page.
type ItemFetcher struct {
	fetcher PageFetcher
}

// NewItemFetcher returns an ItemFetcher backed by fetcher.
func NewItemFetcher(fetcher PageFetcher) *ItemFetcher {
	return &ItemFetcher{fetcher: fetcher}
}

// FetchItem returns the raw fields of the item at detailURL. A page lacking
// any of title, price, rating, availability, breadcrumb category or image
// yields a *ParseError. On failure the item is nil; callers skip it.
func (f *ItemFetcher) FetchItem(ctx context.Context, detailURL string) (*models.ParsedItem, error) {
	doc, err := f.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return nil, err
	}
	return extractItem(doc, detailURL)
}

func extractItem(doc *Document, detailURL string) (*models.ParsedItem, error) {
	title := doc.Text("div.product_main h1")

	price := doc.Text("div.product_main p.price_color")
	if price == "" {
		price = doc.Text("p.price_color")
	}

	availability := doc.Text("div.product_main p.availability")
	if availability == "" {
		availability = doc.Text("p.availability")
	}

	imageSrc, ok := doc.Attr("div.carousel-inner img", "src")
	if !ok {
		imageSrc, _ = doc.Attr("#product_gallery img", "src")
	}

	item := &models.ParsedItem{
		Title:           title,
		PriceRaw:        price,
		RatingRaw:       ratingToken(doc),
		AvailabilityRaw: availability,
		CategoryName:    breadcrumbCategory(doc),
		ImageURL:        doc.AbsoluteURL(imageSrc),
		DetailURL:       detailURL,
	}
	// Records are never overwritten, so a partial page is skipped rather than stored.
	if missing := parser.MissingFields(item); len(missing) > 0 {
		return nil, &ParseError{URL: detailURL, Missing: strings.Join(missing, ", ")}
	}
	return item, nil
}

// ratingToken returns the class token that sits next to "star-rating",
// e.g. "Three" for class="star-rating Three".
func ratingToken(doc *Document) string {
	class, ok := doc.Attr("div.product_main p.star-rating", "class")
	if !ok {
		class, _ = doc.Attr("p.star-rating", "class")
	}
	for _, token := range strings.Fields(class) {
		if token != "star-rating" {
			return token
		}
	}
	return ""
}

// breadcrumbCategory returns the third breadcrumb link: Home > Books > Category.
// The active crumb holds the item title and never counts.
func breadcrumbCategory(doc *Document) string {
	crumbs := doc.Find("ul.breadcrumb li:not(.active)")
	if crumbs.Length() < 3 {
		return ""
	}
	return strings.TrimSpace(crumbs.Eq(2).Text())
}
