package scraper

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/aluiziolira/go-ingest-books/scraper/scrapertest"
)

func TestFetchItem(t *testing.T) {
	site := scrapertest.NewSite(testBaseURL)
	cat := site.AddCategory("Poetry", 1)
	book := cat.Books[0]
	fetcher := NewItemFetcher(newTestFetcher(t, site.Transport))

	item, err := fetcher.FetchItem(context.Background(), book.URL)
	if err != nil {
		t.Fatalf("fetch item: %v", err)
	}

	if item.Title != book.Title {
		t.Fatalf("title = %q, want %q", item.Title, book.Title)
	}
	if item.PriceRaw != book.Price {
		t.Fatalf("price = %q, want %q", item.PriceRaw, book.Price)
	}
	if item.RatingRaw != book.Rating {
		t.Fatalf("rating = %q, want %q", item.RatingRaw, book.Rating)
	}
	if item.AvailabilityRaw != book.Availability {
		t.Fatalf("availability = %q, want %q", item.AvailabilityRaw, book.Availability)
	}
	if item.CategoryName != "Poetry" {
		t.Fatalf("category = %q, want Poetry", item.CategoryName)
	}
	if item.ImageURL != book.ImageURL {
		t.Fatalf("image = %q, want %q", item.ImageURL, book.ImageURL)
	}
	if item.DetailURL != book.URL {
		t.Fatalf("detail url = %q, want %q", item.DetailURL, book.URL)
	}
}

func TestFetchItemMissingTitle(t *testing.T) {
	site := scrapertest.NewSite(testBaseURL)
	url := testBaseURL + "catalogue/broken_1/index.html"
	site.Serve(url, `<html><body><div class="product_main"><p class="price_color">£1.00</p></div></body></html>`)
	fetcher := NewItemFetcher(newTestFetcher(t, site.Transport))

	item, err := fetcher.FetchItem(context.Background(), url)
	if item != nil {
		t.Fatalf("expected nil item, got %+v", item)
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || !strings.HasPrefix(parseErr.Missing, "title") {
		t.Fatalf("expected missing-title parse error, got %v", err)
	}
}

func TestFetchItemNotFound(t *testing.T) {
	site := scrapertest.NewSite(testBaseURL)
	cat := site.AddCategory("Poetry", 1)
	site.Fail(cat.Books[0].URL, http.StatusNotFound)
	fetcher := NewItemFetcher(newTestFetcher(t, site.Transport))

	item, err := fetcher.FetchItem(context.Background(), cat.Books[0].URL)
	if item != nil || err == nil {
		t.Fatalf("expected failure, got item=%v err=%v", item, err)
	}
	if IsRetryable(err) {
		t.Fatalf("404 should not be retryable")
	}
}

func TestExtractItemRequiresEveryField(t *testing.T) {
	book := scrapertest.Book{
		ID:           7,
		Title:        "Sharp Objects",
		Price:        "£47.82",
		Rating:       "Four",
		Availability: "In stock (20 available)",
		Category:     "Mystery",
		URL:          testBaseURL + "catalogue/sharp-objects_7/index.html",
	}
	full := scrapertest.BookPage(book)

	tests := []struct {
		name    string
		remove  string
		missing string
	}{
		{name: "title", remove: "<h1>Sharp Objects</h1>", missing: "title"},
		{name: "price", remove: `<p class="price_color">£47.82</p>`, missing: "price"},
		{name: "rating", remove: `<p class="star-rating Four"><i class="icon-star"></i></p>`, missing: "rating"},
		{name: "availability", remove: "In stock (20 available)", missing: "availability"},
		{name: "category", remove: `<li><a href="../category/books/x/index.html">Mystery</a></li>`, missing: "category"},
		{name: "image", remove: `<img src="../../media/cache/07/book-7.jpg" alt="Sharp Objects" />`, missing: "image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := strings.Replace(full, tt.remove, "", 1)
			if page == full {
				t.Fatalf("fixture does not contain %q", tt.remove)
			}
			doc, err := NewDocument([]byte(page), book.URL)
			if err != nil {
				t.Fatalf("new document: %v", err)
			}

			item, err := extractItem(doc, book.URL)
			if item != nil {
				t.Fatalf("expected nil item, got %+v", item)
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if !strings.Contains(parseErr.Missing, tt.missing) {
				t.Fatalf("missing = %q, want it to name %q", parseErr.Missing, tt.missing)
			}
		})
	}
}
