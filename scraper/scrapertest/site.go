// Package scrapertest serves a synthetic copy of the catalog site through an
// httpmock transport so crawler code can be exercised without a network.
package scrapertest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jarcoal/httpmock"
)

var ratings = []string{"One", "Two", "Three", "Four", "Five"}

// Book is one item page served by the site.
type Book struct {
	ID           int
	Title        string
	Price        string
	Rating       string
	Availability string
	Category     string
	URL          string
	ImageURL     string
}

// Category is one sidebar entry and its listing pages.
type Category struct {
	Name     string
	URL      string
	PageURLs []string
	Books    []Book
}

// Site is a fake catalog rooted at BaseURL.
type Site struct {
	BaseURL    string
	Transport  *httpmock.MockTransport
	Categories []*Category

	nextBookID int
}

// NewSite returns an empty site. baseURL must end with "/".
func NewSite(baseURL string) *Site {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	s := &Site{
		BaseURL:   baseURL,
		Transport: httpmock.NewMockTransport(),
	}
	s.registerRoot()
	return s
}

// AddCategory adds a category whose listing spans len(pageSizes) pages, page i
// holding pageSizes[i] books. Pages link to each other with relative "next" links.
func (s *Site) AddCategory(name string, pageSizes ...int) *Category {
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	dir := fmt.Sprintf("%scatalogue/category/books/%s_%d/", s.BaseURL, slug, len(s.Categories)+2)

	cat := &Category{Name: name, URL: dir + "index.html"}
	for page, size := range pageSizes {
		pageURL := dir + "index.html"
		if page > 0 {
			pageURL = fmt.Sprintf("%spage-%d.html", dir, page+1)
		}
		cat.PageURLs = append(cat.PageURLs, pageURL)

		var hrefs []string
		for range size {
			book := s.newBook(name, slug)
			cat.Books = append(cat.Books, book)
			hrefs = append(hrefs, s.ListingHref(book))
			s.Transport.RegisterResponder(http.MethodGet, book.URL, HTMLResponder(BookPage(book)))
		}

		next := ""
		if page < len(pageSizes)-1 {
			next = fmt.Sprintf("page-%d.html", page+2)
		}
		s.Transport.RegisterResponder(http.MethodGet, pageURL, HTMLResponder(ListingPage(hrefs, next)))
	}

	s.Categories = append(s.Categories, cat)
	s.registerRoot()
	return cat
}

// ListingHref returns the link a listing page uses for book.
func (s *Site) ListingHref(book Book) string {
	return "../../../" + strings.TrimPrefix(book.URL, s.BaseURL+"catalogue/")
}

// ItemURLs lists every book URL of every category.
func (s *Site) ItemURLs() []string {
	var urls []string
	for _, cat := range s.Categories {
		for _, book := range cat.Books {
			urls = append(urls, book.URL)
		}
	}
	return urls
}

// Fail makes GET url answer with status and an empty body.
func (s *Site) Fail(url string, status int) {
	s.Transport.RegisterResponder(http.MethodGet, url, httpmock.NewStringResponder(status, ""))
}

// Serve makes GET url answer with an HTML body.
func (s *Site) Serve(url, body string) {
	s.Transport.RegisterResponder(http.MethodGet, url, HTMLResponder(body))
}

// Calls returns how many requests hit url.
func (s *Site) Calls(url string) int {
	return s.Transport.GetCallCountInfo()[http.MethodGet+" "+url]
}

// TotalCalls returns how many requests hit the site.
func (s *Site) TotalCalls() int {
	return s.Transport.GetTotalCallCount()
}

func (s *Site) newBook(category, slug string) Book {
	s.nextBookID++
	id := s.nextBookID
	return Book{
		ID:           id,
		Title:        fmt.Sprintf("%s Book %d", category, id),
		Price:        fmt.Sprintf("£%d.%02d", 10+id, id%100),
		Rating:       ratings[id%len(ratings)],
		Availability: fmt.Sprintf("In stock (%d available)", id),
		Category:     category,
		URL:          fmt.Sprintf("%scatalogue/%s-%d_%d/index.html", s.BaseURL, slug, id, id),
		ImageURL:     fmt.Sprintf("%smedia/cache/%02d/book-%d.jpg", s.BaseURL, id%100, id),
	}
}

func (s *Site) registerRoot() {
	body := RootPage(s.Categories, s.BaseURL)
	s.Transport.RegisterResponder(http.MethodGet, s.BaseURL, HTMLResponder(body))
	s.Transport.RegisterResponder(http.MethodGet, s.BaseURL+"index.html", HTMLResponder(body))
}

// HTMLResponder answers 200 with body as UTF-8 HTML.
func HTMLResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

// RootPage renders a home page whose sidebar lists categories.
func RootPage(categories []*Category, baseURL string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="side_categories"><ul class="nav nav-list"><li>`)
	b.WriteString(`<a href="catalogue/category/books_1/index.html">Books</a><ul>`)
	for _, cat := range categories {
		href := strings.TrimPrefix(cat.URL, baseURL)
		fmt.Fprintf(&b, "<li>\n<a href=%q>\n    %s\n</a>\n</li>", href, cat.Name)
	}
	b.WriteString(`</ul></li></ul></div></body></html>`)
	return b.String()
}

// ListingPage renders a category page with item cards and an optional next link.
func ListingPage(itemHrefs []string, nextHref string) string {
	var b strings.Builder
	b.WriteString(`<html><body><section><ol class="row">`)
	for i, href := range itemHrefs {
		fmt.Fprintf(&b, `<li><article class="product_pod"><div class="image_container"><a href=%q><img src="x.jpg"></a></div>`, href)
		fmt.Fprintf(&b, `<h3><a href=%q title="Card %d">Card %d</a></h3></article></li>`, href, i, i)
	}
	b.WriteString(`</ol>`)
	if nextHref != "" {
		fmt.Fprintf(&b, `<ul class="pager"><li class="current">Page</li><li class="next"><a href=%q>next</a></li></ul>`, nextHref)
	}
	b.WriteString(`</section></body></html>`)
	return b.String()
}

// BookPage renders a detail page shaped like the real site's.
func BookPage(book Book) string {
	imageHref := fmt.Sprintf("../../media/cache/%02d/book-%d.jpg", book.ID%100, book.ID)
	var b strings.Builder
	b.WriteString(`<html><body><ul class="breadcrumb">`)
	b.WriteString(`<li><a href="../../index.html">Home</a></li>`)
	b.WriteString(`<li><a href="../category/books_1/index.html">Books</a></li>`)
	fmt.Fprintf(&b, `<li><a href="../category/books/x/index.html">%s</a></li>`, book.Category)
	fmt.Fprintf(&b, `<li class="active">%s</li></ul>`, book.Title)
	b.WriteString(`<article class="product_page"><div class="row">`)
	fmt.Fprintf(&b, `<div class="col-sm-6"><div id="product_gallery" class="carousel"><div class="thumbnail"><div class="carousel-inner"><div class="item active"><img src=%q alt=%q /></div></div></div></div></div>`, imageHref, book.Title)
	fmt.Fprintf(&b, `<div class="col-sm-6 product_main"><h1>%s</h1>`, book.Title)
	fmt.Fprintf(&b, `<p class="price_color">%s</p>`, book.Price)
	fmt.Fprintf(&b, "<p class=\"instock availability\">\n    <i class=\"icon-ok\"></i>\n    \n        %s\n    \n</p>", book.Availability)
	fmt.Fprintf(&b, `<p class="star-rating %s"><i class="icon-star"></i></p></div>`, book.Rating)
	b.WriteString(`</div></article></body></html>`)
	return b.String()
}
