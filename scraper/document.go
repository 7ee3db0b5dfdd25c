package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML page together with the URL it was served from.
type Document struct {
	dom  *goquery.Document
	url  *url.URL
	base *url.URL
}

// NewDocument parses body as HTML served from pageURL.
func NewDocument(body []byte, pageURL string) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	return newDocument(body, u)
}

func newDocument(body []byte, pageURL *url.URL) (*Document, error) {
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	dom.Url = pageURL

	base := pageURL
	if href, ok := dom.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := pageURL.Parse(strings.TrimSpace(href)); err == nil {
			base = resolved
		}
	}

	return &Document{dom: dom, url: pageURL, base: base}, nil
}

// URL returns the final URL of the page, after redirects.
func (d *Document) URL() string {
	return d.url.String()
}

// Find runs a CSS selector over the whole page.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.dom.Find(selector)
}

// Text returns the trimmed text of the first element matching selector.
func (d *Document) Text(selector string) string {
	return strings.TrimSpace(d.dom.Find(selector).First().Text())
}

// Attr returns the trimmed attribute of the first element matching selector.
func (d *Document) Attr(selector, attr string) (string, bool) {
	value, ok := d.dom.Find(selector).First().Attr(attr)
	return strings.TrimSpace(value), ok
}

// AbsoluteURL resolves href against the page base. Empty and fragment-only
// links resolve to "".
func (d *Document) AbsoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	resolved, err := d.base.Parse(href)
	if err != nil {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
