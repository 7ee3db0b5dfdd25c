package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aluiziolira/go-ingest-books/config"
	"github.com/aluiziolira/go-ingest-books/scraper/scrapertest"
	"github.com/jarcoal/httpmock"
)

const testBaseURL = "http://example.test/"

func newTestFetcher(t *testing.T, transport http.RoundTripper) *Fetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBaseURL
	f, err := NewFetcher(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	f.WithTransport(transport)
	return f
}

func TestFetcherParsesDocument(t *testing.T) {
	site := scrapertest.NewSite(testBaseURL)
	site.Serve(testBaseURL+"page.html", `<html><head><base href="http://example.test/nested/"></head><body><h1> Hello </h1><a href="../a.html#top">a</a></body></html>`)
	f := newTestFetcher(t, site.Transport)

	doc, err := f.Fetch(context.Background(), testBaseURL+"page.html")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := doc.Text("h1"); got != "Hello" {
		t.Fatalf("h1 = %q, want Hello", got)
	}
	href, _ := doc.Attr("a", "href")
	if got := doc.AbsoluteURL(href); got != "http://example.test/a.html" {
		t.Fatalf("absolute url = %q, want base-relative resolution", got)
	}
	if got := doc.URL(); got != testBaseURL+"page.html" {
		t.Fatalf("doc url = %q", got)
	}
}

func TestFetcherRevisitsSameURL(t *testing.T) {
	site := scrapertest.NewSite(testBaseURL)
	f := newTestFetcher(t, site.Transport)

	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), testBaseURL); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := site.Calls(testBaseURL); got != 3 {
		t.Fatalf("root calls = %d, want 3 (no caching)", got)
	}
}

func TestFetcherHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusBadGateway, expected: "server_error"},
		{status: http.StatusInternalServerError, expected: "server_error"},
		{status: http.StatusGone, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", testBaseURL, httpmock.NewStringResponder(tt.status, ""))
			f := newTestFetcher(t, transport)

			doc, err := f.Fetch(context.Background(), testBaseURL)
			if doc != nil {
				t.Fatalf("expected nil document on status %d", tt.status)
			}
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected *FetchError, got %T (%v)", err, err)
			}
			if fetchErr.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", fetchErr.StatusCode, tt.status)
			}
			if got := ErrorType(err); got != tt.expected {
				t.Fatalf("error type = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetcherAcceptsEvery2xx(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNonAuthoritativeInfo, http.StatusPartialContent} {
		t.Run(fmt.Sprintf("status_%d", status), func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			resp := httpmock.NewStringResponse(status, "<html><body><h1>ok</h1></body></html>")
			resp.Header.Set("Content-Type", "text/html; charset=utf-8")
			transport.RegisterResponder("GET", testBaseURL, httpmock.ResponderFromResponse(resp))
			f := newTestFetcher(t, transport)

			doc, err := f.Fetch(context.Background(), testBaseURL)
			if err != nil {
				t.Fatalf("status %d: unexpected error %v", status, err)
			}
			if got := doc.Text("h1"); got != "ok" {
				t.Fatalf("h1 = %q, want ok", got)
			}
		})
	}
}

func TestFetcherTransportFailure(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL, httpmock.NewErrorResponder(errors.New("connection reset by peer")))
	f := newTestFetcher(t, transport)

	_, err := f.Fetch(context.Background(), testBaseURL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.URL != testBaseURL {
		t.Fatalf("fetch error url = %q", fetchErr.URL)
	}
}

func TestFetcherCancelledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testBaseURL,
		scrapertest.HTMLResponder("<html></html>").Delay(time.Second))
	f := newTestFetcher(t, transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, testBaseURL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsRetryable(context.Canceled) {
		t.Fatalf("cancellation must not be retryable")
	}
}

func TestFetcherRejectsForeignHost(t *testing.T) {
	site := scrapertest.NewSite(testBaseURL)
	f := newTestFetcher(t, site.Transport)

	if _, err := f.Fetch(context.Background(), "http://elsewhere.test/"); err == nil {
		t.Fatalf("expected error for host outside the base domain")
	}
	if site.TotalCalls() != 0 {
		t.Fatalf("foreign host must not reach the transport")
	}
}
