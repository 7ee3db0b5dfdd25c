// Package scraper turns pages of the source site into categories, item URLs
// and parsed items.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/go-ingest-books/config"
	"github.com/gocolly/colly/v2"
)

// PageFetcher retrieves one page and parses it into a queryable document.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Document, error)
}

// Fetcher is the colly-backed PageFetcher. It never retries and never caches.
type Fetcher struct {
	collector *colly.Collector
	metrics   *Metrics
	logger    *slog.Logger
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	// Colly fails every status from 203 up; hand all responses to OnResponse
	// and treat only non-2xx as failures.
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.ItemWorkers,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Fetcher{
		collector: collector,
		metrics:   metrics,
		logger:    slog.Default().With(slog.String("component", "fetcher")),
	}, nil
}

// WithTransport replaces the HTTP transport shared by every fetch.
func (f *Fetcher) WithTransport(transport http.RoundTripper) {
	f.collector.WithTransport(transport)
}

// Fetch issues one GET for rawURL. Any non-2xx status or transport failure is
// returned as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c := f.collector.Clone()
	c.Context = ctx

	var (
		doc        *Document
		respErr    error
		statusCode int
	)
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		if r.StatusCode/100 != 2 {
			respErr = fmt.Errorf("http status %d", r.StatusCode)
			return
		}
		doc, respErr = newDocument(r.Body, r.Request.URL)
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	f.metrics.IncRequest("started")
	start := time.Now()
	err := c.Visit(rawURL)
	f.metrics.ObserveDuration(time.Since(start))

	if err == nil && respErr != nil {
		err = respErr
	}
	if err == nil && doc == nil {
		err = fmt.Errorf("empty response")
	}
	if err != nil {
		classified := classifyError(err, statusCode)
		label := errorTypeLabel(classified)
		f.metrics.IncRequest("failed")
		f.metrics.IncError(label)
		f.logger.Debug("fetch failed",
			slog.String("url", rawURL),
			slog.Int("status", statusCode),
			slog.String("category", label),
			slog.Any("error", err),
		)
		return nil, &FetchError{URL: rawURL, StatusCode: statusCode, Err: classified}
	}

	f.metrics.IncRequest("succeeded")
	return doc, nil
}
