package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-ingest-books/config"
	"github.com/aluiziolira/go-ingest-books/models"
	"github.com/aluiziolira/go-ingest-books/parser"
	"github.com/aluiziolira/go-ingest-books/scraper"
	"github.com/aluiziolira/go-ingest-books/store"
)

// CategoryEnumerator lists the categories of the site.
type CategoryEnumerator interface {
	ListCategories(ctx context.Context) ([]models.CategoryLink, error)
}

// ListingPaginator walks one category listing and returns its item URLs.
type ListingPaginator interface {
	ListItemURLs(ctx context.Context, listingURL string) []string
}

// ItemFetcher fetches and parses one detail page.
type ItemFetcher interface {
	FetchItem(ctx context.Context, detailURL string) (*models.ParsedItem, error)
}

const feedBatchSize = 64

// Orchestrator drives full crawl runs. Runs may overlap; they share the pools
// and the store.
type Orchestrator struct {
	categories CategoryEnumerator
	listings   ListingPaginator
	items      ItemFetcher
	store      store.Store

	listingPool *Pool
	itemPool    *Pool
	ownsPools   bool

	sink       ItemSink
	metrics    *scraper.Metrics
	logger     *slog.Logger
	retry      retryPolicy
	runTimeout time.Duration
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithPools runs tasks on externally managed pools.
func WithPools(listing, item *Pool) Option {
	return func(o *Orchestrator) {
		o.listingPool = listing
		o.itemPool = item
	}
}

// WithSink forwards newly inserted items to sink.
func WithSink(sink ItemSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithMetrics records run and item outcomes on m.
func WithMetrics(m *scraper.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithComponents replaces the scraper components built from the fetcher.
func WithComponents(categories CategoryEnumerator, listings ListingPaginator, items ItemFetcher) Option {
	return func(o *Orchestrator) {
		if categories != nil {
			o.categories = categories
		}
		if listings != nil {
			o.listings = listings
		}
		if items != nil {
			o.items = items
		}
	}
}

// NewOrchestrator wires the scraper components around fetcher and persists
// into st. Without WithPools it creates and owns pools sized from cfg.
func NewOrchestrator(cfg *config.Config, fetcher scraper.PageFetcher, st store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		categories: scraper.NewCategoryLister(fetcher, cfg.BaseURL),
		listings:   scraper.NewPaginator(fetcher, cfg.MaxListingPages),
		items:      scraper.NewItemFetcher(fetcher),
		store:      st,
		logger:     slog.Default().With(slog.String("component", "orchestrator")),
		retry: retryPolicy{
			maxRetries: cfg.MaxRetries,
			base:       cfg.RetryBackoff,
			max:        cfg.RetryBackoffMax,
		},
		runTimeout: cfg.RunTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.listingPool == nil || o.itemPool == nil {
		o.listingPool = NewPool("listing", cfg.ListingWorkers)
		o.itemPool = NewPool("item", cfg.ItemWorkers)
		o.ownsPools = true
	}
	return o
}

// PoolStats reports the listing and item pool counters.
func (o *Orchestrator) PoolStats() []PoolStats {
	return []PoolStats{o.listingPool.Stats(), o.itemPool.Stats()}
}

// Close releases pools created by NewOrchestrator. It does not close the
// store or the sink.
func (o *Orchestrator) Close() {
	if !o.ownsPools {
		return
	}
	o.listingPool.Close()
	o.itemPool.Close()
}

// RunFullCrawl performs one crawl. The returned error is non-nil only when
// the run aborted or ctx ended; partial failures are reported in the run.
func (o *Orchestrator) RunFullCrawl(ctx context.Context) (*models.CrawlRun, error) {
	run := &models.CrawlRun{
		ID:           uuid.NewString(),
		State:        models.StateIdle,
		StartedAt:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
	logger := o.logger.With(slog.String("run_id", run.ID))

	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	defer func() {
		run.FinishedAt = time.Now()
		o.metrics.ObserveRun(string(run.State), run.Duration())
		logRun(logger, run)
	}()

	run.State = models.StateEnumeratingCategories
	logger.Info("crawl started")

	links, err := o.categories.ListCategories(ctx)
	if err != nil {
		run.State = models.StateAborted
		run.Err = err
		run.ErrorsByType[scraper.ErrorType(err)]++
		return run, err
	}

	tally := newRunTally()
	for _, link := range links {
		if _, inserted, err := o.store.UpsertCategory(ctx, link.Name); err != nil {
			tally.storeFailed(link.URL, err)
			logger.Warn("store category failed", slog.String("category", link.Name), slog.Any("error", err))
		} else if inserted {
			logger.Debug("category added", slog.String("category", link.Name))
		}
	}
	run.Categories = len(links)

	run.State = models.StateCollectingURLs
	urls := o.collectURLs(ctx, logger, links)
	run.URLsEnumerated = len(urls)
	logger.Info("item urls collected",
		slog.Int("categories", len(links)),
		slog.Int("urls", len(urls)),
	)

	run.State = models.StateFetchingItems
	feed := o.newFeed(logger)
	o.fetchItems(ctx, logger, urls, tally, feed)
	feed.flush()

	tally.applyTo(run)
	if run.ItemsInserted > 0 {
		feed.validate()
	}
	run.State = models.StateDone
	if err := ctx.Err(); err != nil {
		run.Err = err
		return run, err
	}
	return run, nil
}

func (o *Orchestrator) collectURLs(ctx context.Context, logger *slog.Logger, links []models.CategoryLink) []string {
	results := make([][]string, len(links))

	var wg sync.WaitGroup
	for i, link := range links {
		wg.Add(1)
		err := o.listingPool.Submit(ctx, func() {
			defer wg.Done()
			results[i] = o.listings.ListItemURLs(ctx, link.URL)
		})
		if err != nil {
			wg.Done()
			logger.Warn("listing dispatch stopped", slog.String("category", link.Name), slog.Any("error", err))
			break
		}
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var urls []string
	for _, batch := range results {
		for _, u := range batch {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	return urls
}

func (o *Orchestrator) fetchItems(ctx context.Context, logger *slog.Logger, urls []string, tally *runTally, feed *feed) {
	var wg sync.WaitGroup
	for i, detailURL := range urls {
		wg.Add(1)
		err := o.itemPool.Submit(ctx, func() {
			defer wg.Done()
			o.ingestItem(ctx, logger, detailURL, tally, feed)
		})
		if err != nil {
			wg.Done()
			for _, skipped := range urls[i:] {
				tally.fetchFailed(skipped, err)
			}
			logger.Warn("item dispatch stopped",
				slog.Int("skipped", len(urls)-i),
				slog.Any("error", err),
			)
			break
		}
	}
	wg.Wait()
}

func (o *Orchestrator) ingestItem(ctx context.Context, logger *slog.Logger, detailURL string, tally *runTally, feed *feed) {
	parsed, err := o.fetchItem(ctx, detailURL, tally)
	if err != nil {
		tally.fetchFailed(detailURL, err)
		o.metrics.IncItems("failed")
		logger.Warn("item skipped",
			slog.String("url", detailURL),
			slog.String("error_type", scraper.ErrorType(err)),
			slog.Any("error", err),
		)
		return
	}

	item, inserted, err := o.store.UpsertItem(ctx, *parsed)
	if err != nil {
		tally.storeFailed(detailURL, err)
		o.metrics.IncItems("store_failed")
		logger.Error("store item failed", slog.String("url", detailURL), slog.Any("error", err))
		return
	}
	if inserted {
		tally.addInserted()
		o.metrics.IncItems("inserted")
		feed.add(item)
		return
	}
	tally.addExisting()
	o.metrics.IncItems("existing")
}

func (o *Orchestrator) fetchItem(ctx context.Context, detailURL string, tally *runTally) (*models.ParsedItem, error) {
	for attempt := 0; ; attempt++ {
		parsed, err := o.items.FetchItem(ctx, detailURL)
		if err == nil {
			if parser.ValidateItem(parsed) != nil {
				missing := parser.MissingFields(parsed)
				if len(missing) == 0 {
					missing = []string{"detail url"}
				}
				return nil, &scraper.ParseError{URL: detailURL, Missing: strings.Join(missing, ", ")}
			}
			return parsed, nil
		}
		if attempt >= o.retry.maxRetries || !scraper.IsRetryable(err) {
			return nil, err
		}
		tally.addRetry()
		o.metrics.IncRetries()
		if !o.retry.wait(ctx, attempt+1) {
			return nil, errors.Join(err, ctx.Err())
		}
	}
}

func logRun(logger *slog.Logger, run *models.CrawlRun) {
	attrs := []any{
		slog.String("state", string(run.State)),
		slog.Duration("duration", run.Duration()),
		slog.Int("categories", run.Categories),
		slog.Int("urls", run.URLsEnumerated),
		slog.Int("inserted", run.ItemsInserted),
		slog.Int("existing", run.ItemsExisting),
		slog.Int("fetch_failures", run.FetchFailures),
		slog.Int("store_failures", run.StoreFailures),
		slog.Int("retries", run.RetryCount),
	}
	if len(run.ErrorsByType) > 0 {
		attrs = append(attrs, slog.Any("errors_by_type", run.ErrorsByType))
	}
	if run.Err != nil {
		attrs = append(attrs, slog.Any("error", run.Err))
	}

	switch {
	case run.State == models.StateAborted:
		logger.Error("crawl aborted", attrs...)
	case run.Err != nil:
		logger.Warn("crawl interrupted", attrs...)
	default:
		logger.Info("crawl finished", attrs...)
	}
}

// runTally accumulates per-item outcomes from concurrent tasks.
type runTally struct {
	mu            sync.Mutex
	inserted      int
	existing      int
	fetchFailures int
	storeFailures int
	retries       int
	failedURLs    []string
	errorsByType  map[string]int
}

func newRunTally() *runTally {
	return &runTally{errorsByType: make(map[string]int)}
}

func (t *runTally) addInserted() {
	t.mu.Lock()
	t.inserted++
	t.mu.Unlock()
}

func (t *runTally) addExisting() {
	t.mu.Lock()
	t.existing++
	t.mu.Unlock()
}

func (t *runTally) addRetry() {
	t.mu.Lock()
	t.retries++
	t.mu.Unlock()
}

func (t *runTally) fetchFailed(url string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetchFailures++
	t.failedURLs = append(t.failedURLs, url)
	t.errorsByType[scraper.ErrorType(err)]++
}

func (t *runTally) storeFailed(url string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.storeFailures++
	t.failedURLs = append(t.failedURLs, url)
	t.errorsByType["store"]++
}

func (t *runTally) applyTo(run *models.CrawlRun) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run.ItemsInserted = t.inserted
	run.ItemsExisting = t.existing
	run.FetchFailures = t.fetchFailures
	run.StoreFailures = t.storeFailures
	run.RetryCount = t.retries
	run.FailedURLs = append([]string(nil), t.failedURLs...)
	for k, v := range t.errorsByType {
		run.ErrorsByType[k] += v
	}
}

// feed batches newly inserted items of one run for the sink.
type feed struct {
	sink   ItemSink
	logger *slog.Logger

	mu    sync.Mutex
	batch []models.Item
}

func (o *Orchestrator) newFeed(logger *slog.Logger) *feed {
	return &feed{sink: o.sink, logger: logger}
}

func (f *feed) add(item models.Item) {
	if f.sink == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batch = append(f.batch, item)
	if len(f.batch) >= feedBatchSize {
		f.flushLocked()
	}
}

func (f *feed) flush() {
	if f.sink == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushLocked()
}

// validate checks the sink after a run that inserted items. A failure is
// logged; the stored items are unaffected.
func (f *feed) validate() {
	if f.sink == nil {
		return
	}
	if err := f.sink.Validate(); err != nil {
		f.logger.Warn("feed validation failed", slog.Any("error", err))
	}
}

func (f *feed) flushLocked() {
	if len(f.batch) == 0 {
		return
	}
	if err := f.sink.Write(f.batch); err != nil {
		f.logger.Error("feed write failed", slog.Int("items", len(f.batch)), slog.Any("error", fmt.Errorf("write batch: %w", err)))
	}
	f.batch = f.batch[:0]
}
