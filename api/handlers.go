// Package api exposes the ingest service over HTTP: health, crawl triggers
// and read-only views of the store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-ingest-books/models"
	"github.com/aluiziolira/go-ingest-books/parser"
	"github.com/aluiziolira/go-ingest-books/pipeline"
	"github.com/aluiziolira/go-ingest-books/schedule"
	"github.com/aluiziolira/go-ingest-books/store"
)

// Scheduler is the trigger boundary the handlers depend on.
type Scheduler interface {
	TriggerCrawl() error
	Running() bool
	Jobs() []schedule.JobInfo
	Stats() schedule.Stats
}

// Catalog is the read side of the store.
type Catalog interface {
	CountCategories(ctx context.Context) (int, error)
	ListCategories(ctx context.Context, page store.Page) ([]models.Category, error)
	ListItems(ctx context.Context, filter store.ItemFilter) ([]models.Item, error)
	GetItem(ctx context.Context, detailURL string) (models.Item, error)
}

// PoolReporter exposes worker pool counters.
type PoolReporter interface {
	PoolStats() []pipeline.PoolStats
}

type Handlers struct {
	scheduler Scheduler
	catalog   Catalog
	pools     PoolReporter
	logger    *slog.Logger
}

// HandlerOption customises Handlers.
type HandlerOption func(*Handlers)

// WithPoolStats adds pool counters to the health response.
func WithPoolStats(pools PoolReporter) HandlerOption {
	return func(h *Handlers) {
		h.pools = pools
	}
}

func NewHandlers(scheduler Scheduler, catalog Catalog, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		scheduler: scheduler,
		catalog:   catalog,
		logger:    logger.With(slog.String("component", "api")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse reports liveness plus scheduler and store state.
type HealthResponse struct {
	Status     string               `json:"status"`
	Categories int                  `json:"categories"`
	Scheduler  SchedulerStatus      `json:"scheduler"`
	Pools      []pipeline.PoolStats `json:"pools,omitempty"`
	Error      string               `json:"error,omitempty"`
}

type SchedulerStatus struct {
	Running bool               `json:"running"`
	Jobs    []schedule.JobInfo `json:"jobs"`
	Stats   schedule.Stats     `json:"stats"`
}

// Health handles GET /api/v1/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Scheduler: SchedulerStatus{
			Running: h.scheduler.Running(),
			Jobs:    h.scheduler.Jobs(),
			Stats:   h.scheduler.Stats(),
		},
	}
	if h.pools != nil {
		resp.Pools = h.pools.PoolStats()
	}

	n, err := h.catalog.CountCategories(r.Context())
	if err != nil {
		h.logger.Error("health check: count categories failed", slog.Any("error", err))
		resp.Status = "error"
		resp.Error = "store unavailable"
		h.respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Categories = n
	h.respondJSON(w, http.StatusOK, resp)
}

// TriggerResponse acknowledges a crawl request.
type TriggerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TriggerCrawl handles POST and GET /api/v1/scraping/trigger. The crawl runs
// in the background; the response only confirms it was scheduled.
func (h *Handlers) TriggerCrawl(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.TriggerCrawl(); err != nil {
		if errors.Is(err, schedule.ErrNotRunning) {
			h.respondError(w, http.StatusServiceUnavailable, "scheduler is not running")
			return
		}
		h.logger.Error("trigger crawl failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to schedule crawl")
		return
	}
	h.respondJSON(w, http.StatusAccepted, TriggerResponse{
		Status:  "accepted",
		Message: "crawl scheduled",
	})
}

type CategoriesResponse struct {
	Categories []models.Category `json:"categories"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
}

// ListCategories handles GET /api/v1/categories.
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	categories, err := h.catalog.ListCategories(r.Context(), page)
	if err != nil {
		h.logger.Error("list categories failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	h.respondJSON(w, http.StatusOK, CategoriesResponse{
		Categories: categories,
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
}

// BookView is a stored item plus values interpreted from its raw text.
// PriceValue is null when the price text carries no number.
type BookView struct {
	models.Item
	PriceValue  *float64 `json:"price_value"`
	RatingValue int      `json:"rating_value"`
	StockCount  int      `json:"stock_count"`
}

func newBookView(item models.Item) BookView {
	view := BookView{
		Item:        item,
		RatingValue: parser.RatingToNumeric(item.RatingRaw),
		StockCount:  parser.AvailabilityCount(item.AvailabilityRaw),
	}
	if price, err := parser.ParsePrice(item.PriceRaw); err == nil {
		view.PriceValue = &price
	}
	return view
}

type BooksResponse struct {
	Books  []BookView `json:"books"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// ListBooks handles GET /api/v1/books?category=&q=&limit=&offset=.
func (h *Handlers) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := r.URL.Query()
	filter := store.ItemFilter{
		Category:      strings.TrimSpace(query.Get("category")),
		TitleContains: strings.TrimSpace(query.Get("q")),
		Page:          page,
	}
	books, err := h.catalog.ListItems(r.Context(), filter)
	if err != nil {
		h.logger.Error("list books failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to list books")
		return
	}
	views := make([]BookView, 0, len(books))
	for _, book := range books {
		views = append(views, newBookView(book))
	}
	h.respondJSON(w, http.StatusOK, BooksResponse{
		Books:  views,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// LookupBook handles GET /api/v1/books/lookup?url=.
func (h *Handlers) LookupBook(w http.ResponseWriter, r *http.Request) {
	detailURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if detailURL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	book, err := h.catalog.GetItem(r.Context(), detailURL)
	if errors.Is(err, store.ErrNotFound) {
		h.respondError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		h.logger.Error("lookup book failed", slog.String("url", detailURL), slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "failed to look up book")
		return
	}
	h.respondJSON(w, http.StatusOK, newBookView(book))
}

func parsePage(r *http.Request) (store.Page, error) {
	page := store.Page{Limit: store.DefaultPageLimit}
	query := r.URL.Query()

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return page, errors.New("limit must be a positive integer")
		}
		if limit > store.MaxPageLimit {
			limit = store.MaxPageLimit
		}
		page.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return page, errors.New("offset must be a non-negative integer")
		}
		page.Offset = offset
	}
	return page, nil
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
