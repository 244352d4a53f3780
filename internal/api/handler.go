// Package api serves the shows catalog over HTTP.
package api

import (
	"context"
	"net/http"

	"showcatalog/internal/middleware"
	"showcatalog/internal/observability"
	"showcatalog/internal/planner"
	"showcatalog/internal/schema"
)

// Catalog is the subset of catalog.Service the handlers need.
type Catalog interface {
	Registry() *schema.Registry
	ListShows(ctx context.Context, filters map[string]string, sortBy, sortDirection string, page int) ([]schema.Record, error)
	SummarizeShows(ctx context.Context, groupBy []string, filterColumn, filterValue string) ([]planner.GroupedCount, int, error)
	UpsertShow(ctx context.Context, payload map[string]any) (schema.Record, bool, error)
}

// Route labels used for metrics and span names.
const (
	RouteShows   = "/shows/"
	RouteSummary = "/shows/summary"
)

// DefaultMaxBodyBytes caps upsert payloads when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// Config wires optional behaviour into the handlers.
type Config struct {
	// MaxBodyBytes caps POST bodies; zero uses DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// WriteAuth guards state-changing requests. Nil leaves them open.
	WriteAuth func(http.Handler) http.Handler
	Metrics   *observability.CatalogMetrics
}

// Handler serves the catalog routes.
type Handler struct {
	catalog      Catalog
	registry     *schema.Registry
	maxBodyBytes int64
	writeAuth    func(http.Handler) http.Handler
	metrics      *observability.CatalogMetrics
}

// NewHandler creates the catalog HTTP handlers.
func NewHandler(catalog Catalog, cfg Config) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{
		catalog:      catalog,
		registry:     catalog.Registry(),
		maxBodyBytes: maxBody,
		writeAuth:    cfg.WriteAuth,
		metrics:      cfg.Metrics,
	}
}

// Register mounts the catalog routes on mux. Both /shows and /shows/ list
// and upsert.
func (h *Handler) Register(mux *http.ServeMux) {
	list := h.instrument(RouteShows, withETag(http.HandlerFunc(h.listShows)))
	upsert := h.instrument(RouteShows, h.guardWrite(http.HandlerFunc(h.upsertShow)))
	summary := h.instrument(RouteSummary, withETag(http.HandlerFunc(h.summarizeShows)))

	for _, path := range []string{"/shows", "/shows/{$}"} {
		mux.Handle("GET "+path, list)
		mux.Handle("POST "+path, upsert)
	}
	mux.Handle("GET /shows/summary", summary)
}

func (h *Handler) instrument(route string, next http.Handler) http.Handler {
	return middleware.MetricsMiddleware(h.metrics, route)(next)
}

func (h *Handler) guardWrite(next http.Handler) http.Handler {
	if h.writeAuth == nil {
		return next
	}
	return middleware.RequireForWrites(h.writeAuth)(next)
}
