// Package catalog exposes the list, summary and upsert operations of the
// shows catalog on top of a plan-executing backend.
package catalog

import (
	"context"
	"log/slog"

	"showcatalog/internal/logging"
	"showcatalog/internal/observability"
	"showcatalog/internal/planner"
	"showcatalog/internal/schema"
)

// Upsert outcomes as reported to metrics.
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Service is the boundary consumed by the HTTP layer and the importer.
type Service struct {
	registry *schema.Registry
	backend  Backend
	resolver *Resolver
	metrics  *observability.CatalogMetrics
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records list, summary and upsert metrics.
func WithMetrics(metrics *observability.CatalogMetrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// NewService creates a catalog service.
func NewService(registry *schema.Registry, backend Backend, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		backend:  backend,
		resolver: NewResolver(registry, backend),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry the service validates against.
func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// ListShows returns one page of records matching the filters.
func (s *Service) ListShows(ctx context.Context, filters map[string]string, sortBy, sortDirection string, page int) ([]schema.Record, error) {
	plan := planner.BuildQueryPlan(s.registry, filters, sortBy, sortDirection, page)

	records, err := s.backend.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordList(ctx, len(plan.Predicates), len(records), plan.Sort != nil)
	logging.FromContext(ctx).Debug("listed shows",
		slog.Int("predicates", len(plan.Predicates)),
		slog.Int("page", plan.Page),
		slog.Int("rows", len(records)),
	)
	return records, nil
}

// SummarizeShows returns grouped counts and the number of groups.
func (s *Service) SummarizeShows(ctx context.Context, groupBy []string, filterColumn, filterValue string) ([]planner.GroupedCount, int, error) {
	plan := planner.BuildAggregationPlan(s.registry, groupBy, filterColumn, filterValue)

	results, err := s.backend.ExecuteAggregation(ctx, plan)
	if err != nil {
		return nil, 0, err
	}

	s.metrics.RecordSummary(ctx, len(results), plan.Filter != nil)
	return results, len(results), nil
}

// UpsertShow creates or updates a record by show_id.
func (s *Service) UpsertShow(ctx context.Context, payload map[string]any) (schema.Record, bool, error) {
	rec, created, err := s.resolver.Resolve(ctx, payload)
	switch {
	case err == nil && created:
		s.metrics.RecordUpsert(ctx, OutcomeCreated)
	case err == nil:
		s.metrics.RecordUpsert(ctx, OutcomeUpdated)
	case IsValidation(err) || IsParse(err):
		s.metrics.RecordUpsert(ctx, OutcomeRejected)
	default:
		s.metrics.RecordUpsert(ctx, OutcomeFailed)
	}
	if err != nil {
		return nil, false, err
	}

	logging.FromContext(ctx).Info("upserted show",
		slog.String("show_id", keyString(rec, s.registry)),
		slog.Bool("created", created),
	)
	return rec, created, nil
}

func keyString(rec schema.Record, reg *schema.Registry) string {
	key, _ := rec[reg.Key().Name].(string)
	return key
}
