package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CatalogMetrics holds the service's own instruments. All methods are safe
// to call on a nil receiver so callers can run with metrics disabled.
type CatalogMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	listRows        metric.Int64Histogram
	listPredicates  metric.Int64Histogram
	summaryGroups   metric.Int64Histogram
	upserts         metric.Int64Counter
	importedRows    metric.Int64Counter
}

// InitCatalogMetrics creates the catalog instruments on the global meter provider.
func InitCatalogMetrics() (*CatalogMetrics, error) {
	meter := otel.Meter("showcatalog")

	requestDuration, err := meter.Float64Histogram(
		"shows.http.request.duration",
		metric.WithDescription("Duration of catalog HTTP requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"shows.http.requests.total",
		metric.WithDescription("Total number of catalog HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"shows.http.requests.active",
		metric.WithDescription("Number of in-flight catalog HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	listRows, err := meter.Int64Histogram(
		"shows.list.rows",
		metric.WithDescription("Number of records returned per list page"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create list rows histogram: %w", err)
	}

	listPredicates, err := meter.Int64Histogram(
		"shows.list.predicates",
		metric.WithDescription("Number of filter predicates applied per list request"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create list predicates histogram: %w", err)
	}

	summaryGroups, err := meter.Int64Histogram(
		"shows.summary.groups",
		metric.WithDescription("Number of groups returned per summary request"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create summary groups histogram: %w", err)
	}

	upserts, err := meter.Int64Counter(
		"shows.upserts.total",
		metric.WithDescription("Upserts by outcome (created, updated, rejected, failed)"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upsert counter: %w", err)
	}

	importedRows, err := meter.Int64Counter(
		"shows.import.rows.total",
		metric.WithDescription("CSV rows processed by the importer by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create import rows counter: %w", err)
	}

	return &CatalogMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		activeRequests:  activeRequests,
		listRows:        listRows,
		listPredicates:  listPredicates,
		summaryGroups:   summaryGroups,
		upserts:         upserts,
		importedRows:    importedRows,
	}, nil
}

// InitMetrics initializes the catalog metrics and logs the result.
func InitMetrics(logger *slog.Logger) (*CatalogMetrics, error) {
	metrics, err := InitCatalogMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog metrics: %w", err)
	}

	logger.Info("catalog metrics initialized")
	return metrics, nil
}

// RecordRequest records one HTTP request by route, method and status.
func (m *CatalogMetrics) RecordRequest(ctx context.Context, route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
		attribute.Int("status", status),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
}

func (m *CatalogMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

func (m *CatalogMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// RecordList records the shape and size of one list request.
func (m *CatalogMetrics) RecordList(ctx context.Context, predicates, rows int, sorted bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("sorted", sorted))
	m.listPredicates.Record(ctx, int64(predicates), attrs)
	m.listRows.Record(ctx, int64(rows), attrs)
}

// RecordSummary records the number of groups in one summary response.
func (m *CatalogMetrics) RecordSummary(ctx context.Context, groups int, filtered bool) {
	if m == nil {
		return
	}
	m.summaryGroups.Record(ctx, int64(groups), metric.WithAttributes(attribute.Bool("filtered", filtered)))
}

// RecordUpsert counts one upsert by outcome.
func (m *CatalogMetrics) RecordUpsert(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.upserts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordImportRow counts one importer row by outcome.
func (m *CatalogMetrics) RecordImportRow(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.importedRows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
