// Package importer loads a titles CSV export into the catalog through the
// same upsert path the API uses.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"showcatalog/internal/catalog"
	"showcatalog/internal/logging"
	"showcatalog/internal/observability"
	"showcatalog/internal/schema"
)

// DefaultWorkers is used when no positive worker count is configured.
const DefaultWorkers = 4

// Upserter applies one payload. catalog.Service satisfies it.
type Upserter interface {
	UpsertShow(ctx context.Context, payload map[string]any) (schema.Record, bool, error)
}

// RowError is a row the catalog rejected.
type RowError struct {
	Line int
	Key  string
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d (%s): %v", e.Line, e.Key, e.Err)
}

// Report summarizes an import run.
type Report struct {
	Rows    int
	Created int
	Updated int
	Failed  int
	Errors  []RowError
}

// Importer streams CSV rows into an Upserter with bounded concurrency.
type Importer struct {
	registry *schema.Registry
	upserter Upserter
	workers  int
	metrics  *observability.CatalogMetrics
}

// Option configures an Importer.
type Option func(*Importer)

// WithWorkers sets the number of concurrent upserts.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.workers = n
		}
	}
}

// WithMetrics counts imported rows by outcome.
func WithMetrics(metrics *observability.CatalogMetrics) Option {
	return func(im *Importer) {
		im.metrics = metrics
	}
}

// New creates an Importer.
func New(registry *schema.Registry, upserter Upserter, opts ...Option) *Importer {
	im := &Importer{
		registry: registry,
		upserter: upserter,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Run reads every row from r. Rows rejected as invalid are reported and
// skipped; any other upsert failure stops the run and is returned along
// with the partial report.
func (im *Importer) Run(ctx context.Context, r io.Reader) (Report, error) {
	logger := logging.FromContext(ctx)
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Report{}, fmt.Errorf("import source is empty")
	}
	if err != nil {
		return Report{}, fmt.Errorf("failed to read header: %w", err)
	}
	decoder, err := NewRowDecoder(im.registry, header)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)

	keyName := im.registry.Key().Name
	line := 1
	for gctx.Err() == nil {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			g.Go(func() error { return fmt.Errorf("failed to read CSV: %w", err) })
			break
		}

		payload := decoder.Decode(row)
		rowLine := line
		g.Go(func() error {
			_, created, err := im.upserter.UpsertShow(gctx, payload)

			mu.Lock()
			defer mu.Unlock()
			report.Rows++
			switch {
			case err == nil && created:
				report.Created++
				im.metrics.RecordImportRow(gctx, catalog.OutcomeCreated)
			case err == nil:
				report.Updated++
				im.metrics.RecordImportRow(gctx, catalog.OutcomeUpdated)
			case catalog.IsValidation(err) || catalog.IsParse(err):
				report.Failed++
				key, _ := payload[keyName].(string)
				report.Errors = append(report.Errors, RowError{Line: rowLine, Key: key, Err: err})
				im.metrics.RecordImportRow(gctx, catalog.OutcomeRejected)
			default:
				report.Failed++
				im.metrics.RecordImportRow(gctx, catalog.OutcomeFailed)
				return fmt.Errorf("line %d: %w", rowLine, err)
			}
			return nil
		})
	}

	err = g.Wait()
	sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].Line < report.Errors[j].Line })

	logger.Info("import finished",
		slog.Int("rows", report.Rows),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("failed", report.Failed),
	)
	if err == nil {
		err = ctx.Err()
	}
	return report, err
}
