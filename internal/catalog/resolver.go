package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"

	"showcatalog/internal/planner"
	"showcatalog/internal/schema"
)

// Backend is the execution layer the catalog calls into.
type Backend interface {
	Execute(ctx context.Context, plan planner.QueryPlan) ([]schema.Record, error)
	ExecuteAggregation(ctx context.Context, plan planner.AggregationPlan) ([]planner.GroupedCount, error)
	FindByKey(ctx context.Context, key string) (schema.Record, bool, error)
	Persist(ctx context.Context, rec schema.Record, isInsert bool) (schema.Record, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Resolver creates or updates a record by its natural key.
type Resolver struct {
	registry *schema.Registry
	backend  Backend
}

// NewResolver creates a resolver over the given registry and backend.
func NewResolver(registry *schema.Registry, backend Backend) *Resolver {
	return &Resolver{registry: registry, backend: backend}
}

// Resolve upserts payload. It returns the written record and whether it was
// newly created. The lookup and the single write share one transaction.
func (r *Resolver) Resolve(ctx context.Context, payload map[string]any) (schema.Record, bool, error) {
	key, err := r.extractKey(payload)
	if err != nil {
		return nil, false, err
	}

	fields, err := r.decode(payload)
	if err != nil {
		return nil, false, err
	}
	if nulls := r.requiredNulls(fields); len(nulls) > 0 {
		return nil, false, &ValidationError{Kind: KindMissingField, Fields: nulls, Message: "required fields cannot be null"}
	}

	var (
		saved   schema.Record
		created bool
	)
	err = r.backend.RunInTx(ctx, func(ctx context.Context) error {
		existing, found, err := r.backend.FindByKey(ctx, key)
		if err != nil {
			return err
		}

		if found {
			merged := existing.Clone()
			for name, value := range fields {
				merged[name] = value
			}
			saved, err = r.backend.Persist(ctx, merged, false)
			return err
		}

		if missing := r.missingRequired(fields); len(missing) > 0 {
			return &ValidationError{Kind: KindMissingField, Fields: missing, Message: "missing required fields"}
		}
		saved, err = r.backend.Persist(ctx, fields, true)
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return saved, created, nil
}

func (r *Resolver) extractKey(payload map[string]any) (string, error) {
	keyCol := r.registry.Key()
	raw, ok := payload[keyCol.Name]
	if !ok || raw == nil {
		return "", &ValidationError{Kind: KindMissingKey, Fields: []string{keyCol.Name}, Message: "the show id is mandatory"}
	}

	value, err := keyCol.Coerce(raw)
	if err != nil {
		return "", toParseError(err, keyCol.Name, raw)
	}
	key, _ := value.(string)
	if strings.TrimSpace(key) == "" {
		return "", &ValidationError{Kind: KindMissingKey, Fields: []string{keyCol.Name}, Message: "the show id is mandatory"}
	}
	return key, nil
}

// decode keeps registry columns only and converts them to typed values.
func (r *Resolver) decode(payload map[string]any) (schema.Record, error) {
	rec := make(schema.Record, len(payload))
	for _, col := range r.registry.Columns() {
		raw, ok := payload[col.Name]
		if !ok {
			continue
		}
		value, err := col.Coerce(raw)
		if err != nil {
			return nil, toParseError(err, col.Name, raw)
		}
		rec[col.Name] = value
	}
	return rec, nil
}

func (r *Resolver) requiredNulls(rec schema.Record) []string {
	var nulls []string
	for _, col := range r.registry.Required() {
		if value, ok := rec[col.Name]; ok && value == nil {
			nulls = append(nulls, col.Name)
		}
	}
	return nulls
}

func (r *Resolver) missingRequired(rec schema.Record) []string {
	var missing []string
	for _, col := range r.registry.Required() {
		if _, ok := rec[col.Name]; !ok {
			missing = append(missing, col.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

func toParseError(err error, field string, value any) error {
	var coerceErr *schema.CoerceError
	if errors.As(err, &coerceErr) {
		return &ParseError{Field: coerceErr.Column, Value: coerceErr.Value, Err: coerceErr.Err}
	}
	return &ParseError{Field: field, Value: value, Err: err}
}
