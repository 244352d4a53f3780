// Package store executes catalog plans against a database/sql backend.
package store

import (
	"context"
	"fmt"

	"showcatalog/internal/dbexec"
	"showcatalog/internal/planner"
	"showcatalog/internal/schema"
)

// Executor runs statements and opens transactions.
type Executor interface {
	dbexec.QueryExecutor
	dbexec.TxBeginner
}

// Store is the execution layer behind the catalog service. Statements run
// on the transaction carried by the context when there is one.
type Store struct {
	exec   Executor
	target planner.Target
}

// New creates a store for one table.
func New(exec Executor, target planner.Target) *Store {
	return &Store{exec: exec, target: target}
}

// Target returns the table binding used to render SQL.
func (s *Store) Target() planner.Target {
	return s.target
}

func (s *Store) executor(ctx context.Context) dbexec.QueryExecutor {
	return dbexec.ExecutorFor(ctx, s.exec)
}

// Execute runs a query plan and returns at most one page of records.
func (s *Store) Execute(ctx context.Context, plan planner.QueryPlan) ([]schema.Record, error) {
	if plan.BeyondEnd() {
		return []schema.Record{}, nil
	}

	query, err := planner.PlanSelect(s.target, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to plan list query: %w", err)
	}

	rows, err := s.executor(ctx).QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, fmt.Errorf("list query failed: %w", err)
	}
	defer rows.Close()

	records := make([]schema.Record, 0, planner.PageSize)
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list query failed: %w", err)
	}
	return records, nil
}

// ExecuteAggregation runs an aggregation plan.
func (s *Store) ExecuteAggregation(ctx context.Context, plan planner.AggregationPlan) ([]planner.GroupedCount, error) {
	query, err := planner.PlanAggregate(s.target, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to plan aggregation: %w", err)
	}

	rows, err := s.executor(ctx).QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, fmt.Errorf("aggregation query failed: %w", err)
	}
	defer rows.Close()

	var results []planner.GroupedCount
	for rows.Next() {
		values := make([]any, len(plan.GroupBy))
		dest := make([]any, len(plan.GroupBy)+1)
		for i := range values {
			dest[i] = &values[i]
		}
		var count int64
		dest[len(values)] = &count

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation row: %w", err)
		}

		groups := make(map[string]any, len(plan.GroupBy))
		for i, col := range plan.GroupBy {
			value, err := col.FromDB(values[i])
			if err != nil {
				return nil, err
			}
			groups[col.Name] = value
		}
		results = append(results, planner.GroupedCount{Groups: groups, Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregation query failed: %w", err)
	}
	return results, nil
}

// FindByKey loads one record by natural key. Inside a transaction the row
// is locked until commit on dialects that support it.
func (s *Store) FindByKey(ctx context.Context, key string) (schema.Record, bool, error) {
	lock := dbexec.TxContextFromContext(ctx) != nil
	query, err := planner.PlanFindByKey(s.target, key, lock)
	if err != nil {
		return nil, false, fmt.Errorf("failed to plan key lookup: %w", err)
	}

	rows, err := s.executor(ctx).QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, false, fmt.Errorf("key lookup failed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, false, fmt.Errorf("key lookup failed: %w", err)
		}
		return nil, false, nil
	}
	rec, err := s.scanRecord(rows)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Persist writes a record, inserting or updating by key.
func (s *Store) Persist(ctx context.Context, rec schema.Record, isInsert bool) (schema.Record, error) {
	var (
		query planner.SQLQuery
		err   error
	)
	if isInsert {
		query, err = planner.PlanInsert(s.target, rec)
	} else {
		query, err = planner.PlanUpdate(s.target, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to plan write: %w", err)
	}

	if _, err := s.executor(ctx).ExecContext(ctx, query.SQL, query.Args...); err != nil {
		if isInsert {
			return nil, fmt.Errorf("insert failed: %w", err)
		}
		return nil, fmt.Errorf("update failed: %w", err)
	}
	return rec.Clone(), nil
}

// RunInTx runs fn inside a transaction; see dbexec.RunInTx.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return dbexec.RunInTx(ctx, s.exec, fn)
}

// EnsureTable creates the table when it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	ddl := planner.PlanCreateTable(s.target)
	if _, err := s.exec.ExecContext(ctx, ddl.SQL); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.target.Table, err)
	}
	return nil
}

func (s *Store) scanRecord(rows dbexec.Rows) (schema.Record, error) {
	cols := s.target.Registry.Columns()
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	rec := make(schema.Record, len(cols))
	for i, col := range cols {
		value, err := col.FromDB(values[i])
		if err != nil {
			return nil, err
		}
		rec[col.Name] = value
	}
	return rec, nil
}
