// Package planner turns caller-supplied filter, sort and grouping parameters
// into registry-validated plans and renders those plans as SQL.
package planner

import (
	"math"

	"showcatalog/internal/schema"
)

// PageSize is the fixed number of records returned per page.
const PageSize = 10

// Operator is a predicate comparison.
type Operator string

const (
	// OpILike is a case-insensitive pattern match; % and _ act as wildcards.
	OpILike Operator = "ilike"
	// OpContains tests membership in a multi-text column.
	OpContains Operator = "contains"
	// OpEq is plain equality.
	OpEq Operator = "eq"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Predicate filters on one registry column. Value is a string for ilike and
// eq, and a string or []string for contains.
type Predicate struct {
	Column   schema.Column
	Operator Operator
	Value    any
}

// SortSpec orders results by one registry column.
type SortSpec struct {
	Column    schema.Column
	Direction Direction
}

// QueryPlan is a data-only description of a filtered, sorted page.
type QueryPlan struct {
	Predicates []Predicate
	Sort       *SortSpec
	Page       int
}

// Limit is the page size.
func (p QueryPlan) Limit() uint64 {
	return PageSize
}

// maxPageIndex is the largest zero-based page index whose offset still fits a
// signed 64-bit OFFSET clause.
const maxPageIndex = math.MaxInt64 / PageSize

func (p QueryPlan) pageIndex() uint64 {
	if p.Page < 1 {
		return 0
	}
	return uint64(p.Page - 1)
}

// BeyondEnd reports whether the page starts past any representable row offset.
// Such a page is empty for every table.
func (p QueryPlan) BeyondEnd() bool {
	return p.pageIndex() > maxPageIndex
}

// Offset is the number of rows skipped before the page, capped at
// math.MaxInt64.
func (p QueryPlan) Offset() uint64 {
	if p.BeyondEnd() {
		return math.MaxInt64
	}
	return p.pageIndex() * PageSize
}

// BuildQueryPlan validates filters and sort against the registry.
// Filters whose name is not an exact registry column are dropped, as is a
// sort column that does not resolve. Predicates follow registry order.
func BuildQueryPlan(reg *schema.Registry, rawFilters map[string]string, sortBy, sortDirection string, page int) QueryPlan {
	plan := QueryPlan{Page: page}
	if plan.Page < 1 {
		plan.Page = 1
	}

	for _, col := range reg.Columns() {
		value, ok := rawFilters[col.Name]
		if !ok {
			continue
		}
		op := OpILike
		if col.IsMulti() {
			op = OpContains
		}
		plan.Predicates = append(plan.Predicates, Predicate{Column: col, Operator: op, Value: value})
	}

	if col, ok := reg.Resolve(sortBy); ok {
		plan.Sort = &SortSpec{Column: col, Direction: ParseDirection(sortDirection)}
	}

	return plan
}

// ParseDirection accepts exactly "asc" or "desc"; anything else is Asc.
func ParseDirection(raw string) Direction {
	if Direction(raw) == Desc {
		return Desc
	}
	return Asc
}
