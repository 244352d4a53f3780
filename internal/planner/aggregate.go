package planner

import (
	"sort"

	"showcatalog/internal/schema"
)

// DefaultGroupBy is used when none of the requested group columns resolve.
var DefaultGroupBy = []string{"type", "rating"}

// CountAlias is the result column holding the group size.
const CountAlias = "count"

// AggregationPlan groups the table and counts rows by key column.
type AggregationPlan struct {
	GroupBy []schema.Column
	Filter  *Predicate
}

// GroupedCount is one aggregation result row.
type GroupedCount struct {
	Groups map[string]any
	Count  int64
}

// BuildAggregationPlan resolves group columns and the optional filter.
// Group names must match a registry column exactly. Group columns are
// deduplicated and returned in registry order.
func BuildAggregationPlan(reg *schema.Registry, rawGroupBy []string, filterColumn, filterValue string) AggregationPlan {
	var plan AggregationPlan

	seen := make(map[string]bool, len(rawGroupBy))
	for _, raw := range rawGroupBy {
		col, ok := reg.Lookup(raw)
		if !ok || seen[col.Name] {
			continue
		}
		seen[col.Name] = true
		plan.GroupBy = append(plan.GroupBy, col)
	}
	if len(plan.GroupBy) == 0 {
		for _, name := range DefaultGroupBy {
			if col, ok := reg.Lookup(name); ok {
				plan.GroupBy = append(plan.GroupBy, col)
			}
		}
	}
	sort.SliceStable(plan.GroupBy, func(i, j int) bool {
		return reg.Position(plan.GroupBy[i].Name) < reg.Position(plan.GroupBy[j].Name)
	})

	if filterColumn != "" && filterValue != "" {
		if col, ok := reg.Resolve(filterColumn); ok {
			if col.IsMulti() {
				plan.Filter = &Predicate{Column: col, Operator: OpContains, Value: []string{filterValue}}
			} else {
				// Containment has no meaning for scalar columns; compare directly.
				plan.Filter = &Predicate{Column: col, Operator: OpEq, Value: filterValue}
			}
		}
	}

	return plan
}
