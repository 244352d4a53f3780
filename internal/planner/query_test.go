package planner

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcatalog/internal/schema"
)

func column(t *testing.T, reg *schema.Registry, name string) schema.Column {
	t.Helper()
	col, ok := reg.Lookup(name)
	require.True(t, ok, "column %s", name)
	return col
}

func TestBuildQueryPlan(t *testing.T) {
	reg := schema.Shows()

	plan := BuildQueryPlan(reg, map[string]string{
		"rating":  "PG-13",
		"cast":    "Ryan Reynolds",
		"runtime": "90",
	}, "Release Year", "desc", 3)

	want := QueryPlan{
		Predicates: []Predicate{
			{Column: column(t, reg, "cast"), Operator: OpContains, Value: "Ryan Reynolds"},
			{Column: column(t, reg, "rating"), Operator: OpILike, Value: "PG-13"},
		},
		Sort: &SortSpec{Column: column(t, reg, "release_year"), Direction: Desc},
		Page: 3,
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(20), plan.Offset())
	assert.Equal(t, uint64(PageSize), plan.Limit())
}

func TestBuildQueryPlanOperatorsByKind(t *testing.T) {
	reg := schema.Shows()
	filters := map[string]string{}
	for _, name := range reg.Names() {
		filters[name] = "x"
	}

	plan := BuildQueryPlan(reg, filters, "", "", 1)
	require.Len(t, plan.Predicates, len(reg.Names()))
	for _, pred := range plan.Predicates {
		if pred.Column.IsMulti() {
			assert.Equal(t, OpContains, pred.Operator, pred.Column.Name)
		} else {
			assert.Equal(t, OpILike, pred.Operator, pred.Column.Name)
		}
	}
}

func TestBuildQueryPlanSort(t *testing.T) {
	reg := schema.Shows()

	tests := []struct {
		name      string
		sortBy    string
		direction string
		wantCol   string
		wantDir   Direction
	}{
		{name: "asc", sortBy: "title", direction: "asc", wantCol: "title", wantDir: Asc},
		{name: "desc", sortBy: "title", direction: "desc", wantCol: "title", wantDir: Desc},
		{name: "empty direction", sortBy: "title", direction: "", wantCol: "title", wantDir: Asc},
		{name: "garbage direction", sortBy: "title", direction: "sideways", wantCol: "title", wantDir: Asc},
		{name: "upper case is not desc", sortBy: "title", direction: "DESC", wantCol: "title", wantDir: Asc},
		{name: "normalized name", sortBy: "  Date   Added", direction: "desc", wantCol: "date_added", wantDir: Desc},
		{name: "unknown column", sortBy: "popularity", direction: "desc"},
		{name: "injection attempt", sortBy: "title; DROP TABLE shows", direction: "asc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := BuildQueryPlan(reg, nil, tt.sortBy, tt.direction, 1)
			if tt.wantCol == "" {
				assert.Nil(t, plan.Sort)
				return
			}
			require.NotNil(t, plan.Sort)
			assert.Equal(t, tt.wantCol, plan.Sort.Column.Name)
			assert.Equal(t, tt.wantDir, plan.Sort.Direction)
		})
	}
}

func TestBuildQueryPlanPageClamp(t *testing.T) {
	reg := schema.Shows()
	for _, page := range []int{-5, 0, 1} {
		plan := BuildQueryPlan(reg, nil, "", "", page)
		assert.Equal(t, 1, plan.Page)
		assert.Equal(t, uint64(0), plan.Offset())
	}
}

func TestParseDirectionMatchesExactly(t *testing.T) {
	for raw, want := range map[string]Direction{
		"desc":  Desc,
		"asc":   Asc,
		"DESC":  Asc,
		" desc": Asc,
		"desc ": Asc,
		"":      Asc,
	} {
		assert.Equal(t, want, ParseDirection(raw), "direction %q", raw)
	}
}

func TestQueryPlanOffsetOverflow(t *testing.T) {
	reg := schema.Shows()

	last := BuildQueryPlan(reg, nil, "", "", math.MaxInt64/PageSize+1)
	assert.False(t, last.BeyondEnd())
	assert.Equal(t, uint64(math.MaxInt64/PageSize*PageSize), last.Offset())

	for _, page := range []int{math.MaxInt64/PageSize + 2, 1844674407370955163, math.MaxInt64} {
		plan := BuildQueryPlan(reg, nil, "", "", page)
		assert.True(t, plan.BeyondEnd(), "page %d", page)
		assert.Equal(t, uint64(math.MaxInt64), plan.Offset(), "page %d", page)
	}
}

func TestQueryPlanProperties(t *testing.T) {
	reg := schema.Shows()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("unknown filter names never produce predicates", prop.ForAll(
		func(name, value string) bool {
			if _, ok := reg.Resolve(name); ok {
				return true
			}
			plan := BuildQueryPlan(reg, map[string]string{name: value}, "", "", 1)
			return len(plan.Predicates) == 0
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("directions other than asc and desc sort ascending", prop.ForAll(
		func(direction string) bool {
			plan := BuildQueryPlan(reg, nil, "title", direction, 1)
			if direction == "desc" {
				return plan.Sort.Direction == Desc
			}
			return plan.Sort.Direction == Asc
		},
		gen.AnyString(),
	))

	properties.Property("pages below one clamp to one", prop.ForAll(
		func(page int) bool {
			plan := BuildQueryPlan(reg, nil, "", "", page)
			return plan.Page == 1 && plan.Offset() == 0
		},
		gen.IntRange(-1000000, 0),
	))

	properties.Property("plans only reference registry columns", prop.ForAll(
		func(names []string, sortBy string) bool {
			filters := make(map[string]string, len(names))
			for _, name := range names {
				filters[name] = "v"
			}
			plan := BuildQueryPlan(reg, filters, sortBy, "asc", 1)
			for _, pred := range plan.Predicates {
				if _, ok := reg.Lookup(pred.Column.Name); !ok {
					return false
				}
			}
			if plan.Sort != nil {
				if _, ok := reg.Lookup(plan.Sort.Column.Name); !ok {
					return false
				}
			}
			return true
		},
		gen.SliceOf(pick("title", "cast", "bogus", "Title", "listed_in", "")),
		pick("title", "Release Year", "nope", ""),
	))

	properties.TestingRun(t)
}

func pick(choices ...string) gopter.Gen {
	return gen.IntRange(0, len(choices)-1).Map(func(i int) string {
		return choices[i]
	})
}
