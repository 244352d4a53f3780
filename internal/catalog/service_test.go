package catalog

import (
	"context"
	"database/sql"
	"math"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcatalog/internal/dbexec"
	"showcatalog/internal/planner"
	"showcatalog/internal/schema"
	"showcatalog/internal/sqlutil"
	"showcatalog/internal/store"
)

func TestServiceBuildsPlans(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewService(schema.Shows(), backend)
	ctx := context.Background()

	_, err := svc.ListShows(ctx, map[string]string{"cast": "Tom Hanks", "nope": "x"}, "Title", "sideways", 0)
	require.NoError(t, err)
	require.Len(t, backend.lastQuery.Predicates, 1)
	assert.Equal(t, planner.OpContains, backend.lastQuery.Predicates[0].Operator)
	assert.Equal(t, 1, backend.lastQuery.Page)
	require.NotNil(t, backend.lastQuery.Sort)
	assert.Equal(t, planner.Asc, backend.lastQuery.Sort.Direction)

	backend.groupResult = []planner.GroupedCount{
		{Groups: map[string]any{"type": "Movie", "rating": "R"}, Count: 2},
		{Groups: map[string]any{"type": "Movie", "rating": "PG"}, Count: 1},
	}
	results, groups, err := svc.SummarizeShows(ctx, nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, groups)
	assert.Len(t, results, 2)
	assert.Len(t, backend.lastAggregation.GroupBy, 2)
	assert.Equal(t, "type", backend.lastAggregation.GroupBy[0].Name)
	assert.Equal(t, "rating", backend.lastAggregation.GroupBy[1].Name)
}

func newSQLiteService(t *testing.T) *Service {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	reg := schema.Shows()
	st := store.New(dbexec.NewStandardExecutor(db), planner.Target{
		Table:    "shows",
		Registry: reg,
		Dialect:  sqlutil.SQLite{},
	})
	require.NoError(t, st.EnsureTable(context.Background()))
	return NewService(reg, st)
}

func seed(t *testing.T, svc *Service, payloads ...map[string]any) {
	t.Helper()
	for _, payload := range payloads {
		_, created, err := svc.UpsertShow(context.Background(), payload)
		require.NoError(t, err)
		require.True(t, created)
	}
}

func show(id, kind, rating string, cast ...any) map[string]any {
	payload := fullPayload(id)
	payload["type"] = kind
	payload["rating"] = rating
	payload["cast"] = cast
	payload["title"] = "Title " + id
	return payload
}

func ids(records []schema.Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec["show_id"].(string)
	}
	return out
}

func TestSQLiteListFiltersByCastAndRating(t *testing.T) {
	svc := newSQLiteService(t)
	seed(t, svc,
		show("s1", "Movie", "PG-13", "Ryan Reynolds"),
		show("s2", "Movie", "R", "Tom Hanks"),
	)

	records, err := svc.ListShows(context.Background(), map[string]string{
		"cast":   "Ryan Reynolds",
		"rating": "PG-13",
	}, "show_id", "asc", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(records))
	assert.Equal(t, []string{"Ryan Reynolds"}, records[0]["cast"])
}

func TestSQLiteListPatternIsCaseInsensitive(t *testing.T) {
	svc := newSQLiteService(t)
	seed(t, svc,
		show("s1", "Movie", "PG-13", "A"),
		show("s2", "TV Show", "TV-MA", "B"),
	)

	records, err := svc.ListShows(context.Background(), map[string]string{"type": "tv%"}, "", "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids(records))

	records, err = svc.ListShows(context.Background(), map[string]string{"release_year": "2021"}, "", "", 1)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSQLiteListPaginationAndSort(t *testing.T) {
	svc := newSQLiteService(t)
	var payloads []map[string]any
	for _, id := range []string{"s01", "s02", "s03", "s04", "s05", "s06", "s07", "s08", "s09", "s10", "s11", "s12"} {
		payloads = append(payloads, show(id, "Movie", "R", "X"))
	}
	seed(t, svc, payloads...)
	ctx := context.Background()

	page1, err := svc.ListShows(ctx, nil, "", "", 1)
	require.NoError(t, err)
	assert.Len(t, page1, planner.PageSize)
	assert.Equal(t, "s01", page1[0]["show_id"])

	page2, err := svc.ListShows(ctx, nil, "", "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"s11", "s12"}, ids(page2))

	clamped, err := svc.ListShows(ctx, nil, "", "", -3)
	require.NoError(t, err)
	assert.Equal(t, ids(page1), ids(clamped))

	beyond, err := svc.ListShows(ctx, nil, "", "", 9)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	desc, err := svc.ListShows(ctx, nil, "Show ID", "desc", 1)
	require.NoError(t, err)
	assert.Equal(t, "s12", desc[0]["show_id"])
}

func TestSQLiteListHugePagesAreEmpty(t *testing.T) {
	svc := newSQLiteService(t)
	var payloads []map[string]any
	for _, id := range []string{"s01", "s02", "s03", "s04", "s05", "s06", "s07", "s08", "s09", "s10", "s11", "s12"} {
		payloads = append(payloads, show(id, "Movie", "R", "X"))
	}
	seed(t, svc, payloads...)

	for _, page := range []int{1844674407370955163, math.MaxInt64, math.MaxInt64/planner.PageSize + 1} {
		records, err := svc.ListShows(context.Background(), nil, "", "", page)
		require.NoError(t, err, "page %d", page)
		assert.NotNil(t, records, "page %d", page)
		assert.Empty(t, records, "page %d", page)
	}
}

func TestSQLiteSummarize(t *testing.T) {
	svc := newSQLiteService(t)
	seed(t, svc,
		show("s1", "Movie", "PG-13", "Ryan Reynolds"),
		show("s2", "Movie", "R", "Tom Hanks"),
		show("s3", "TV Show", "TV-MA", "Ryan Reynolds", "Tom Hanks"),
		show("s4", "Movie", "R", "Ryan Reynolds"),
	)
	ctx := context.Background()

	results, groups, err := svc.SummarizeShows(ctx, []string{"type"}, "cast", "Ryan Reynolds")
	require.NoError(t, err)
	assert.Equal(t, 2, groups)
	assert.ElementsMatch(t, []planner.GroupedCount{
		{Groups: map[string]any{"type": "Movie"}, Count: 2},
		{Groups: map[string]any{"type": "TV Show"}, Count: 1},
	}, results)

	results, groups, err = svc.SummarizeShows(ctx, nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, groups)
	assert.ElementsMatch(t, []planner.GroupedCount{
		{Groups: map[string]any{"type": "Movie", "rating": "PG-13"}, Count: 1},
		{Groups: map[string]any{"type": "Movie", "rating": "R"}, Count: 2},
		{Groups: map[string]any{"type": "TV Show", "rating": "TV-MA"}, Count: 1},
	}, results)

	results, _, err = svc.SummarizeShows(ctx, []string{"rating"}, "type", "Movie")
	require.NoError(t, err)
	assert.ElementsMatch(t, []planner.GroupedCount{
		{Groups: map[string]any{"rating": "PG-13"}, Count: 1},
		{Groups: map[string]any{"rating": "R"}, Count: 2},
	}, results)
}

func TestSQLiteSummarizeUnconvertibleFilterIsEmpty(t *testing.T) {
	svc := newSQLiteService(t)
	seed(t, svc,
		show("s1", "Movie", "PG-13", "A"),
		show("s2", "TV Show", "R", "B"),
	)
	ctx := context.Background()

	for _, column := range []string{"release_year", "date_added"} {
		results, groups, err := svc.SummarizeShows(ctx, []string{"type"}, column, "abc")
		require.NoError(t, err, column)
		assert.Zero(t, groups, column)
		assert.Empty(t, results, column)
	}

	results, groups, err := svc.SummarizeShows(ctx, []string{"type"}, "release_year", "2021")
	require.NoError(t, err)
	assert.Equal(t, 2, groups)
	assert.Len(t, results, 2)
}

func TestSQLiteUpsertRoundTrip(t *testing.T) {
	svc := newSQLiteService(t)
	ctx := context.Background()

	created, isNew, err := svc.UpsertShow(ctx, fullPayload("s9"))
	require.NoError(t, err)
	assert.True(t, isNew)

	updated, isNew, err := svc.UpsertShow(ctx, fullPayload("s9"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created, updated)

	records, err := svc.ListShows(ctx, map[string]string{"show_id": "s9"}, "", "", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, created, records[0])

	_, _, err = svc.UpsertShow(ctx, map[string]any{})
	assert.True(t, IsMissingKey(err))
}
