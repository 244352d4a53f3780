package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcatalog/internal/dbexec"
	"showcatalog/internal/planner"
	"showcatalog/internal/schema"
	"showcatalog/internal/sqlutil"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	target := planner.Target{Table: "shows", Registry: schema.Shows(), Dialect: sqlutil.MySQL{}}
	return New(dbexec.NewStandardExecutor(db), target), mock
}

func expectQuery(t *testing.T, mock sqlmock.Sqlmock, query planner.SQLQuery, rows *sqlmock.Rows) {
	t.Helper()
	mock.ExpectQuery(regexp.QuoteMeta(query.SQL)).
		WithArgs(toDriverValues(query.Args)...).
		WillReturnRows(rows)
}

func toDriverValues(args []interface{}) []driver.Value {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg
	}
	return values
}

func showRows() *sqlmock.Rows {
	return sqlmock.NewRows(schema.Shows().Names())
}

func TestExecute(t *testing.T) {
	store, mock := newMockStore(t)
	plan := planner.BuildQueryPlan(store.Target().Registry, map[string]string{"cast": "Ryan Reynolds"}, "", "", 1)
	query, err := planner.PlanSelect(store.Target(), plan)
	require.NoError(t, err)

	added := time.Date(2021, 9, 25, 0, 0, 0, 0, time.UTC)
	expectQuery(t, mock, query, showRows().AddRow(
		"s1", "Movie", "Free Guy", []byte(`["Shawn Levy"]`), []byte(`["Ryan Reynolds"]`), nil,
		added, int64(2021), "PG-13", "115 min", []byte(`["Comedies"]`), "A bank teller...",
	))

	records, err := store.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "s1", rec["show_id"])
	assert.Equal(t, []string{"Ryan Reynolds"}, rec["cast"])
	assert.Nil(t, rec["country"])
	assert.Equal(t, added, rec["date_added"])
	assert.Equal(t, int64(2021), rec["release_year"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	plan := planner.BuildQueryPlan(store.Target().Registry, nil, "", "", 1)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err := store.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestExecuteRejectsCorruptList(t *testing.T) {
	store, mock := newMockStore(t)
	plan := planner.BuildQueryPlan(store.Target().Registry, nil, "", "", 1)
	mock.ExpectQuery("SELECT").WillReturnRows(showRows().AddRow(
		"s1", "Movie", "x", []byte(`not json`), nil, nil,
		time.Now(), int64(2000), "R", "1 min", nil, "d",
	))

	_, err := store.Execute(context.Background(), plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "director")
}

func TestExecuteAggregation(t *testing.T) {
	store, mock := newMockStore(t)
	plan := planner.BuildAggregationPlan(store.Target().Registry, []string{"type"}, "cast", "Ryan Reynolds")
	query, err := planner.PlanAggregate(store.Target(), plan)
	require.NoError(t, err)

	expectQuery(t, mock, query, sqlmock.NewRows([]string{"type", "count"}).
		AddRow("Movie", int64(3)).
		AddRow([]byte("TV Show"), int64(1)))

	results, err := store.ExecuteAggregation(context.Background(), plan)
	require.NoError(t, err)
	assert.ElementsMatch(t, []planner.GroupedCount{
		{Groups: map[string]any{"type": "Movie"}, Count: 3},
		{Groups: map[string]any{"type": "TV Show"}, Count: 1},
	}, results)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByKey(t *testing.T) {
	store, mock := newMockStore(t)
	query, err := planner.PlanFindByKey(store.Target(), "missing", false)
	require.NoError(t, err)
	expectQuery(t, mock, query, showRows())

	rec, found, err := store.FindByKey(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByKeyLocksInsideTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	query, err := planner.PlanFindByKey(store.Target(), "s1", true)
	require.NoError(t, err)

	mock.ExpectBegin()
	expectQuery(t, mock, query, showRows())
	mock.ExpectCommit()

	err = store.RunInTx(context.Background(), func(ctx context.Context) error {
		_, found, err := store.FindByKey(ctx, "s1")
		assert.False(t, found)
		return err
	})
	require.NoError(t, err)
	assert.Contains(t, query.SQL, "FOR UPDATE")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist(t *testing.T) {
	store, mock := newMockStore(t)
	rec := schema.Record{"show_id": "s1", "rating": "R", "cast": []string{"Tom Hanks"}}

	insert, err := planner.PlanInsert(store.Target(), rec)
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta(insert.SQL)).
		WithArgs(toDriverValues(insert.Args)...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	update, err := planner.PlanUpdate(store.Target(), rec)
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta(update.SQL)).
		WithArgs(toDriverValues(update.Args)...).
		WillReturnError(errors.New("lock wait timeout"))

	saved, err := store.Persist(context.Background(), rec, true)
	require.NoError(t, err)
	assert.Equal(t, rec, saved)

	_, err = store.Persist(context.Background(), rec, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTable(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `shows`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
