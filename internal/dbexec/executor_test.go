package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockExecutor(t *testing.T) (*StandardExecutor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStandardExecutor(db), mock
}

func TestStandardExecutorNilDB(t *testing.T) {
	exec := NewStandardExecutor(nil)

	_, err := exec.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	_, err = exec.ExecContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	_, err = exec.BeginTx(context.Background(), nil)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestRunInTxCommits(t *testing.T) {
	exec, mock := newMockExecutor(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE shows").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := RunInTx(context.Background(), exec, func(ctx context.Context) error {
		tc := TxContextFromContext(ctx)
		require.NotNil(t, tc)
		_, err := ExecutorFor(ctx, exec).ExecContext(ctx, "UPDATE shows SET rating = 'R'")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	exec, mock := newMockExecutor(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := RunInTx(context.Background(), exec, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxReusesOuterTransaction(t *testing.T) {
	exec, mock := newMockExecutor(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := RunInTx(context.Background(), exec, func(outer context.Context) error {
		return RunInTx(outer, exec, func(inner context.Context) error {
			assert.Same(t, TxContextFromContext(outer), TxContextFromContext(inner))
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxBeginFailure(t *testing.T) {
	exec, mock := newMockExecutor(t)
	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	called := false
	err := RunInTx(context.Background(), exec, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestTxContextFinalizeOnce(t *testing.T) {
	exec, mock := newMockExecutor(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := exec.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	tc := NewTxContext(tx)
	tc.MarkError()
	require.NoError(t, tc.Finalize())
	require.NoError(t, tc.Finalize())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorForFallback(t *testing.T) {
	exec, _ := newMockExecutor(t)
	assert.Same(t, exec, ExecutorFor(context.Background(), exec))
}
