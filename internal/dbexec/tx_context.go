package dbexec

import (
	"context"
	"sync"
)

type txContextKey struct{}

// TxContext holds the transaction shared by every statement of one write.
type TxContext struct {
	tx        TxExecutor
	hasError  bool
	finalized bool
	mu        sync.Mutex
}

func NewTxContext(tx TxExecutor) *TxContext {
	return &TxContext{tx: tx}
}

func (tc *TxContext) Tx() TxExecutor {
	return tc.tx
}

func (tc *TxContext) MarkError() {
	tc.mu.Lock()
	tc.hasError = true
	tc.mu.Unlock()
}

// Finalize commits, or rolls back when MarkError was called. The lock is
// held throughout so a late MarkError cannot slip in before the commit.
func (tc *TxContext) Finalize() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.finalized {
		return nil
	}
	tc.finalized = true

	if tc.hasError {
		return tc.tx.Rollback()
	}
	return tc.tx.Commit()
}

func WithTxContext(ctx context.Context, tc *TxContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, txContextKey{}, tc)
}

func TxContextFromContext(ctx context.Context) *TxContext {
	if ctx == nil {
		return nil
	}
	tc, _ := ctx.Value(txContextKey{}).(*TxContext)
	return tc
}

// ExecutorFor returns the transaction carried by ctx, or fallback.
func ExecutorFor(ctx context.Context, fallback QueryExecutor) QueryExecutor {
	if tc := TxContextFromContext(ctx); tc != nil {
		return tc.Tx()
	}
	return fallback
}

// RunInTx runs fn with a transaction attached to its context. The
// transaction commits when fn returns nil and rolls back otherwise. A
// context that already carries a transaction is reused as is.
func RunInTx(ctx context.Context, beginner TxBeginner, fn func(ctx context.Context) error) error {
	if TxContextFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := beginner.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	tc := NewTxContext(tx)

	defer func() {
		if p := recover(); p != nil {
			tc.MarkError()
			_ = tc.Finalize()
			panic(p)
		}
	}()

	if err := fn(WithTxContext(ctx, tc)); err != nil {
		tc.MarkError()
		_ = tc.Finalize()
		return err
	}
	return tc.Finalize()
}
