/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import (
	"context"
	"sync"

	"github.com/suparena/embedstore/executor"
	"github.com/suparena/embedstore/query"
)

var (
	asyncMu   sync.RWMutex
	asyncExec = executor.New(0, executor.WithName("embedstore"))
)

// AsyncExecutor returns the executor running the asynchronous helpers.
// Tests wait for it with testutil.WaitExecutorIdle.
func AsyncExecutor() *executor.Executor {
	asyncMu.RLock()
	defer asyncMu.RUnlock()
	return asyncExec
}

// SetAsyncExecutor replaces the executor running the asynchronous helpers
// and returns the previous one.
func SetAsyncExecutor(e *executor.Executor) *executor.Executor {
	asyncMu.Lock()
	defer asyncMu.Unlock()
	prev := asyncExec
	asyncExec = e
	return prev
}

// Result carries the outcome of a one-shot asynchronous query.
type Result[T any] struct {
	Value T
	Err   error
}

// submit runs fn on the async executor, outside any transaction of the
// caller. A task dropped by a Shutdown deadline runs with a cancelled ctx.
func submit(ctx context.Context, fn func(ctx context.Context)) error {
	ctx = withoutTx(ctx)
	return AsyncExecutor().Submit(func(execCtx context.Context) {
		ctx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		stop := context.AfterFunc(execCtx, func() { cancel(execCtx.Err()) })
		defer stop()
		if execCtx.Err() != nil {
			cancel(execCtx.Err())
		}
		fn(ctx)
	})
}

// guard runs op unless ctx is already done.
func guard[R any](ctx context.Context, op func(ctx context.Context) (R, error)) (R, error) {
	if err := context.Cause(ctx); err != nil {
		var zero R
		return zero, err
	}
	return op(ctx)
}

// QueryFirstAsync runs QueryFirst on the background executor and calls
// callback with its result.
func QueryFirstAsync[T any](ctx context.Context, q *query.Query, callback func(*T, error)) error {
	return submit(ctx, func(ctx context.Context) {
		callback(guard(ctx, func(ctx context.Context) (*T, error) {
			return QueryFirst[T](ctx, q)
		}))
	})
}

// QueryLastAsync runs QueryLast on the background executor and calls
// callback with its result.
func QueryLastAsync[T any](ctx context.Context, q *query.Query, callback func(*T, error)) error {
	return submit(ctx, func(ctx context.Context) {
		callback(guard(ctx, func(ctx context.Context) (*T, error) {
			return QueryLast[T](ctx, q)
		}))
	})
}

// QueryAllAsync runs QueryAll on the background executor.
func QueryAllAsync[T any](ctx context.Context, callback func([]T, error)) error {
	return QueryAsync[T](ctx, nil, callback)
}

// QueryAsync runs Query on the background executor. callback is always
// called once the task was accepted, with the context error when the
// executor shut down before the query could run.
func QueryAsync[T any](ctx context.Context, q *query.Query, callback func([]T, error)) error {
	return submit(ctx, func(ctx context.Context) {
		callback(guard(ctx, func(ctx context.Context) ([]T, error) {
			return Query[T](ctx, q)
		}))
	})
}

func single[T any](ctx context.Context, run func(ctx context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	err := submit(ctx, func(ctx context.Context) {
		v, err := guard(ctx, run)
		ch <- Result[T]{Value: v, Err: err}
		close(ch)
	})
	if err != nil {
		ch <- Result[T]{Err: err}
		close(ch)
	}
	return ch
}

// QueryAsSingle runs Query on the background executor. The returned
// channel delivers exactly one Result and is then closed.
func QueryAsSingle[T any](ctx context.Context, q *query.Query) <-chan Result[[]T] {
	return single(ctx, func(ctx context.Context) ([]T, error) {
		return Query[T](ctx, q)
	})
}

// QueryAllAsSingle is QueryAsSingle for every stored T.
func QueryAllAsSingle[T any](ctx context.Context) <-chan Result[[]T] {
	return QueryAsSingle[T](ctx, nil)
}

// QuerySortedAsSingle is QueryAsSingle ordered by sorts.
func QuerySortedAsSingle[T any](ctx context.Context, q *query.Query, sorts ...query.SortField) <-chan Result[[]T] {
	return single(ctx, func(ctx context.Context) ([]T, error) {
		return QuerySorted[T](ctx, q, sorts...)
	})
}
