/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import (
	"context"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/logging"
	"github.com/suparena/embedstore/query"
	"go.uber.org/zap"
)

// QueryAsFlow emits the T entities matching q now and again after every
// write committed through this package to T's table, until ctx is done.
// A failed query is delivered as the final Result before the channel closes.
// A flow started inside Transaction reads committed data, not the transaction.
func QueryAsFlow[T any](ctx context.Context, q *query.Query) (<-chan Result[[]T], error) {
	ctx = withoutTx(ctx)
	ds, inst, err := storeFor[T](ctx)
	if err != nil {
		return nil, err
	}
	return observe(ctx, inst, ds, q), nil
}

// QueryAllAsFlow is QueryAsFlow for every stored T.
func QueryAllAsFlow[T any](ctx context.Context) (<-chan Result[[]T], error) {
	return QueryAsFlow[T](ctx, nil)
}

// QuerySortedAsFlow is QueryAsFlow ordered by sorts.
func QuerySortedAsFlow[T any](ctx context.Context, q *query.Query, sorts ...query.SortField) (<-chan Result[[]T], error) {
	return QueryAsFlow[T](ctx, q.WithSorts(sorts...))
}

func observe[T any](ctx context.Context, inst datastore.Instance, ds datastore.DataStore[T], q *query.Query) <-chan Result[[]T] {
	database := DatabaseKey(inst.Configuration())
	table := ds.Model().Table
	changed, unsubscribe := commits.subscribe(database, table)

	out := make(chan Result[[]T])
	go func() {
		defer close(out)
		defer unsubscribe()

		for {
			items, err := ds.Find(ctx, q)
			if err != nil && ctx.Err() != nil {
				return
			}
			select {
			case out <- Result[[]T]{Value: items, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				logging.L().Warn("observed query failed",
					zap.String("database", database),
					zap.String("table", table),
					zap.Error(err))
				return
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
