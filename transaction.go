/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import (
	"context"
	"fmt"

	"github.com/suparena/embedstore/datastore"
)

type txScopeKey struct{}

// txScope marks a context as running inside Transaction on one database.
type txScope struct {
	database string
	tx       datastore.Instance
	parent   *txScope
}

func scopeFrom(ctx context.Context) *txScope {
	s, _ := ctx.Value(txScopeKey{}).(*txScope)
	return s
}

// withoutTx returns ctx detached from any Transaction scope, for work that
// outlives the transaction.
func withoutTx(ctx context.Context) context.Context {
	if scopeFrom(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, txScopeKey{}, (*txScope)(nil))
}

// lookup returns the transaction instance for database when ctx runs inside
// a transaction on it.
func (s *txScope) lookup(database string) (datastore.Instance, bool) {
	for ; s != nil; s = s.parent {
		if s.database == database {
			return s.tx, true
		}
	}
	return nil, false
}

// Transaction runs fn inside one transaction on inst. Helpers called with
// the context passed to fn use the transaction for models stored in inst's
// database, and observers of that database are notified once fn's writes
// are committed.
func Transaction(ctx context.Context, inst datastore.Instance, fn func(ctx context.Context, tx datastore.Instance) error) error {
	if inst == nil {
		return fmt.Errorf("embedstore: nil instance")
	}
	database := DatabaseKey(inst.Configuration())
	if tx, ok := scopeFrom(ctx).lookup(database); ok {
		return fn(ctx, tx)
	}

	err := inst.RunInTx(ctx, func(ctx context.Context, tx datastore.Instance) error {
		ctx = context.WithValue(ctx, txScopeKey{}, &txScope{database: database, tx: tx, parent: scopeFrom(ctx)})
		return fn(ctx, tx)
	})
	if err != nil {
		return err
	}
	commits.publishDatabase(database)
	return nil
}

// notify publishes a write to table, or leaves it to the enclosing
// Transaction when ctx runs inside one on the same database.
func notify(ctx context.Context, cfg *datastore.Configuration, table string) {
	database := DatabaseKey(cfg)
	if _, ok := scopeFrom(ctx).lookup(database); ok {
		return
	}
	commits.publish(database, table)
}
