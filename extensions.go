/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import (
	"context"
	"fmt"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/query"
)

func storeFor[T any](ctx context.Context) (datastore.DataStore[T], datastore.Instance, error) {
	inst, err := InstanceFor[T](ctx)
	if err != nil {
		return nil, nil, err
	}
	ds, err := datastore.For[T](ctx, inst)
	if err != nil {
		return nil, nil, err
	}
	return ds, inst, nil
}

// Query returns detached copies of the T entities matching q.
func Query[T any](ctx context.Context, q *query.Query) ([]T, error) {
	ds, _, err := storeFor[T](ctx)
	if err != nil {
		return nil, err
	}
	return ds.Find(ctx, q)
}

// QueryAll returns every stored T.
func QueryAll[T any](ctx context.Context) ([]T, error) {
	return Query[T](ctx, nil)
}

// QueryFirst returns the first T matching q, or nil when nothing matches.
func QueryFirst[T any](ctx context.Context, q *query.Query) (*T, error) {
	items, err := Query[T](ctx, q.Clone().Limit(1))
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// QueryLast returns the last T matching q, or nil when nothing matches.
func QueryLast[T any](ctx context.Context, q *query.Query) (*T, error) {
	items, err := Query[T](ctx, q)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[len(items)-1], nil
}

// QuerySorted returns the T entities matching q ordered by sorts, which
// replace any ordering set on q.
func QuerySorted[T any](ctx context.Context, q *query.Query, sorts ...query.SortField) ([]T, error) {
	return Query[T](ctx, q.WithSorts(sorts...))
}

// Count returns the number of T entities matching q.
func Count[T any](ctx context.Context, q *query.Query) (int64, error) {
	ds, _, err := storeFor[T](ctx)
	if err != nil {
		return 0, err
	}
	return ds.Count(ctx, q)
}

// Create inserts entity as a new row. Models with a primary key fail with an
// AlreadyExistsError when the key is taken.
func Create[T any](ctx context.Context, entity *T) error {
	inst, err := InstanceFor[T](ctx)
	if err != nil {
		return err
	}
	_, err = CreateIn(ctx, inst, entity)
	return err
}

// CreateIn is Create on an explicit instance. It returns the stored value.
func CreateIn[T any](ctx context.Context, inst datastore.Instance, entity *T) (*T, error) {
	if entity == nil {
		return nil, errors.NewValidationError("entity", "nil entity")
	}
	ds, err := datastore.For[T](ctx, inst)
	if err != nil {
		return nil, err
	}
	batch := []T{*entity}
	if err := ds.Insert(ctx, batch); err != nil {
		return nil, err
	}
	// Engines may fill generated keys into the batch.
	*entity = batch[0]
	notify(ctx, inst.Configuration(), ds.Model().Table)
	return stored(ctx, ds, *entity)
}

// CreateOrUpdate inserts entity or replaces the row with the same primary
// key. Models without a primary key fail with ErrPrimaryKeyRequired.
func CreateOrUpdate[T any](ctx context.Context, entity *T) error {
	inst, err := InstanceFor[T](ctx)
	if err != nil {
		return err
	}
	_, err = CreateOrUpdateIn(ctx, inst, entity)
	return err
}

// CreateOrUpdateIn is CreateOrUpdate on an explicit instance. It returns the
// stored value.
func CreateOrUpdateIn[T any](ctx context.Context, inst datastore.Instance, entity *T) (*T, error) {
	if entity == nil {
		return nil, errors.NewValidationError("entity", "nil entity")
	}
	ds, err := datastore.For[T](ctx, inst)
	if err != nil {
		return nil, err
	}
	if err := ds.Upsert(ctx, []T{*entity}); err != nil {
		return nil, err
	}
	notify(ctx, inst.Configuration(), ds.Model().Table)
	return stored(ctx, ds, *entity)
}

// Save stores entity: auto-increment keys are assigned first, then models
// with a primary key are upserted and the others inserted. The assigned key
// is written back to entity.
func Save[T any](ctx context.Context, entity *T) error {
	inst, err := InstanceFor[T](ctx)
	if err != nil {
		return err
	}
	_, err = SaveIn(ctx, inst, entity)
	return err
}

// SaveIn is Save on an explicit instance. It returns the stored value.
func SaveIn[T any](ctx context.Context, inst datastore.Instance, entity *T) (*T, error) {
	if entity == nil {
		return nil, errors.NewValidationError("entity", "nil entity")
	}
	batch := []T{*entity}
	out, err := SaveAllIn(ctx, inst, batch)
	if err != nil {
		return nil, err
	}
	*entity = batch[0]
	return &out[0], nil
}

// SaveAll saves entities in one transaction like Save. Assigned keys are
// written back into the slice. An empty slice does nothing.
func SaveAll[T any](ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	inst, err := InstanceFor[T](ctx)
	if err != nil {
		return err
	}
	_, err = SaveAllIn(ctx, inst, entities)
	return err
}

// SaveAllIn is SaveAll on an explicit instance. It returns the stored values.
func SaveAllIn[T any](ctx context.Context, inst datastore.Instance, entities []T) ([]T, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	var (
		out   []T
		table string
	)
	err := inst.RunInTx(ctx, func(ctx context.Context, tx datastore.Instance) error {
		ds, err := datastore.For[T](ctx, tx)
		if err != nil {
			return err
		}
		table = ds.Model().Table
		if err := assignPrimaryKeys(ctx, ds, entities); err != nil {
			return err
		}
		if ds.Model().HasPrimaryKey() {
			err = ds.Upsert(ctx, entities)
		} else {
			err = ds.Insert(ctx, entities)
		}
		if err != nil {
			return err
		}
		out = make([]T, 0, len(entities))
		for _, e := range entities {
			s, err := stored(ctx, ds, e)
			if err != nil {
				return err
			}
			out = append(out, *s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	notify(ctx, inst.Configuration(), table)
	return out, nil
}

// DeleteAll removes every stored T.
func DeleteAll[T any](ctx context.Context) error {
	_, err := Delete[T](ctx, nil)
	return err
}

// Delete removes the T entities matching q and returns how many were removed.
func Delete[T any](ctx context.Context, q *query.Query) (int64, error) {
	ds, inst, err := storeFor[T](ctx)
	if err != nil {
		return 0, err
	}
	n, err := ds.Delete(ctx, q)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		notify(ctx, inst.Configuration(), ds.Model().Table)
	}
	return n, nil
}

// QueryAndUpdate applies modify to the first T matching q and saves it, all
// in one transaction. It reports whether an entity matched.
func QueryAndUpdate[T any](ctx context.Context, q *query.Query, modify func(*T)) (bool, error) {
	inst, err := InstanceFor[T](ctx)
	if err != nil {
		return false, err
	}
	var found bool
	err = Transaction(ctx, inst, func(ctx context.Context, tx datastore.Instance) error {
		item, err := QueryFirst[T](ctx, q)
		if err != nil || item == nil {
			return err
		}
		found = true
		modify(item)
		_, err = SaveIn(ctx, tx, item)
		return err
	})
	return found, err
}

// stored re-reads entity by primary key so the caller gets what the engine
// persisted. Models without a primary key return entity itself.
func stored[T any](ctx context.Context, ds datastore.DataStore[T], entity T) (*T, error) {
	m := ds.Model()
	if !m.HasPrimaryKey() {
		return &entity, nil
	}
	pk, _ := m.PrimaryKeyValue(&entity)
	items, err := ds.Find(ctx, query.New().EqualTo(m.PK.Column, pk).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.NewNotFoundError(m.Name, fmt.Sprint(pk))
	}
	return &items[0], nil
}
