/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"reflect"

	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/query"
	"github.com/suparena/embedstore/schema"
)

// Engine opens database instances for configurations.
type Engine interface {
	// Name identifies the engine in logs and tooling.
	Name() string
	// Open opens (creating when needed) the database described by cfg and
	// applies its schema policy.
	Open(ctx context.Context, cfg *Configuration) (Instance, error)
}

// Instance is an open database.
type Instance interface {
	Configuration() *Configuration
	// Collection returns the collection storing model m, creating its table
	// when the configuration allows any model.
	Collection(ctx context.Context, m *schema.Model) (Collection, error)
	// RunInTx runs fn inside one engine transaction. Collections obtained
	// from tx take part in the transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Instance) error) error
	// SchemaVersion returns the stored schema version.
	SchemaVersion(ctx context.Context) (uint64, error)
	Close() error
}

// Collection stores the entities of one model.
//
// Methods taking or filling entities work with a pointer to a slice of the
// model struct type (*[]T).
type Collection interface {
	Model() *schema.Model
	// Find appends the entities matching q to dest in query order. Without
	// sort fields entities come back in insertion order.
	Find(ctx context.Context, q *query.Query, dest any) error
	Count(ctx context.Context, q *query.Query) (int64, error)
	// Insert adds new entities; a duplicate primary key fails with an
	// AlreadyExistsError.
	Insert(ctx context.Context, entities any) error
	// Upsert inserts or replaces entities by primary key.
	Upsert(ctx context.Context, entities any) error
	// Delete removes the entities matching q and reports how many were removed.
	// Sort fields and limit are ignored.
	Delete(ctx context.Context, q *query.Query) (int64, error)
	// Max returns the largest integer value stored in column, zero when empty.
	Max(ctx context.Context, column string) (int64, error)
}

// DataStore is the typed view of a Collection.
type DataStore[T any] interface {
	Model() *schema.Model

	Find(ctx context.Context, q *query.Query) ([]T, error)

	Count(ctx context.Context, q *query.Query) (int64, error)

	Insert(ctx context.Context, entities []T) error

	Upsert(ctx context.Context, entities []T) error

	Delete(ctx context.Context, q *query.Query) (int64, error)

	Max(ctx context.Context, column string) (int64, error)
}

type typedStore[T any] struct {
	coll Collection
}

// For returns the typed store for T on inst.
func For[T any](ctx context.Context, inst Instance) (DataStore[T], error) {
	m, err := schema.Of[T]()
	if err != nil {
		return nil, err
	}
	if reflect.TypeOf((*T)(nil)).Elem() != m.Type {
		return nil, fmt.Errorf("datastore: %T is not a struct type", *new(T))
	}
	coll, err := inst.Collection(ctx, m)
	if err != nil {
		return nil, err
	}
	return &typedStore[T]{coll: coll}, nil
}

// Wrap returns the typed view of coll. T must be the collection's model type.
func Wrap[T any](coll Collection) (DataStore[T], error) {
	if reflect.TypeOf((*T)(nil)).Elem() != coll.Model().Type {
		return nil, fmt.Errorf("datastore: collection stores %s, not %T", coll.Model().Name, *new(T))
	}
	return &typedStore[T]{coll: coll}, nil
}

func (s *typedStore[T]) Model() *schema.Model {
	return s.coll.Model()
}

func (s *typedStore[T]) Find(ctx context.Context, q *query.Query) ([]T, error) {
	if err := q.Validate(s.coll.Model()); err != nil {
		return nil, errors.NewValidationError("query", err.Error())
	}
	var out []T
	if err := s.coll.Find(ctx, q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *typedStore[T]) Count(ctx context.Context, q *query.Query) (int64, error) {
	if err := q.Validate(s.coll.Model()); err != nil {
		return 0, errors.NewValidationError("query", err.Error())
	}
	return s.coll.Count(ctx, q)
}

func (s *typedStore[T]) Insert(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	return s.coll.Insert(ctx, &entities)
}

func (s *typedStore[T]) Upsert(ctx context.Context, entities []T) error {
	if len(entities) == 0 {
		return nil
	}
	if !s.coll.Model().HasPrimaryKey() {
		return fmt.Errorf("%s: %w", s.coll.Model().Name, errors.ErrPrimaryKeyRequired)
	}
	return s.coll.Upsert(ctx, &entities)
}

func (s *typedStore[T]) Delete(ctx context.Context, q *query.Query) (int64, error) {
	if err := q.Validate(s.coll.Model()); err != nil {
		return 0, errors.NewValidationError("query", err.Error())
	}
	return s.coll.Delete(ctx, q)
}

func (s *typedStore[T]) Max(ctx context.Context, column string) (int64, error) {
	col, err := query.Column(s.coll.Model(), column)
	if err != nil {
		return 0, errors.NewValidationError(column, err.Error())
	}
	return s.coll.Max(ctx, col)
}

// SliceOf checks that entities is a non-nil *[]T for model m and returns the slice value.
func SliceOf(m *schema.Model, entities any) (reflect.Value, error) {
	rv := reflect.ValueOf(entities)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Slice ||
		rv.Elem().Type().Elem() != m.Type {
		return reflect.Value{}, fmt.Errorf("datastore: need *[]%s, got %T", m.Name, entities)
	}
	return rv.Elem(), nil
}
