/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides an in-memory datastore.Engine for testing
package mock

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/query"
	"github.com/suparena/embedstore/schema"
)

// Engine is an in-memory engine. Databases live as long as the Engine and
// are shared by every instance opened with the same name.
type Engine struct {
	mu          sync.Mutex
	databases   map[string]*database
	openError   error
	putError    error
	deleteError error
	queryError  error
}

// New creates a new mock Engine
func New() *Engine {
	return &Engine{
		databases: make(map[string]*database),
	}
}

// WithOpenError makes Open return an error
func (e *Engine) WithOpenError(err error) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openError = err
	return e
}

// WithPutError makes Insert and Upsert operations return an error
func (e *Engine) WithPutError(err error) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.putError = err
	return e
}

// WithDeleteError makes Delete operations return an error
func (e *Engine) WithDeleteError(err error) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleteError = err
	return e
}

// WithQueryError makes Find, Count and Max return an error
func (e *Engine) WithQueryError(err error) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queryError = err
	return e
}

func (e *Engine) injected(kind string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch kind {
	case "put":
		return e.putError
	case "delete":
		return e.deleteError
	case "query":
		return e.queryError
	}
	return nil
}

func (e *Engine) Name() string {
	return "mock"
}

// Open opens the named in-memory database and applies the schema policy.
func (e *Engine) Open(ctx context.Context, cfg *datastore.Configuration) (datastore.Instance, error) {
	e.mu.Lock()
	if e.openError != nil {
		err := e.openError
		e.mu.Unlock()
		return nil, err
	}
	db, ok := e.databases[cfg.Name]
	if !ok {
		db = &database{tables: make(map[string]*table)}
		e.databases[cfg.Name] = db
	}
	e.mu.Unlock()

	inst := &Instance{engine: e, cfg: cfg, db: db, closed: new(atomic.Bool)}
	if err := datastore.ApplySchemaPolicy(ctx, inst, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Tables returns the table names of the named database, sorted.
func (e *Engine) Tables(name string) []string {
	e.mu.Lock()
	db, ok := e.databases[name]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.tables))
	for n := range db.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type database struct {
	mu      sync.RWMutex
	txMu    sync.Mutex
	version *uint64
	tables  map[string]*table
}

type table struct {
	model *schema.Model
	rows  []reflect.Value
	byKey map[string]int
}

func newTable(m *schema.Model) *table {
	return &table{model: m, byKey: make(map[string]int)}
}

func (t *table) clone() *table {
	c := &table{model: t.model, rows: make([]reflect.Value, len(t.rows)), byKey: make(map[string]int, len(t.byKey))}
	for i, r := range t.rows {
		c.rows[i] = copyValue(r)
	}
	for k, v := range t.byKey {
		c.byKey[k] = v
	}
	return c
}

func (t *table) reindex() {
	t.byKey = make(map[string]int, len(t.rows))
	if t.model.PK == nil {
		return
	}
	for i, r := range t.rows {
		t.byKey[keyOf(t.model, r)] = i
	}
}

func copyValue(v reflect.Value) reflect.Value {
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}

func keyOf(m *schema.Model, v reflect.Value) string {
	pk, _ := m.PrimaryKeyValue(v.Interface())
	return fmt.Sprint(query.Normalize(pk))
}

// Instance is an open mock database.
type Instance struct {
	engine *Engine
	cfg    *datastore.Configuration
	db     *database
	closed *atomic.Bool
	inTx   bool
}

func (i *Instance) Configuration() *datastore.Configuration {
	return i.cfg
}

func (i *Instance) Collection(ctx context.Context, m *schema.Model) (datastore.Collection, error) {
	if i.closed.Load() {
		return nil, errors.ErrClosed
	}
	if err := i.cfg.CheckModel(m); err != nil {
		return nil, err
	}
	if err := i.EnsureTables(ctx, []*schema.Model{m}); err != nil {
		return nil, err
	}
	return &Collection{inst: i, model: m}, nil
}

// RunInTx serialises transactions and restores the previous table contents
// when fn fails. Called on a transaction instance it joins that transaction.
func (i *Instance) RunInTx(ctx context.Context, fn func(ctx context.Context, tx datastore.Instance) error) error {
	if i.closed.Load() {
		return errors.ErrClosed
	}
	if i.inTx {
		return fn(ctx, i)
	}
	i.db.txMu.Lock()
	defer i.db.txMu.Unlock()

	i.db.mu.RLock()
	snapshot := make(map[string]*table, len(i.db.tables))
	for n, t := range i.db.tables {
		snapshot[n] = t.clone()
	}
	i.db.mu.RUnlock()

	tx := &Instance{engine: i.engine, cfg: i.cfg, db: i.db, closed: i.closed, inTx: true}
	if err := fn(ctx, tx); err != nil {
		i.db.mu.Lock()
		i.db.tables = snapshot
		i.db.mu.Unlock()
		return err
	}
	return nil
}

func (i *Instance) SchemaVersion(ctx context.Context) (uint64, error) {
	v, _, err := i.StoredVersion(ctx)
	return v, err
}

func (i *Instance) Close() error {
	if !i.inTx {
		i.closed.Store(true)
	}
	return nil
}

func (i *Instance) StoredVersion(ctx context.Context) (uint64, bool, error) {
	i.db.mu.RLock()
	defer i.db.mu.RUnlock()
	if i.db.version == nil {
		return 0, false, nil
	}
	return *i.db.version, true, nil
}

func (i *Instance) SetStoredVersion(ctx context.Context, version uint64) error {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	i.db.version = &version
	return nil
}

func (i *Instance) EnsureTables(ctx context.Context, models []*schema.Model) error {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	for _, m := range models {
		if _, ok := i.db.tables[m.Table]; !ok {
			i.db.tables[m.Table] = newTable(m)
		}
	}
	return nil
}

func (i *Instance) DropAll(ctx context.Context) error {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	i.db.tables = make(map[string]*table)
	i.db.version = nil
	return nil
}

// Collection is a mock table.
type Collection struct {
	inst  *Instance
	model *schema.Model
}

func (c *Collection) Model() *schema.Model {
	return c.model
}

// table returns the current table; callers hold db.mu.
func (c *Collection) table() *table {
	t, ok := c.inst.db.tables[c.model.Table]
	if !ok {
		t = newTable(c.model)
		c.inst.db.tables[c.model.Table] = t
	}
	return t
}

func (c *Collection) matching(q *query.Query) ([]reflect.Value, error) {
	var out []reflect.Value
	for _, r := range c.table().rows {
		ok, err := query.Match(q, c.model, r.Interface())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Collection) Find(ctx context.Context, q *query.Query, dest any) error {
	if err := c.inst.engine.injected("query"); err != nil {
		return err
	}
	out, err := datastore.SliceOf(c.model, dest)
	if err != nil {
		return err
	}

	c.inst.db.mu.Lock()
	rows, err := c.matching(q)
	c.inst.db.mu.Unlock()
	if err != nil {
		return err
	}

	items := make([]any, len(rows))
	for i, r := range rows {
		items[i] = copyValue(r).Interface()
	}
	if err := query.SortSlice(c.model, items, q.Sorts()); err != nil {
		return err
	}
	for _, it := range query.ApplyLimit(q, items) {
		out.Set(reflect.Append(out, reflect.ValueOf(it)))
	}
	return nil
}

func (c *Collection) Count(ctx context.Context, q *query.Query) (int64, error) {
	if err := c.inst.engine.injected("query"); err != nil {
		return 0, err
	}
	c.inst.db.mu.Lock()
	defer c.inst.db.mu.Unlock()
	rows, err := c.matching(q)
	if err != nil {
		return 0, err
	}
	n := len(rows)
	if limit := q.MaxResults(); limit > 0 && n > limit {
		n = limit
	}
	return int64(n), nil
}

func (c *Collection) Insert(ctx context.Context, entities any) error {
	return c.write(entities, false)
}

func (c *Collection) Upsert(ctx context.Context, entities any) error {
	if !c.model.HasPrimaryKey() {
		return fmt.Errorf("%s: %w", c.model.Name, errors.ErrPrimaryKeyRequired)
	}
	return c.write(entities, true)
}

func (c *Collection) write(entities any, replace bool) error {
	if err := c.inst.engine.injected("put"); err != nil {
		return err
	}
	in, err := datastore.SliceOf(c.model, entities)
	if err != nil {
		return err
	}

	c.inst.db.mu.Lock()
	defer c.inst.db.mu.Unlock()
	t := c.table()

	// Validate the whole batch before touching the table.
	if !replace && c.model.PK != nil {
		seen := make(map[string]bool, in.Len())
		for i := 0; i < in.Len(); i++ {
			key := keyOf(c.model, in.Index(i))
			if _, exists := t.byKey[key]; exists || seen[key] {
				return errors.NewAlreadyExistsError(c.model.Name, key)
			}
			seen[key] = true
		}
	}

	for i := 0; i < in.Len(); i++ {
		row := copyValue(in.Index(i))
		if c.model.PK == nil {
			t.rows = append(t.rows, row)
			continue
		}
		key := keyOf(c.model, row)
		if idx, exists := t.byKey[key]; exists {
			t.rows[idx] = row
			continue
		}
		t.byKey[key] = len(t.rows)
		t.rows = append(t.rows, row)
	}
	return nil
}

func (c *Collection) Delete(ctx context.Context, q *query.Query) (int64, error) {
	if err := c.inst.engine.injected("delete"); err != nil {
		return 0, err
	}
	c.inst.db.mu.Lock()
	defer c.inst.db.mu.Unlock()
	t := c.table()

	kept := t.rows[:0:0]
	var removed int64
	for _, r := range t.rows {
		ok, err := query.Match(q, c.model, r.Interface())
		if err != nil {
			return 0, err
		}
		if ok {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	t.reindex()
	return removed, nil
}

func (c *Collection) Max(ctx context.Context, column string) (int64, error) {
	if err := c.inst.engine.injected("query"); err != nil {
		return 0, err
	}
	c.inst.db.mu.RLock()
	defer c.inst.db.mu.RUnlock()

	var highest int64
	for _, r := range c.inst.db.tables[c.model.Table].rowsOrNil() {
		v, ok := c.model.Value(r.Interface(), column)
		if !ok {
			return 0, errors.NewValidationError(column, "unknown column")
		}
		if n, ok := query.Normalize(v).(int64); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (t *table) rowsOrNil() []reflect.Value {
	if t == nil {
		return nil
	}
	return t.rows
}

var (
	_ datastore.Engine        = (*Engine)(nil)
	_ datastore.Instance      = (*Instance)(nil)
	_ datastore.SchemaManager = (*Instance)(nil)
	_ datastore.Collection    = (*Collection)(nil)
)
