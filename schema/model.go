/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package schema

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Field describes one persisted struct field.
type Field struct {
	// GoName is the struct field name.
	GoName string
	// Column is the storage column / attribute name.
	Column string
	// Index is the field index path, usable with reflect.Value.FieldByIndex.
	Index []int
	// Type is the declared field type.
	Type reflect.Type
	// IsPK marks the primary key field.
	IsPK bool
	// AutoIncrement marks a primary key whose value is assigned on save.
	AutoIncrement bool
}

// Model is the reflection-derived description of a persisted struct type.
type Model struct {
	// Type is the struct type (never a pointer).
	Type reflect.Type
	// Name is the Go type name.
	Name string
	// Table is the table name used by the storage engines.
	Table string
	// Fields lists persisted fields in declaration order.
	Fields []*Field
	// PK is the primary key field, nil when the model has none.
	PK *Field

	byColumn map[string]*Field
	byGoName map[string]*Field
}

var (
	models   = make(map[reflect.Type]*Model)
	modelsMu sync.RWMutex
)

// Of returns the model description for T. T may be a struct or a pointer to a struct.
func Of[T any]() (*Model, error) {
	return ForType(reflect.TypeOf((*T)(nil)).Elem())
}

// ForValue returns the model description for the dynamic type of v.
func ForValue(v any) (*Model, error) {
	if v == nil {
		return nil, fmt.Errorf("schema: nil value has no model")
	}
	return ForType(reflect.TypeOf(v))
}

// ForType returns the cached model description for typ, parsing it on first use.
func ForType(typ reflect.Type) (*Model, error) {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %v is not a struct type", typ)
	}

	modelsMu.RLock()
	m, ok := models[typ]
	modelsMu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := parseModel(typ)
	if err != nil {
		return nil, err
	}

	modelsMu.Lock()
	defer modelsMu.Unlock()
	if existing, ok := models[typ]; ok {
		return existing, nil
	}
	models[typ] = m
	return m, nil
}

// bunTables parses struct types the way the SQLite engine's bun dialect does.
var bunTables = sqlitedialect.New().Tables()

func parseModel(typ reflect.Type) (m *Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("schema: %s: %v", typ.Name(), r)
		}
	}()
	t := bunTables.Get(typ)

	m = &Model{
		Type:     typ,
		Name:     typ.Name(),
		Table:    t.Name,
		byColumn: make(map[string]*Field),
		byGoName: make(map[string]*Field),
	}
	if len(t.PKs) > 1 {
		return nil, fmt.Errorf("schema: %s has more than one primary key field", m.Name)
	}
	for _, bf := range t.Fields {
		f := &Field{
			GoName:        bf.GoName,
			Column:        bf.Name,
			Index:         bf.Index,
			Type:          bf.StructField.Type,
			IsPK:          bf.IsPK,
			AutoIncrement: bf.AutoIncrement,
		}
		if f.IsPK {
			m.PK = f
		}
		m.Fields = append(m.Fields, f)
		m.byColumn[f.Column] = f
		m.byGoName[f.GoName] = f
	}
	if len(m.Fields) == 0 {
		return nil, fmt.Errorf("schema: %s has no persisted fields", m.Name)
	}
	// Declaration order, with embedded fields in place.
	slices.SortFunc(m.Fields, func(a, b *Field) int {
		return slices.Compare(a.Index, b.Index)
	})
	return m, nil
}

// Field looks a field up by column name, falling back to the Go field name.
func (m *Model) Field(name string) (*Field, bool) {
	if f, ok := m.byColumn[name]; ok {
		return f, true
	}
	f, ok := m.byGoName[name]
	return f, ok
}

// Columns returns the column names in declaration order.
func (m *Model) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// HasPrimaryKey reports whether the model declares a primary key.
func (m *Model) HasPrimaryKey() bool {
	return m.PK != nil
}

// IsAutoIncrementPK reports whether the primary key is assigned on save.
func (m *Model) IsAutoIncrementPK() bool {
	return m.PK != nil && m.PK.AutoIncrement
}

// New allocates a zero value of the model and returns a pointer to it.
func (m *Model) New() any {
	return reflect.New(m.Type).Interface()
}

// NewSlice allocates an empty []T and returns a pointer to it.
func (m *Model) NewSlice() any {
	return reflect.New(reflect.SliceOf(m.Type)).Interface()
}

// Value returns the value of the named field of entity. Nil pointers yield nil.
func (m *Model) Value(entity any, name string) (any, bool) {
	f, ok := m.Field(name)
	if !ok {
		return nil, false
	}
	rv, ok := m.structValue(entity)
	if !ok {
		return nil, false
	}
	fv := rv.FieldByIndex(f.Index)
	if fv.Kind() == reflect.Pointer && fv.IsNil() {
		return nil, true
	}
	return fv.Interface(), true
}

// PrimaryKeyValue returns the primary key value of entity.
func (m *Model) PrimaryKeyValue(entity any) (any, bool) {
	if m.PK == nil {
		return nil, false
	}
	return m.Value(entity, m.PK.Column)
}

// IsZero reports whether the named field of entity is a nil pointer or a zero value.
func (m *Model) IsZero(entity any, f *Field) bool {
	rv, ok := m.structValue(entity)
	if !ok {
		return true
	}
	return rv.FieldByIndex(f.Index).IsZero()
}

// SetInt stores n into an integer field of the struct pointed to by entity.
func (m *Model) SetInt(entity any, f *Field, n int64) error {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != m.Type {
		return fmt.Errorf("schema: SetInt needs a non-nil *%s, got %T", m.Name, entity)
	}
	fv := rv.Elem().FieldByIndex(f.Index)
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.OverflowInt(n) {
			return fmt.Errorf("schema: %d overflows %s.%s", n, m.Name, f.GoName)
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n < 0 || fv.OverflowUint(uint64(n)) {
			return fmt.Errorf("schema: %d overflows %s.%s", n, m.Name, f.GoName)
		}
		fv.SetUint(uint64(n))
	default:
		return fmt.Errorf("schema: %s.%s is %s, not an integer", m.Name, f.GoName, fv.Kind())
	}
	return nil
}

// IsIntegerField reports whether f holds an integer (or a pointer to one).
func IsIntegerField(f *Field) bool {
	t := f.Type
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// FieldValue returns the addressable reflect.Value of f inside the struct pointed to by entity.
func (m *Model) FieldValue(entity any, f *Field) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != m.Type {
		return reflect.Value{}, fmt.Errorf("schema: need a non-nil *%s, got %T", m.Name, entity)
	}
	return rv.Elem().FieldByIndex(f.Index), nil
}

func (m *Model) structValue(entity any) (reflect.Value, bool) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Type() != m.Type {
		return reflect.Value{}, false
	}
	return rv, true
}
