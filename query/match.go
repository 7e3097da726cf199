/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/suparena/embedstore/schema"
)

// Match evaluates q against entity in memory. It follows SQL null semantics:
// comparisons against a null field never match, except IsNull and EqualTo(nil).
func Match(q *Query, m *schema.Model, entity any) (bool, error) {
	for _, c := range q.Conditions() {
		ok, err := matchCondition(c, m, entity)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchCondition(c Condition, m *schema.Model, entity any) (bool, error) {
	switch c := c.(type) {
	case Predicate:
		v, ok := m.Value(entity, c.Field)
		if !ok {
			return false, fmt.Errorf("query: %s has no field %q", m.Name, c.Field)
		}
		return matchPredicate(c, v)
	case AnyOf:
		for _, g := range c.Groups {
			ok, err := Match(g, m, entity)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("query: unknown condition %T", c)
}

func matchPredicate(p Predicate, raw any) (bool, error) {
	if err := checkArity(p); err != nil {
		return false, err
	}
	v := Normalize(raw)

	switch p.Op {
	case OpIsNull:
		return v == nil, nil
	case OpIsNotNull:
		return v != nil, nil
	case OpEqual:
		if Normalize(p.Values[0]) == nil {
			return v == nil, nil
		}
	case OpNotEqual:
		if Normalize(p.Values[0]) == nil {
			return v != nil, nil
		}
	}
	if v == nil {
		return false, nil
	}

	switch p.Op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		c, err := Compare(v, p.Values[0])
		if err != nil {
			return false, err
		}
		switch p.Op {
		case OpEqual:
			return c == 0, nil
		case OpNotEqual:
			return c != 0, nil
		case OpGreater:
			return c > 0, nil
		case OpGreaterOrEqual:
			return c >= 0, nil
		case OpLess:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case OpBetween:
		lo, err := Compare(v, p.Values[0])
		if err != nil {
			return false, err
		}
		hi, err := Compare(v, p.Values[1])
		if err != nil {
			return false, err
		}
		return lo >= 0 && hi <= 0, nil
	case OpIn:
		for _, candidate := range p.Values {
			if Normalize(candidate) == nil {
				continue
			}
			c, err := Compare(v, candidate)
			if err != nil {
				return false, err
			}
			if c == 0 {
				return true, nil
			}
		}
		return false, nil
	case OpBeginsWith, OpEndsWith, OpContains:
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("query: %s on %q needs a string field, got %T", p.Op, p.Field, raw)
		}
		arg, ok := Normalize(p.Values[0]).(string)
		if !ok {
			return false, fmt.Errorf("query: %s on %q needs a string value", p.Op, p.Field)
		}
		switch p.Op {
		case OpBeginsWith:
			return strings.HasPrefix(s, arg), nil
		case OpEndsWith:
			return strings.HasSuffix(s, arg), nil
		default:
			return strings.Contains(s, arg), nil
		}
	}
	return false, fmt.Errorf("query: unsupported operator %s", p.Op)
}

// Normalize reduces v to one of nil, int64, float64, string, bool, time.Time
// or the original value when no reduction applies. Pointers are dereferenced
// and driver.Valuer implementations are resolved.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		dv, err := valuer.Value()
		if err == nil {
			return Normalize(dv)
		}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return string(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > 1<<63-1 {
			return float64(u)
		}
		return int64(u)
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return v
}

// Compare orders a and b. Nulls sort first. Integers and floats compare
// numerically with each other.
func Compare(a, b any) (int, error) {
	a, b = Normalize(a), Normalize(b)
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}

	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y), nil
		case float64:
			return cmpOrdered(float64(x), y), nil
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, float64(y)), nil
		case float64:
			return cmpOrdered(x, y), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	}
	return 0, fmt.Errorf("query: cannot compare %T with %T", a, b)
}

func cmpOrdered[N int64 | float64](x, y N) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// SortSlice stable-sorts items by sorts. Items keep their relative order when
// every sort field compares equal.
func SortSlice[T any](m *schema.Model, items []T, sorts []SortField) error {
	if len(sorts) == 0 || len(items) < 2 {
		return nil
	}
	for _, s := range sorts {
		if _, ok := m.Field(s.Field); !ok {
			return fmt.Errorf("query: cannot sort %s by unknown field %q", m.Name, s.Field)
		}
	}

	var sortErr error
	slices.SortStableFunc(items, func(a, b T) int {
		for _, s := range sorts {
			av, _ := m.Value(a, s.Field)
			bv, _ := m.Value(b, s.Field)
			c, err := Compare(av, bv)
			if err != nil {
				if sortErr == nil {
					sortErr = err
				}
				return 0
			}
			if c != 0 {
				if s.Order == Descending {
					return -c
				}
				return c
			}
		}
		return 0
	})
	return sortErr
}

// ApplyLimit truncates items to the query's limit.
func ApplyLimit[T any](q *Query, items []T) []T {
	if n := q.MaxResults(); n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
