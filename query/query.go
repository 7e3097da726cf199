/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"fmt"

	"github.com/suparena/embedstore/schema"
)

// Op is a comparison operator.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpGreater
	OpGreaterOrEqual
	OpLess
	OpLessOrEqual
	OpBetween
	OpIn
	OpBeginsWith
	OpEndsWith
	OpContains
	OpIsNull
	OpIsNotNull
)

var opNames = map[Op]string{
	OpEqual:          "=",
	OpNotEqual:       "!=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
	OpBetween:        "BETWEEN",
	OpIn:             "IN",
	OpBeginsWith:     "BEGINS_WITH",
	OpEndsWith:       "ENDS_WITH",
	OpContains:       "CONTAINS",
	OpIsNull:         "IS NULL",
	OpIsNotNull:      "IS NOT NULL",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Condition is either a Predicate or an AnyOf group.
type Condition interface {
	isCondition()
}

// Predicate compares one field against zero or more values.
type Predicate struct {
	Field  string
	Op     Op
	Values []any
}

func (Predicate) isCondition() {}

// AnyOf matches when at least one of its groups matches. Conditions inside a
// group are combined with AND.
type AnyOf struct {
	Groups []*Query
}

func (AnyOf) isCondition() {}

// Order is a sort direction.
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// SortField orders results by one field.
type SortField struct {
	Field string
	Order Order
}

// Query is an engine-independent filter with optional ordering and limit.
// Conditions are combined with AND. A nil *Query matches everything, and
// builder methods called on it start a new query.
type Query struct {
	conds []Condition
	sorts []SortField
	limit int
}

// New returns an empty query.
func New() *Query {
	return &Query{}
}

func (q *Query) add(field string, op Op, values ...any) *Query {
	if q == nil {
		q = New()
	}
	q.conds = append(q.conds, Predicate{Field: field, Op: op, Values: values})
	return q
}

// EqualTo matches field == value. A nil value matches null fields.
func (q *Query) EqualTo(field string, value any) *Query {
	return q.add(field, OpEqual, value)
}

// NotEqualTo matches field != value. A nil value matches non-null fields.
func (q *Query) NotEqualTo(field string, value any) *Query {
	return q.add(field, OpNotEqual, value)
}

// GreaterThan matches field > value.
func (q *Query) GreaterThan(field string, value any) *Query {
	return q.add(field, OpGreater, value)
}

// GreaterThanOrEqualTo matches field >= value.
func (q *Query) GreaterThanOrEqualTo(field string, value any) *Query {
	return q.add(field, OpGreaterOrEqual, value)
}

// LessThan matches field < value.
func (q *Query) LessThan(field string, value any) *Query {
	return q.add(field, OpLess, value)
}

// LessThanOrEqualTo matches field <= value.
func (q *Query) LessThanOrEqualTo(field string, value any) *Query {
	return q.add(field, OpLessOrEqual, value)
}

// Between matches from <= field <= to.
func (q *Query) Between(field string, from, to any) *Query {
	return q.add(field, OpBetween, from, to)
}

// In matches field equal to any of values.
func (q *Query) In(field string, values ...any) *Query {
	return q.add(field, OpIn, values...)
}

// BeginsWith matches string fields starting with prefix (case-sensitive).
func (q *Query) BeginsWith(field, prefix string) *Query {
	return q.add(field, OpBeginsWith, prefix)
}

// EndsWith matches string fields ending with suffix (case-sensitive).
func (q *Query) EndsWith(field, suffix string) *Query {
	return q.add(field, OpEndsWith, suffix)
}

// Contains matches string fields containing sub (case-sensitive).
func (q *Query) Contains(field, sub string) *Query {
	return q.add(field, OpContains, sub)
}

// IsNull matches null fields.
func (q *Query) IsNull(field string) *Query {
	return q.add(field, OpIsNull)
}

// IsNotNull matches non-null fields.
func (q *Query) IsNotNull(field string) *Query {
	return q.add(field, OpIsNotNull)
}

// Or adds a group of alternatives; the query matches when any group matches.
func (q *Query) Or(groups ...*Query) *Query {
	if q == nil {
		q = New()
	}
	q.conds = append(q.conds, AnyOf{Groups: groups})
	return q
}

// Sort appends a sort field.
func (q *Query) Sort(field string, order Order) *Query {
	if q == nil {
		q = New()
	}
	q.sorts = append(q.sorts, SortField{Field: field, Order: order})
	return q
}

// Limit caps the number of results. Zero means no limit.
func (q *Query) Limit(n int) *Query {
	if q == nil {
		q = New()
	}
	q.limit = n
	return q
}

// Conditions returns the AND-combined conditions.
func (q *Query) Conditions() []Condition {
	if q == nil {
		return nil
	}
	return q.conds
}

// Sorts returns the sort fields in priority order.
func (q *Query) Sorts() []SortField {
	if q == nil {
		return nil
	}
	return q.sorts
}

// MaxResults returns the limit, zero when unlimited.
func (q *Query) MaxResults() int {
	if q == nil {
		return 0
	}
	return q.limit
}

// Clone returns a copy that can be modified independently.
func (q *Query) Clone() *Query {
	if q == nil {
		return New()
	}
	return &Query{
		conds: append([]Condition(nil), q.conds...),
		sorts: append([]SortField(nil), q.sorts...),
		limit: q.limit,
	}
}

// WithSorts returns a copy of q whose sort fields are replaced by sorts.
func (q *Query) WithSorts(sorts ...SortField) *Query {
	c := q.Clone()
	c.sorts = append([]SortField(nil), sorts...)
	return c
}

// Validate checks that every referenced field exists on m and that each
// operator received the right number of values.
func (q *Query) Validate(m *schema.Model) error {
	for _, c := range q.Conditions() {
		switch c := c.(type) {
		case Predicate:
			if _, ok := m.Field(c.Field); !ok {
				return fmt.Errorf("query: %s has no field %q", m.Name, c.Field)
			}
			if err := checkArity(c); err != nil {
				return err
			}
		case AnyOf:
			for _, g := range c.Groups {
				if err := g.Validate(m); err != nil {
					return err
				}
			}
		}
	}
	for _, s := range q.Sorts() {
		if _, ok := m.Field(s.Field); !ok {
			return fmt.Errorf("query: cannot sort %s by unknown field %q", m.Name, s.Field)
		}
	}
	if q.MaxResults() < 0 {
		return fmt.Errorf("query: negative limit %d", q.MaxResults())
	}
	return nil
}

// Column resolves a field name (column or Go name) to its column name.
func Column(m *schema.Model, field string) (string, error) {
	f, ok := m.Field(field)
	if !ok {
		return "", fmt.Errorf("query: %s has no field %q", m.Name, field)
	}
	return f.Column, nil
}

func checkArity(p Predicate) error {
	want := 1
	switch p.Op {
	case OpBetween:
		want = 2
	case OpIsNull, OpIsNotNull:
		want = 0
	case OpIn:
		if len(p.Values) == 0 {
			return fmt.Errorf("query: IN on %q needs at least one value", p.Field)
		}
		return nil
	}
	if len(p.Values) != want {
		return fmt.Errorf("query: %s on %q needs %d value(s), got %d", p.Op, p.Field, want, len(p.Values))
	}
	return nil
}
