/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/suparena/embedstore/query"
	"github.com/suparena/embedstore/schema"
)

// maxInOperands is the DynamoDB limit on IN operands.
const maxInOperands = 100

// filterExpr is a compiled FilterExpression with its placeholders.
type filterExpr struct {
	expr   string
	names  map[string]string
	values map[string]types.AttributeValue
}

// compileFilter translates q into a DynamoDB filter. ok is false when q uses
// something DynamoDB cannot express (ENDS_WITH, empty OR groups); callers then
// filter in memory only. A nil filter with ok true means no conditions.
func compileFilter(q *query.Query, m *schema.Model) (f *filterExpr, ok bool, err error) {
	conds := q.Conditions()
	if len(conds) == 0 {
		return nil, true, nil
	}
	b := &filterBuilder{
		model:  m,
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
	expr, ok, err := b.all(conds)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &filterExpr{expr: expr, names: b.names, values: b.values}, true, nil
}

type filterBuilder struct {
	model  *schema.Model
	names  map[string]string
	values map[string]types.AttributeValue
	nv     int
}

func (b *filterBuilder) name(column string) string {
	for ph, c := range b.names {
		if c == column {
			return ph
		}
	}
	ph := fmt.Sprintf("#n%d", len(b.names))
	b.names[ph] = column
	return ph
}

func (b *filterBuilder) value(v any) (string, error) {
	av, err := marshalValue(v)
	if err != nil {
		return "", err
	}
	ph := fmt.Sprintf(":v%d", b.nv)
	b.nv++
	b.values[ph] = av
	return ph, nil
}

func (b *filterBuilder) all(conds []query.Condition) (string, bool, error) {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		s, ok, err := b.condition(c)
		if err != nil || !ok {
			return "", ok, err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " AND "), true, nil
}

func (b *filterBuilder) condition(c query.Condition) (string, bool, error) {
	switch c := c.(type) {
	case query.Predicate:
		return b.predicate(c)
	case query.AnyOf:
		if len(c.Groups) == 0 {
			return "", false, nil
		}
		parts := make([]string, 0, len(c.Groups))
		for _, g := range c.Groups {
			if len(g.Conditions()) == 0 {
				return "", false, nil
			}
			s, ok, err := b.all(g.Conditions())
			if err != nil || !ok {
				return "", ok, err
			}
			parts = append(parts, "("+s+")")
		}
		return "(" + strings.Join(parts, " OR ") + ")", true, nil
	}
	return "", false, fmt.Errorf("ddb: unknown condition %T", c)
}

func (b *filterBuilder) predicate(p query.Predicate) (string, bool, error) {
	col, err := query.Column(b.model, p.Field)
	if err != nil {
		return "", false, err
	}
	n := b.name(col)

	binary := func(op string) (string, bool, error) {
		v, err := b.value(p.Values[0])
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("%s %s %s", n, op, v), true, nil
	}

	switch p.Op {
	case query.OpIsNull:
		return fmt.Sprintf("attribute_not_exists(%s)", n), true, nil
	case query.OpIsNotNull:
		return fmt.Sprintf("attribute_exists(%s)", n), true, nil
	case query.OpEqual:
		if query.Normalize(p.Values[0]) == nil {
			return fmt.Sprintf("attribute_not_exists(%s)", n), true, nil
		}
		return binary("=")
	case query.OpNotEqual:
		if query.Normalize(p.Values[0]) == nil {
			return fmt.Sprintf("attribute_exists(%s)", n), true, nil
		}
		s, ok, err := binary("<>")
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("(attribute_exists(%s) AND %s)", n, s), ok, nil
	case query.OpGreater:
		return binary(">")
	case query.OpGreaterOrEqual:
		return binary(">=")
	case query.OpLess:
		return binary("<")
	case query.OpLessOrEqual:
		return binary("<=")
	case query.OpBetween:
		lo, err := b.value(p.Values[0])
		if err != nil {
			return "", false, err
		}
		hi, err := b.value(p.Values[1])
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", n, lo, hi), true, nil
	case query.OpIn:
		if len(p.Values) > maxInOperands {
			return "", false, nil
		}
		phs := make([]string, 0, len(p.Values))
		for _, v := range p.Values {
			ph, err := b.value(v)
			if err != nil {
				return "", false, err
			}
			phs = append(phs, ph)
		}
		return fmt.Sprintf("%s IN (%s)", n, strings.Join(phs, ", ")), true, nil
	case query.OpBeginsWith:
		v, err := b.value(p.Values[0])
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("begins_with(%s, %s)", n, v), true, nil
	case query.OpContains:
		v, err := b.value(p.Values[0])
		if err != nil {
			return "", false, err
		}
		return fmt.Sprintf("contains(%s, %s)", n, v), true, nil
	case query.OpEndsWith:
		return "", false, nil
	}
	return "", false, fmt.Errorf("ddb: unsupported operator %s", p.Op)
}
