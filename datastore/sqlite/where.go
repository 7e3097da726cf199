/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlite

import (
	"fmt"
	"strings"

	"github.com/suparena/embedstore/query"
	"github.com/suparena/embedstore/schema"
	"github.com/uptrace/bun"
)

// whereClause compiles the conditions of q into one bun expression. An empty
// expression means no filter.
func whereClause(q *query.Query, m *schema.Model) (string, []any, error) {
	var w whereBuilder
	if err := w.conditions(q.Conditions(), m); err != nil {
		return "", nil, err
	}
	return w.sb.String(), w.args, nil
}

type whereBuilder struct {
	sb   strings.Builder
	args []any
}

func (w *whereBuilder) conditions(conds []query.Condition, m *schema.Model) error {
	for i, c := range conds {
		if i > 0 {
			w.sb.WriteString(" AND ")
		}
		if err := w.condition(c, m); err != nil {
			return err
		}
	}
	return nil
}

func (w *whereBuilder) condition(c query.Condition, m *schema.Model) error {
	switch c := c.(type) {
	case query.Predicate:
		return w.predicate(c, m)
	case query.AnyOf:
		if len(c.Groups) == 0 {
			w.sb.WriteString("(1 = 0)")
			return nil
		}
		w.sb.WriteByte('(')
		for i, g := range c.Groups {
			if i > 0 {
				w.sb.WriteString(" OR ")
			}
			if len(g.Conditions()) == 0 {
				w.sb.WriteString("(1 = 1)")
				continue
			}
			w.sb.WriteByte('(')
			if err := w.conditions(g.Conditions(), m); err != nil {
				return err
			}
			w.sb.WriteByte(')')
		}
		w.sb.WriteByte(')')
		return nil
	}
	return fmt.Errorf("sqlite: unknown condition %T", c)
}

func (w *whereBuilder) expr(s string, args ...any) {
	w.sb.WriteString(s)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) predicate(p query.Predicate, m *schema.Model) error {
	col, err := query.Column(m, p.Field)
	if err != nil {
		return err
	}
	ident := bun.Ident(col)
	vals := make([]any, len(p.Values))
	for i, v := range p.Values {
		vals[i] = query.Normalize(v)
	}

	switch p.Op {
	case query.OpIsNull:
		w.expr("(? IS NULL)", ident)
	case query.OpIsNotNull:
		w.expr("(? IS NOT NULL)", ident)
	case query.OpEqual:
		if vals[0] == nil {
			w.expr("(? IS NULL)", ident)
		} else {
			w.expr("(? = ?)", ident, vals[0])
		}
	case query.OpNotEqual:
		if vals[0] == nil {
			w.expr("(? IS NOT NULL)", ident)
		} else {
			w.expr("(? != ?)", ident, vals[0])
		}
	case query.OpGreater:
		w.expr("(? > ?)", ident, vals[0])
	case query.OpGreaterOrEqual:
		w.expr("(? >= ?)", ident, vals[0])
	case query.OpLess:
		w.expr("(? < ?)", ident, vals[0])
	case query.OpLessOrEqual:
		w.expr("(? <= ?)", ident, vals[0])
	case query.OpBetween:
		w.expr("(? BETWEEN ? AND ?)", ident, vals[0], vals[1])
	case query.OpIn:
		w.expr("(? IN (?))", ident, bun.In(vals))
	case query.OpBeginsWith:
		// instr and substr are case-sensitive, unlike LIKE.
		w.expr("(instr(?, ?) = 1)", ident, vals[0])
	case query.OpEndsWith:
		w.expr("(substr(?, length(?) - length(?) + 1) = ?)", ident, ident, vals[0], vals[0])
	case query.OpContains:
		w.expr("(instr(?, ?) > 0)", ident, vals[0])
	default:
		return fmt.Errorf("sqlite: unsupported operator %s", p.Op)
	}
	return nil
}
