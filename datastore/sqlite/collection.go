/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlite

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/query"
	"github.com/suparena/embedstore/schema"
	"github.com/uptrace/bun"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Collection is one SQLite table.
type Collection struct {
	inst  *Instance
	model *schema.Model
}

func (c *Collection) Model() *schema.Model {
	return c.model
}

func (c *Collection) filter(q *query.Query, apply func(expr string, args ...any)) error {
	expr, args, err := whereClause(q, c.model)
	if err != nil {
		return errors.NewValidationError("query", err.Error())
	}
	if expr != "" {
		apply(expr, args...)
	}
	return nil
}

func (c *Collection) Find(ctx context.Context, q *query.Query, dest any) error {
	if _, err := datastore.SliceOf(c.model, dest); err != nil {
		return err
	}
	sel := c.inst.idb.NewSelect().Model(dest)
	err := c.filter(q, func(expr string, args ...any) { sel.Where(expr, args...) })
	if err != nil {
		return err
	}

	if sorts := q.Sorts(); len(sorts) > 0 {
		for _, s := range sorts {
			col, err := query.Column(c.model, s.Field)
			if err != nil {
				return errors.NewValidationError(s.Field, err.Error())
			}
			sel.OrderExpr("? "+s.Order.String(), bun.Ident(col))
		}
	} else {
		sel.OrderExpr("rowid")
	}
	if n := q.MaxResults(); n > 0 {
		sel.Limit(n)
	}

	if err := sel.Scan(ctx); err != nil {
		return fmt.Errorf("find %s: %w", c.model.Name, err)
	}
	return nil
}

func (c *Collection) Count(ctx context.Context, q *query.Query) (int64, error) {
	sel := c.inst.idb.NewSelect().Model(c.model.New())
	err := c.filter(q, func(expr string, args ...any) { sel.Where(expr, args...) })
	if err != nil {
		return 0, err
	}
	n, err := sel.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.model.Name, err)
	}
	if limit := q.MaxResults(); limit > 0 && n > limit {
		n = limit
	}
	return int64(n), nil
}

func (c *Collection) Insert(ctx context.Context, entities any) error {
	if _, err := datastore.SliceOf(c.model, entities); err != nil {
		return err
	}
	if _, err := c.inst.idb.NewInsert().Model(entities).Exec(ctx); err != nil {
		return c.mapError("insert", err)
	}
	return nil
}

// Upsert inserts entities, replacing every column of rows whose primary key exists.
func (c *Collection) Upsert(ctx context.Context, entities any) error {
	if _, err := datastore.SliceOf(c.model, entities); err != nil {
		return err
	}
	pk := c.model.PK
	if pk == nil {
		return fmt.Errorf("%s: %w", c.model.Name, errors.ErrPrimaryKeyRequired)
	}

	ins := c.inst.idb.NewInsert().Model(entities)
	var updates int
	for _, f := range c.model.Fields {
		if f.IsPK {
			continue
		}
		ins.Set("? = EXCLUDED.?", bun.Ident(f.Column), bun.Ident(f.Column))
		updates++
	}
	if updates == 0 {
		ins.On("CONFLICT (?) DO NOTHING", bun.Ident(pk.Column))
	} else {
		ins.On("CONFLICT (?) DO UPDATE", bun.Ident(pk.Column))
	}

	if _, err := ins.Exec(ctx); err != nil {
		return c.mapError("upsert", err)
	}
	return nil
}

func (c *Collection) Delete(ctx context.Context, q *query.Query) (int64, error) {
	del := c.inst.idb.NewDelete().Model(c.model.New())
	err := c.filter(q, func(expr string, args ...any) { del.Where(expr, args...) })
	if err != nil {
		return 0, err
	}
	if len(q.Conditions()) == 0 {
		del.Where("1 = 1")
	}
	res, err := del.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", c.model.Name, err)
	}
	return res.RowsAffected()
}

func (c *Collection) Max(ctx context.Context, column string) (int64, error) {
	var n int64
	err := c.inst.idb.NewSelect().
		Model(c.model.New()).
		ColumnExpr("COALESCE(MAX(?), 0)", bun.Ident(column)).
		Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("max %s.%s: %w", c.model.Name, column, err)
	}
	return n, nil
}

func (c *Collection) mapError(op string, err error) error {
	var se *sqlite.Error
	if stderrors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%s %s: %w", op, c.model.Name,
				errors.NewAlreadyExistsError(c.model.Name, se.Error()))
		}
	}
	return fmt.Errorf("%s %s: %w", op, c.model.Name, err)
}

var _ datastore.Collection = (*Collection)(nil)
