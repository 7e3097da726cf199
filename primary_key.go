/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import (
	"context"
	"fmt"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/schema"
)

// assignPrimaryKeys gives auto-increment models the next free keys. The
// entity at index i receives max+1+i; keys that are already set are kept.
func assignPrimaryKeys[T any](ctx context.Context, ds datastore.DataStore[T], entities []T) error {
	m := ds.Model()
	if !m.IsAutoIncrementPK() || len(entities) == 0 {
		return nil
	}
	if !schema.IsIntegerField(m.PK) {
		return errors.NewValidationError(m.PK.GoName,
			fmt.Sprintf("primary key of %s must be an integer to be assigned automatically", m.Name))
	}

	last, err := ds.Max(ctx, m.PK.Column)
	if err != nil {
		return fmt.Errorf("read last %s key: %w", m.Name, err)
	}
	next := last + 1
	for i := range entities {
		e := &entities[i]
		if !m.IsZero(e, m.PK) {
			continue
		}
		if err := m.SetInt(e, m.PK, next+int64(i)); err != nil {
			return errors.NewValidationError(m.PK.GoName, err.Error())
		}
	}
	return nil
}
