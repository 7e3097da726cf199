/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"

	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/logging"
	"github.com/suparena/embedstore/schema"
	"go.uber.org/zap"
)

type migratingKey struct{}

// Migrating returns the instance whose Migration is running with ctx.
func Migrating(ctx context.Context) (Instance, bool) {
	inst, ok := ctx.Value(migratingKey{}).(Instance)
	return inst, ok
}

// SchemaManager is implemented by engines to let ApplySchemaPolicy inspect
// and reset a database.
type SchemaManager interface {
	// StoredVersion returns the stored schema version; found is false for a
	// database that was never initialised.
	StoredVersion(ctx context.Context) (version uint64, found bool, err error)
	SetStoredVersion(ctx context.Context, version uint64) error
	// EnsureTables creates the tables of models that do not exist yet.
	EnsureTables(ctx context.Context, models []*schema.Model) error
	// DropAll removes every table and the stored version.
	DropAll(ctx context.Context) error
}

// ApplySchemaPolicy reconciles the stored schema version of a freshly opened
// instance with its configuration:
//
//   - no stored version: create the tables and store the version
//   - equal versions: create missing tables
//   - different versions: run Migration when set, otherwise drop and recreate
//     when DeleteIfMigrationNeeded is set, otherwise fail with a
//     SchemaMismatchError
//
// Configurations opened for inspection are left untouched.
// Migration only moves forward; a lower configured version is a mismatch
// unless DeleteIfMigrationNeeded is set.
func ApplySchemaPolicy(ctx context.Context, inst Instance, sm SchemaManager) error {
	cfg := inst.Configuration()
	if cfg.Inspect {
		logging.L().Debug("inspecting database, schema policy skipped", zap.String("database", cfg.Name))
		return nil
	}
	models, err := cfg.SchemaModels()
	if err != nil {
		return err
	}
	log := logging.L().With(zap.String("database", cfg.Name))

	stored, found, err := sm.StoredVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	want := cfg.SchemaVersion

	switch {
	case !found:
		log.Debug("creating schema", zap.Uint64("version", want))
	case stored == want:
		return sm.EnsureTables(ctx, models)
	case cfg.Migration != nil && want > stored:
		log.Info("migrating schema", zap.Uint64("from", stored), zap.Uint64("to", want))
		if err := cfg.Migration(context.WithValue(ctx, migratingKey{}, inst), inst, stored, want); err != nil {
			return fmt.Errorf("migrate %q from %d to %d: %w", cfg.Name, stored, want, err)
		}
	case cfg.DeleteIfMigrationNeeded:
		log.Warn("schema version changed, deleting database",
			zap.Uint64("stored", stored), zap.Uint64("wanted", want))
		if err := sm.DropAll(ctx); err != nil {
			return fmt.Errorf("drop %q: %w", cfg.Name, err)
		}
	default:
		return errors.NewSchemaMismatchError(cfg.Name, stored, want)
	}

	if err := sm.EnsureTables(ctx, models); err != nil {
		return err
	}
	return sm.SetStoredVersion(ctx, want)
}
