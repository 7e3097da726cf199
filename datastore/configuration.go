/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/schema"
)

// DefaultName is the database name used when none is given.
const DefaultName = "default.db"

// MigrationFunc migrates an open instance from oldVersion to newVersion.
type MigrationFunc func(ctx context.Context, inst Instance, oldVersion, newVersion uint64) error

// Configuration describes one database.
type Configuration struct {
	// Name is the database name: the file name for file-backed engines and the
	// table name for DynamoDB.
	Name string
	// Directory holds file-backed databases. Empty means the working directory.
	Directory string
	// SchemaVersion is compared with the stored version when the database opens.
	SchemaVersion uint64
	// DeleteIfMigrationNeeded drops and recreates the database on a version
	// mismatch when no Migration is set.
	DeleteIfMigrationNeeded bool
	// Migration runs on a version mismatch.
	Migration MigrationFunc
	// Models lists model prototypes forming the schema. Empty allows any model.
	Models []any
	// InMemory keeps the database in memory only.
	InMemory bool
	// Engine opens the database. Nil selects the default engine.
	Engine Engine
	// Inspect opens an existing database as it is: the schema policy is not
	// applied and nothing is created, migrated or dropped.
	Inspect bool
}

// Option configures a Configuration.
type Option func(*Configuration)

// WithDirectory sets the directory for file-backed databases.
func WithDirectory(dir string) Option {
	return func(c *Configuration) {
		c.Directory = dir
	}
}

// WithSchemaVersion sets the schema version.
func WithSchemaVersion(v uint64) Option {
	return func(c *Configuration) {
		c.SchemaVersion = v
	}
}

// WithDeleteIfMigrationNeeded drops the database when its schema version differs.
func WithDeleteIfMigrationNeeded() Option {
	return func(c *Configuration) {
		c.DeleteIfMigrationNeeded = true
	}
}

// WithMigration sets the migration run on a schema version change.
func WithMigration(fn MigrationFunc) Option {
	return func(c *Configuration) {
		c.Migration = fn
	}
}

// WithModels restricts the schema to the given model prototypes.
func WithModels(models ...any) Option {
	return func(c *Configuration) {
		c.Models = append(c.Models, models...)
	}
}

// InMemory keeps the database in memory.
func InMemory() Option {
	return func(c *Configuration) {
		c.InMemory = true
	}
}

// WithEngine selects the engine.
func WithEngine(e Engine) Option {
	return func(c *Configuration) {
		c.Engine = e
	}
}

// ForInspection opens the database without applying the schema policy.
func ForInspection() Option {
	return func(c *Configuration) {
		c.Inspect = true
	}
}

// NewConfiguration builds a configuration named name.
func NewConfiguration(name string, opts ...Option) *Configuration {
	if name == "" {
		name = DefaultName
	}
	c := &Configuration{Name: name}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the database file path.
func (c *Configuration) Path() string {
	return filepath.Join(c.Directory, c.Name)
}

// SchemaModels returns the model descriptions of Models.
func (c *Configuration) SchemaModels() ([]*schema.Model, error) {
	out := make([]*schema.Model, 0, len(c.Models))
	for _, proto := range c.Models {
		m, err := schema.ForValue(proto)
		if err != nil {
			return nil, fmt.Errorf("configuration %q: %w", c.Name, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// CheckModel fails with a NotInSchemaError when Models is set and does not include m.
func (c *Configuration) CheckModel(m *schema.Model) error {
	if len(c.Models) == 0 {
		return nil
	}
	for _, proto := range c.Models {
		pm, err := schema.ForValue(proto)
		if err == nil && pm == m {
			return nil
		}
	}
	return errors.NewNotInSchemaError(m.Name, c.Name)
}

func (c *Configuration) String() string {
	if c.InMemory {
		return fmt.Sprintf("%s (in-memory, schema v%d)", c.Name, c.SchemaVersion)
	}
	return fmt.Sprintf("%s (schema v%d)", c.Path(), c.SchemaVersion)
}
