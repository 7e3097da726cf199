/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/logging"
	"github.com/suparena/embedstore/schema"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const schemaVersionKey = "schema_version"

type metaEntry struct {
	bun.BaseModel `bun:"table:embedstore_meta"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// Instance is an open SQLite database, or a transaction on one.
type Instance struct {
	cfg *datastore.Configuration
	db  *bun.DB
	idb bun.IDB
	tx  bool

	closed *atomic.Bool
	mu     *sync.Mutex
	// ensured caches tables known to exist; transactions bypass it.
	ensured map[string]bool
}

func newInstance(cfg *datastore.Configuration, db *bun.DB) *Instance {
	return &Instance{
		cfg:     cfg,
		db:      db,
		idb:     db,
		closed:  new(atomic.Bool),
		mu:      new(sync.Mutex),
		ensured: make(map[string]bool),
	}
}

func (i *Instance) Configuration() *datastore.Configuration {
	return i.cfg
}

// DB exposes the underlying bun handle.
func (i *Instance) DB() *bun.DB {
	return i.db
}

func (i *Instance) Collection(ctx context.Context, m *schema.Model) (datastore.Collection, error) {
	if i.closed.Load() {
		return nil, errors.ErrClosed
	}
	if err := i.cfg.CheckModel(m); err != nil {
		return nil, err
	}
	if err := i.ensureTable(ctx, m); err != nil {
		return nil, err
	}
	return &Collection{inst: i, model: m}, nil
}

// RunInTx runs fn in a bun transaction. Calls on a transaction instance join it.
func (i *Instance) RunInTx(ctx context.Context, fn func(ctx context.Context, tx datastore.Instance) error) error {
	if i.closed.Load() {
		return errors.ErrClosed
	}
	if i.tx {
		return fn(ctx, i)
	}
	return i.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Instance{
			cfg:     i.cfg,
			db:      i.db,
			idb:     tx,
			tx:      true,
			closed:  i.closed,
			mu:      new(sync.Mutex),
			ensured: make(map[string]bool),
		})
	})
}

func (i *Instance) SchemaVersion(ctx context.Context) (uint64, error) {
	v, _, err := i.StoredVersion(ctx)
	return v, err
}

// Close closes the database. Closing a transaction instance is a no-op.
func (i *Instance) Close() error {
	if i.tx || !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	return i.db.Close()
}

func (i *Instance) ensureMeta(ctx context.Context) error {
	_, err := i.idb.NewCreateTable().Model((*metaEntry)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	return nil
}

func (i *Instance) StoredVersion(ctx context.Context) (uint64, bool, error) {
	exists, err := i.idb.NewSelect().
		Table("sqlite_master").
		Where("type = 'table'").
		Where("name = ?", "embedstore_meta").
		Exists(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("look up meta table: %w", err)
	}
	if !exists {
		return 0, false, nil
	}

	var e metaEntry
	err = i.idb.NewSelect().Model(&e).Where("? = ?", bun.Ident("key"), schemaVersionKey).Scan(ctx)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := strconv.ParseUint(e.Value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt schema version %q: %w", e.Value, err)
	}
	return v, true, nil
}

func (i *Instance) SetStoredVersion(ctx context.Context, version uint64) error {
	e := &metaEntry{Key: schemaVersionKey, Value: strconv.FormatUint(version, 10)}
	_, err := i.idb.NewInsert().Model(e).
		On("CONFLICT (?) DO UPDATE", bun.Ident("key")).
		Set("? = EXCLUDED.?", bun.Ident("value"), bun.Ident("value")).
		Exec(ctx)
	return err
}

func (i *Instance) EnsureTables(ctx context.Context, models []*schema.Model) error {
	for _, m := range models {
		if err := i.ensureTable(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (i *Instance) ensureTable(ctx context.Context, m *schema.Model) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.ensured[m.Table] {
		return nil
	}
	if _, err := i.idb.NewCreateTable().Model(m.New()).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create table %s: %w", m.Table, err)
	}
	if !i.tx {
		i.ensured[m.Table] = true
	}
	return nil
}

// DropAll drops every table, including the stored schema version.
func (i *Instance) DropAll(ctx context.Context) error {
	tables, err := i.Tables(ctx)
	if err != nil {
		return err
	}
	for _, name := range tables {
		if _, err := i.idb.NewDropTable().Table(name).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	i.mu.Lock()
	i.ensured = make(map[string]bool)
	i.mu.Unlock()
	return i.ensureMeta(ctx)
}

// Tables lists the tables of the database, sorted by name.
func (i *Instance) Tables(ctx context.Context) ([]string, error) {
	var names []string
	err := i.idb.NewSelect().
		Table("sqlite_master").
		Column("name").
		Where("type = 'table'").
		Where("name NOT LIKE 'sqlite_%'").
		OrderExpr("name").
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// Maintain runs PRAGMA optimize, VACUUM and a WAL checkpoint, then checks
// the database integrity.
func (i *Instance) Maintain(ctx context.Context) error {
	if i.tx {
		return fmt.Errorf("maintenance cannot run inside a transaction")
	}
	log := logging.L().With(zap.String("database", i.cfg.Name))
	if _, err := i.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		log.Warn("sqlite optimize failed (ignored)", zap.Error(err))
	}
	if _, err := i.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("sqlite vacuum failed: %w", err)
	}
	_, _ = i.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")

	var res string
	if err := i.db.QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&res); err != nil {
		return fmt.Errorf("sqlite integrity_check failed: %w", err)
	}
	if res != "ok" {
		return fmt.Errorf("sqlite integrity_check failed: %s", res)
	}
	log.Info("sqlite maintenance completed")
	return nil
}

var (
	_ datastore.Instance      = (*Instance)(nil)
	_ datastore.SchemaManager = (*Instance)(nil)
)
