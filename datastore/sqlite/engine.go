/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/logging"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 60 * time.Second
	defaultBusyTimeout     = 5 * time.Second
)

// PoolConfig tunes the database/sql connection pool of file-backed databases.
// In-memory databases always use a single connection that is never recycled.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are given.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithPool overrides the connection pool settings.
func WithPool(p PoolConfig) Option {
	return func(e *Engine) {
		e.pool = p
	}
}

// WithBusyTimeout sets how long a connection waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.busyTimeout = d
	}
}

// Engine opens SQLite databases through bun and the pure-Go modernc driver.
type Engine struct {
	pool        PoolConfig
	busyTimeout time.Duration
}

// NewEngine creates an SQLite engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		pool:        DefaultPoolConfig(),
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string {
	return "sqlite"
}

// DSN returns the driver data source name for cfg.
func (e *Engine) DSN(cfg *datastore.Configuration) string {
	if cfg.InMemory {
		return fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(cfg.Name))
	}
	v := url.Values{}
	v.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", e.busyTimeout.Milliseconds()))
	v.Add("_pragma", "journal_mode(WAL)")
	v.Add("_pragma", "foreign_keys(1)")
	v.Set("_txlock", "immediate")
	return "file:" + cfg.Path() + "?" + v.Encode()
}

// Open opens the database described by cfg and applies its schema policy.
// A configuration opened for inspection must name an existing file.
func (e *Engine) Open(ctx context.Context, cfg *datastore.Configuration) (datastore.Instance, error) {
	start := time.Now()
	if cfg.Inspect && !cfg.InMemory {
		if _, err := os.Stat(cfg.Path()); err != nil {
			return nil, fmt.Errorf("inspect database: %w", err)
		}
	}
	if !cfg.Inspect && !cfg.InMemory && cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", e.DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	e.tunePool(sqlDB, cfg)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	inst := newInstance(cfg, db)
	if cfg.Inspect {
		logging.L().Debug("sqlite database opened for inspection", zap.String("database", cfg.Name))
		return inst, nil
	}
	if err := inst.ensureMeta(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := datastore.ApplySchemaPolicy(ctx, inst, inst); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.L().Debug("sqlite database opened",
		zap.String("database", cfg.Name),
		zap.Bool("in_memory", cfg.InMemory),
		zap.Duration("took", time.Since(start)))
	return inst, nil
}

func (e *Engine) tunePool(sqlDB *sql.DB, cfg *datastore.Configuration) {
	if cfg.InMemory {
		// The database disappears with its last connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
		return
	}
	sqlDB.SetMaxOpenConns(e.pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(e.pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(e.pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(e.pool.ConnMaxIdleTime)
}

var _ datastore.Engine = (*Engine)(nil)
