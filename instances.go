/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/datastore/sqlite"
	"github.com/suparena/embedstore/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Instances opens each configuration once and hands out the cached instance.
type Instances struct {
	mu            sync.Mutex
	open          map[string]datastore.Instance
	opening       singleflight.Group
	defaultEngine func() datastore.Engine
}

// NewInstances creates an empty instance manager. Configurations without an
// engine are opened with SQLite.
func NewInstances() *Instances {
	return &Instances{
		open: make(map[string]datastore.Instance),
		defaultEngine: func() datastore.Engine {
			return sqlite.NewEngine()
		},
	}
}

// DatabaseKey identifies the database a configuration describes.
func DatabaseKey(cfg *datastore.Configuration) string {
	engine := "sqlite"
	if cfg.Engine != nil {
		engine = cfg.Engine.Name()
	}
	if cfg.InMemory {
		return engine + ":memory:" + cfg.Name
	}
	return engine + ":" + cfg.Path()
}

// Get returns the open instance for cfg, opening it on first use. Within a
// Migration of cfg's database it returns the instance being migrated. Concurrent
// first uses of one database share a single open, which runs without
// holding the instance lock so that migrations may use other databases.
func (m *Instances) Get(ctx context.Context, cfg *datastore.Configuration) (datastore.Instance, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedstore: nil configuration")
	}
	key := DatabaseKey(cfg)
	if inst, ok := datastore.Migrating(ctx); ok && DatabaseKey(inst.Configuration()) == key {
		return inst, nil
	}
	if inst, ok := m.lookup(key); ok {
		return inst, nil
	}

	v, err, _ := m.opening.Do(key, func() (any, error) {
		if inst, ok := m.lookup(key); ok {
			return inst, nil
		}
		engine := cfg.Engine
		if engine == nil {
			engine = m.defaultEngine()
		}
		inst, err := engine.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg, err)
		}
		m.mu.Lock()
		m.open[key] = inst
		m.mu.Unlock()
		logging.L().Debug("database opened", zap.String("database", key), zap.String("engine", engine.Name()))
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(datastore.Instance), nil
}

func (m *Instances) lookup(key string) (datastore.Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.open[key]
	return inst, ok
}

// Keys lists the open databases in sorted order.
func (m *Instances) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.open))
	for k := range m.open {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close closes every open instance and forgets it.
func (m *Instances) Close() error {
	m.mu.Lock()
	open := m.open
	m.open = make(map[string]datastore.Instance)
	m.mu.Unlock()

	var g errgroup.Group
	for key, inst := range open {
		g.Go(func() error {
			if err := inst.Close(); err != nil {
				logging.L().Warn("closing database failed", zap.String("database", key), zap.Error(err))
				return fmt.Errorf("close %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

var instances = NewInstances()

// Open returns the shared instance for cfg.
func Open(ctx context.Context, cfg *datastore.Configuration) (datastore.Instance, error) {
	return instances.Get(ctx, cfg)
}

// InstanceFor returns the shared instance of the database storing T, or the
// running transaction on it when ctx comes from Transaction. Inside a
// Migration it returns the instance being migrated.
func InstanceFor[T any](ctx context.Context) (datastore.Instance, error) {
	cfg, err := configs.Resolve(typeOf[T]())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typeOf[T](), err)
	}
	if tx, ok := scopeFrom(ctx).lookup(DatabaseKey(cfg)); ok {
		return tx, nil
	}
	return instances.Get(ctx, cfg)
}

// Close closes every database opened through this package.
func Close() error {
	return instances.Close()
}
