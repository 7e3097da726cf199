/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package embedstore

import (
	"reflect"
	"sync"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/logging"
	"go.uber.org/zap"
)

// ConfigStore maps model types to the configuration of the database that
// stores them.
type ConfigStore struct {
	mu       sync.RWMutex
	configs  map[reflect.Type]*datastore.Configuration
	fallback *datastore.Configuration
}

// NewConfigStore creates an empty ConfigStore.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		configs: make(map[reflect.Type]*datastore.Configuration),
	}
}

// Register associates typ with cfg. The first registration of a type wins.
func (s *ConfigStore) Register(typ reflect.Type, cfg *datastore.Configuration) {
	typ = structType(typ)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.configs[typ]; ok {
		logging.L().Debug("model already registered, keeping first configuration",
			zap.Stringer("model", typ),
			zap.String("database", existing.Name),
			zap.String("ignored", cfg.Name))
		return
	}
	logging.L().Debug("registering model", zap.Stringer("model", typ), zap.String("database", cfg.Name))
	s.configs[typ] = cfg
}

// RegisterModels registers every model listed in cfg.Models with cfg, each
// with first-registration-wins semantics.
func (s *ConfigStore) RegisterModels(cfg *datastore.Configuration) error {
	models, err := cfg.SchemaModels()
	if err != nil {
		return err
	}
	for _, m := range models {
		s.Register(m.Type, cfg)
	}
	return nil
}

// Fetch returns the configuration registered for typ.
func (s *ConfigStore) Fetch(typ reflect.Type) (*datastore.Configuration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[structType(typ)]
	return cfg, ok
}

// SetDefault sets the configuration used for unregistered types.
func (s *ConfigStore) SetDefault(cfg *datastore.Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = cfg
}

// Default returns the configuration used for unregistered types.
func (s *ConfigStore) Default() (*datastore.Configuration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback, s.fallback != nil
}

// Resolve returns the registered configuration for typ, else the default.
func (s *ConfigStore) Resolve(typ reflect.Type) (*datastore.Configuration, error) {
	if cfg, ok := s.Fetch(typ); ok {
		return cfg, nil
	}
	if cfg, ok := s.Default(); ok {
		return cfg, nil
	}
	return nil, errors.ErrNotInitialized
}

// Configurations returns every distinct configuration known to the store,
// the default first.
func (s *ConfigStore) Configurations() []*datastore.Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[*datastore.Configuration]bool)
	var out []*datastore.Configuration
	if s.fallback != nil {
		seen[s.fallback] = true
		out = append(out, s.fallback)
	}
	for _, cfg := range s.configs {
		if !seen[cfg] {
			seen[cfg] = true
			out = append(out, cfg)
		}
	}
	return out
}

func structType(typ reflect.Type) reflect.Type {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return typ
}

func typeOf[T any]() reflect.Type {
	return structType(reflect.TypeOf((*T)(nil)).Elem())
}

var configs = NewConfigStore()

// Init sets the default configuration, used for every model type without a
// registration of its own.
func Init(cfg *datastore.Configuration) {
	configs.SetDefault(cfg)
}

// Register stores cfg as the configuration for model type T. Later
// registrations of the same type are ignored.
func Register[T any](cfg *datastore.Configuration) {
	configs.Register(typeOf[T](), cfg)
}

// RegisterModels registers every model of cfg.Models with cfg.
func RegisterModels(cfg *datastore.Configuration) error {
	return configs.RegisterModels(cfg)
}

// FetchConfiguration returns the configuration registered for T.
func FetchConfiguration[T any]() (*datastore.Configuration, bool) {
	return configs.Fetch(typeOf[T]())
}

// Configs returns the process-wide ConfigStore.
func Configs() *ConfigStore {
	return configs
}
