/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package config

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/datastore/ddb"
	"github.com/suparena/embedstore/datastore/sqlite"
	"github.com/suparena/embedstore/executor"
)

// Engine names accepted in configuration.
const (
	EngineSQLite   = "sqlite"
	EngineDynamoDB = "dynamodb"
)

const (
	defaultLogLevel = "info"
	defaultEnvFile  = ".env"
)

// Config aggregates runtime configuration resolved from multiple sources.
type Config struct {
	Engine                  string         `yaml:"engine"`
	Name                    string         `yaml:"name"`
	Directory               string         `yaml:"directory"`
	InMemory                bool           `yaml:"in_memory"`
	SchemaVersion           uint64         `yaml:"schema_version"`
	DeleteIfMigrationNeeded bool           `yaml:"delete_if_migration_needed"`
	LogLevel                string         `yaml:"log_level"`
	Workers                 int            `yaml:"workers"`
	SQLite                  SQLiteConfig   `yaml:"sqlite"`
	DynamoDB                DynamoDBConfig `yaml:"dynamodb"`
}

// SQLiteConfig tunes the SQLite engine.
type SQLiteConfig struct {
	BusyTimeout     time.Duration `yaml:"busy_timeout"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// DynamoDBConfig configures the DynamoDB engine. Credentials normally come
// from the environment rather than the YAML file.
type DynamoDBConfig struct {
	Region       string        `yaml:"region"`
	Endpoint     string        `yaml:"endpoint"`
	AccessKey    string        `yaml:"-"`
	SecretKey    string        `yaml:"-"`
	CreateTable  bool          `yaml:"create_table"`
	PageSize     int32         `yaml:"page_size"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile string
	EnvFile    string
	Engine     *string
	Name       *string
	Directory  *string
	LogLevel   *string
}

// Load resolves the configuration with precedence:
// CLI flags > environment variables > YAML config > defaults.
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := Default()

	envFile := defaultEnvFile
	if overrides != nil && overrides.EnvFile != "" {
		envFile = overrides.EnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	if overrides != nil && overrides.ConfigFile != "" {
		if err := loadFromFile(overrides.ConfigFile, &cfg); err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
	}

	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in settings.
func Default() Config {
	pool := sqlite.DefaultPoolConfig()
	ddbOpts := ddb.DefaultOptions()
	return Config{
		Engine:   EngineSQLite,
		Name:     datastore.DefaultName,
		LogLevel: defaultLogLevel,
		SQLite: SQLiteConfig{
			BusyTimeout:     5 * time.Second,
			MaxOpenConns:    pool.MaxOpenConns,
			MaxIdleConns:    pool.MaxIdleConns,
			ConnMaxLifetime: pool.ConnMaxLifetime,
			ConnMaxIdleTime: pool.ConnMaxIdleTime,
		},
		DynamoDB: DynamoDBConfig{
			PageSize:     ddbOpts.PageSize,
			MaxRetries:   ddbOpts.MaxRetries,
			RetryBackoff: ddbOpts.RetryBackoff,
		},
	}
}

// loadFromFile decodes a YAML file over cfg; absent keys keep their value.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	return nil
}

// applyEnvConfig applies EMBEDSTORE_* and AWS_* environment variables.
func applyEnvConfig(cfg *Config) error {
	setString(&cfg.Engine, "EMBEDSTORE_ENGINE")
	setString(&cfg.Name, "EMBEDSTORE_NAME")
	setString(&cfg.Directory, "EMBEDSTORE_DIR")
	setString(&cfg.LogLevel, "EMBEDSTORE_LOG_LEVEL")
	setString(&cfg.DynamoDB.Region, "AWS_REGION")
	setString(&cfg.DynamoDB.Endpoint, "AWS_DDB_ENDPOINT")
	setString(&cfg.DynamoDB.AccessKey, "AWS_ACCESS_KEY")
	setString(&cfg.DynamoDB.SecretKey, "AWS_SECRET_KEY")

	if err := setBool(&cfg.InMemory, "EMBEDSTORE_IN_MEMORY"); err != nil {
		return err
	}
	if err := setBool(&cfg.DeleteIfMigrationNeeded, "EMBEDSTORE_DELETE_IF_MIGRATION_NEEDED"); err != nil {
		return err
	}
	if raw := env("EMBEDSTORE_SCHEMA_VERSION"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("EMBEDSTORE_SCHEMA_VERSION: invalid version %q", raw)
		}
		cfg.SchemaVersion = v
	}
	if raw := env("EMBEDSTORE_WORKERS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("EMBEDSTORE_WORKERS: invalid integer %q", raw)
		}
		cfg.Workers = v
	}
	if raw := env("EMBEDSTORE_SQLITE_BUSY_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("EMBEDSTORE_SQLITE_BUSY_TIMEOUT: %w", err)
		}
		cfg.SQLite.BusyTimeout = d
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	raw := env(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, raw)
	}
	*dst = v
	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Engine != nil && *overrides.Engine != "" {
		cfg.Engine = *overrides.Engine
	}
	if overrides.Name != nil && *overrides.Name != "" {
		cfg.Name = *overrides.Name
	}
	if overrides.Directory != nil && *overrides.Directory != "" {
		cfg.Directory = *overrides.Directory
	}
	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}
}

// Validate checks the final configuration.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineSQLite:
		if c.SQLite.BusyTimeout < 0 {
			return fmt.Errorf("sqlite busy_timeout must be >= 0")
		}
		if c.SQLite.MaxOpenConns < 0 || c.SQLite.MaxIdleConns < 0 {
			return fmt.Errorf("sqlite connection limits must be >= 0")
		}
	case EngineDynamoDB:
		if c.InMemory {
			return fmt.Errorf("dynamodb engine cannot run in memory")
		}
		if c.DynamoDB.Region == "" && c.DynamoDB.Endpoint == "" {
			return fmt.Errorf("dynamodb engine needs AWS_REGION or an endpoint")
		}
		if c.DynamoDB.PageSize < 0 || c.DynamoDB.MaxRetries < 0 {
			return fmt.Errorf("dynamodb page_size and max_retries must be >= 0")
		}
	default:
		return fmt.Errorf("unknown engine %q (want %s or %s)", c.Engine, EngineSQLite, EngineDynamoDB)
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// NewEngine builds the engine selected by c.
func (c Config) NewEngine(ctx context.Context) (datastore.Engine, error) {
	switch c.Engine {
	case EngineDynamoDB:
		client, err := ddb.NewDynamoDBClient(ctx, ddb.ClientConfig{
			AccessKey: c.DynamoDB.AccessKey,
			SecretKey: c.DynamoDB.SecretKey,
			Region:    c.DynamoDB.Region,
			Endpoint:  c.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		opts := []ddb.Option{
			ddb.WithMaxRetries(c.DynamoDB.MaxRetries),
			ddb.WithRetryBackoff(c.DynamoDB.RetryBackoff),
		}
		if c.DynamoDB.PageSize > 0 {
			opts = append(opts, ddb.WithPageSize(c.DynamoDB.PageSize))
		}
		if c.DynamoDB.CreateTable {
			opts = append(opts, ddb.WithCreateTable())
		}
		return ddb.NewEngine(client, opts...), nil
	case EngineSQLite:
		return sqlite.NewEngine(
			sqlite.WithBusyTimeout(c.SQLite.BusyTimeout),
			sqlite.WithPool(sqlite.PoolConfig{
				MaxOpenConns:    c.SQLite.MaxOpenConns,
				MaxIdleConns:    c.SQLite.MaxIdleConns,
				ConnMaxLifetime: c.SQLite.ConnMaxLifetime,
				ConnMaxIdleTime: c.SQLite.ConnMaxIdleTime,
			}),
		), nil
	}
	return nil, fmt.Errorf("unknown engine %q", c.Engine)
}

// Configuration builds the database configuration described by c. opts are
// applied last, typically to add models or a migration.
func (c Config) Configuration(ctx context.Context, opts ...datastore.Option) (*datastore.Configuration, error) {
	engine, err := c.NewEngine(ctx)
	if err != nil {
		return nil, err
	}
	base := []datastore.Option{
		datastore.WithEngine(engine),
		datastore.WithDirectory(c.Directory),
		datastore.WithSchemaVersion(c.SchemaVersion),
	}
	if c.InMemory {
		base = append(base, datastore.InMemory())
	}
	if c.DeleteIfMigrationNeeded {
		base = append(base, datastore.WithDeleteIfMigrationNeeded())
	}
	return datastore.NewConfiguration(c.Name, append(base, opts...)...), nil
}

// Executor builds the executor for the asynchronous helpers, running up to
// Workers tasks at once. Zero selects GOMAXPROCS.
func (c Config) Executor() *executor.Executor {
	return executor.New(c.Workers, executor.WithName("embedstore"))
}
