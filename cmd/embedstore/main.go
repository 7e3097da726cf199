/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Command embedstore inspects and maintains embedstore databases.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/suparena/embedstore"
	"github.com/suparena/embedstore/config"
	"github.com/suparena/embedstore/datastore"
	"github.com/suparena/embedstore/logging"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "embedstore: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	app := kingpin.New("embedstore", "Inspect and maintain embedstore databases")
	app.UsageWriter(out)
	configFile := app.Flag("config", "Path to YAML configuration file").Short('c').String()
	envFile := app.Flag("env-file", "Path to a .env file").String()
	engine := app.Flag("engine", "Storage engine (sqlite or dynamodb)").String()
	name := app.Flag("name", "Database name (file name or DynamoDB table)").String()
	dir := app.Flag("dir", "Directory holding SQLite databases").String()
	logLevel := app.Flag("log-level", "Log level (debug, info, warn, error)").String()

	versionCmd := app.Command("version", "Show version information")
	infoCmd := app.Command("info", "Show schema version and tables of a database")
	vacuumCmd := app.Command("vacuum", "Optimize, vacuum and integrity-check an SQLite database")

	cmd, err := app.Parse(args)
	if err != nil {
		return err
	}
	if cmd == versionCmd.FullCommand() {
		return printVersion(out)
	}

	cfg, err := config.Load(&config.CLIOverrides{
		ConfigFile: *configFile,
		EnvFile:    *envFile,
		Engine:     engine,
		Name:       name,
		Directory:  dir,
		LogLevel:   logLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logging.SetLogger(logger)
	defer logging.SetLogger(nil)

	// Commands look at the database as stored and never migrate it.
	dc, err := cfg.Configuration(ctx, datastore.ForInspection())
	if err != nil {
		return err
	}
	inst, err := dc.Engine.Open(ctx, dc)
	if err != nil {
		return fmt.Errorf("open %s: %w", dc, err)
	}
	defer func() {
		if err := inst.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	switch cmd {
	case infoCmd.FullCommand():
		return printInfo(ctx, out, inst)
	case vacuumCmd.FullCommand():
		m, ok := inst.(maintainer)
		if !ok {
			return fmt.Errorf("%s engine does not support vacuum", dc.Engine.Name())
		}
		if err := m.Maintain(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "%s: maintenance completed\n", dc.Path())
		return err
	}
	return fmt.Errorf("unknown command %q", cmd)
}

type tableLister interface {
	Tables(ctx context.Context) ([]string, error)
}

type maintainer interface {
	Maintain(ctx context.Context) error
}

type info struct {
	Engine        string   `yaml:"engine"`
	Database      string   `yaml:"database"`
	Directory     string   `yaml:"directory,omitempty"`
	SchemaVersion uint64   `yaml:"schemaVersion"`
	Tables        []string `yaml:"tables,omitempty"`
}

func printInfo(ctx context.Context, out io.Writer, inst datastore.Instance) error {
	cfg := inst.Configuration()
	version, err := inst.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	report := info{
		Engine:        cfg.Engine.Name(),
		Database:      cfg.Name,
		Directory:     cfg.Directory,
		SchemaVersion: version,
	}
	if tl, ok := inst.(tableLister); ok {
		if report.Tables, err = tl.Tables(ctx); err != nil {
			return err
		}
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func printVersion(out io.Writer) error {
	v := embedstore.GetVersionInfo()
	_, err := fmt.Fprintf(out, "embedstore version %s\nGit commit: %s\nBuild date: %s\nGo version: %s\n",
		v.Version, v.GitCommit, v.BuildDate, v.GoVersion)
	return err
}
