// Package config loads embedstore settings from YAML files, a .env file,
// environment variables and CLI flags with precedence: CLI flags >
// environment variables > YAML config > defaults. It turns them into a
// datastore.Configuration with a ready engine.
package config
