// Package config holds runtime configuration for the package database:
// defaults for pagination and scraping, CLI-populated settings, and an
// optional YAML configuration file.
//
// Configuration is passed through the application by value rather than
// read from global state, so tests can construct arbitrary configs
// without touching the environment.
package config
