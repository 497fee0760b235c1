// Package config loads the Agentica runtime configuration from a YAML or JSON
// file, layering built-in defaults and AGENTICA_* environment overrides on top
// via viper.
package config
