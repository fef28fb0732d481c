// Package config provides configuration loading and validation for the acquisition service.
// It reads YAML or TOML files, fills in defaults for the serial link and the framing
// engine, and validates every section before the service starts.
package config
