// Package config loads and validates the TOML configuration shared by the
// docflow daemon and CLI. Defaults are defined in defaults.go; Load layers a
// user config file on top, expands ~ in paths, and validates the result.
package config
