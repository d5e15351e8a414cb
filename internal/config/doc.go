// Package config loads and validates diskpark configuration.
//
// Settings come from a TOML file (default ~/.config/diskpark/config.toml)
// with the DISKPARK_DEVICES environment variable taking precedence for the
// device directive string. Paths are tilde-expanded and defaults are applied
// before validation, so downstream code always sees a usable Config.
package config
