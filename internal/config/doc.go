// Package config loads, normalizes, and validates monistor configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the MONISTOR_DAEMON_BINARY
// environment fallback. The Config type centralizes the supervisor, watchdog,
// and daemon knobs so the CLI and the long-running process resolve them in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
