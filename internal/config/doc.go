// Package config loads, normalizes, and validates midisession configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the MIDISESSION_BACKEND
// environment override. Besides the client identity and ambient settings,
// the Config carries the virtual ports and connections the daemon declares
// when it starts.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
