// Package config loads, normalizes, and validates mvdown configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours MVDOWN_* environment overrides for
// the settings people most often change per shell (server URL, transport,
// notification topic). The Config type centralizes every knob the CLI and the
// orchestration layer need.
//
// Always obtain settings through this package so downstream code receives
// sanitized URLs and paths, canonical transport names, and clear validation
// errors.
package config
