// Package config loads, normalizes, and validates Nola's TOML configuration.
//
// Configuration resolves from an explicit path, ~/.config/nola/config.toml,
// or a project-local nola.toml, falling back to built-in defaults when no
// file exists. All path fields are tilde-expanded and absolute after Load.
//
// Validation enforces the timing relation the queue depends on: the worker
// heartbeat timeout must be strictly greater than the heartbeat interval,
// otherwise healthy workers would be reclaimed between beats.
package config
