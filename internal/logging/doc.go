// Package logging assembles the structured slog loggers used across Nola.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so queue and worker code can
// automatically tag log lines with task and worker identifiers. A no-op
// logger is provided for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components
// emit data with the same shape as the rest of the system.
package logging
