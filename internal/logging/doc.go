// Package logging assembles structured slog loggers and formatting helpers used
// across direktori.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so worker code can tag log lines
// with the worker identity, queue item, and business key automatically. A
// no-op logger is provided for tests and wiring code that cannot fail.
package logging
