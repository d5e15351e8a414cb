// Package logging builds the daemon's slog loggers.
//
// Two output formats are supported: a compact console format for interactive
// use and line-delimited JSON for collectors. Component loggers carry a
// standardized "component" attribute so daemon subsystems are easy to filter.
//
// Per-device verbosity from the directive string is a separate, finer ladder
// layered on top: subsystems consult a device's configured verbosity before
// emitting per-device event logs.
package logging
