// Package logging assembles the structured slog loggers shared by the
// mmprocess binaries.
//
// It owns the console and JSON handler plumbing, level parsing, and the
// standardized attribute keys (component, job, step, pass) so every binary
// emits log lines with the same shape. A no-op logger is provided for tests
// and for wiring code that cannot fail.
package logging
