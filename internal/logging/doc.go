// Package logging assembles structured slog loggers and formatting helpers used
// across midisession.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and defines the standard field keys (resource kind, tag, unique
// id, notification kind) so the console handler can render a readable subject
// for every managed resource. A no-op logger is provided for tests and wiring
// code that cannot fail.
package logging
