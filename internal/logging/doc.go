// Package logging assembles structured slog loggers and formatting helpers used
// across compressarr's subsystems.
//
// It owns the configurable console/JSON handlers and centralizes level and
// output plumbing so the event bus, plugin registry, library manager, and job
// scheduler all emit data with the same shape: a component tag plus
// plugin/action/job subject fields. The package also provides a no-op logger
// for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup.
package logging
