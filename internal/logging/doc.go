// Package logging assembles structured slog loggers and formatting helpers used
// across monistor services.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and defines the standard field keys so supervisor and watchdog
// log lines share one shape. LevelRaw sits below debug and carries verbatim
// companion daemon output; it is hidden unless the level is set to "raw".
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
