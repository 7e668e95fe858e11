// Package logging wraps log/slog with fleet-probe defaults: structured JSON
// output to stderr, module/version context on every record, and LOG_LEVEL
// environment-based verbosity.
//
// Typical usage in main():
//
//	logging.SetDefaultStructuredLogger("fleetprobe", version)
//	slog.Info("collection started", "nodes", n)
package logging
