// Package errors provides structured error classification for fleet-probe.
//
// The run-level error taxonomy distinguishes fatal conditions (CONFIG,
// INVENTORY), recoverable conditions the caller decides on (ALL_FILTERED,
// RUN_IN_PROGRESS), and per-host conditions that are logged and confined to
// a single unit of work (EXEC). Errors wrap their cause and support
// errors.Is / errors.As.
package errors
