// Package manager orchestrates collection runs end to end: inventory
// discovery, filtration, per-host document resolution, once-assignment,
// bounded concurrent execution, and manifest and artifact publishing.
package manager
