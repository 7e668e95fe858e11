// Package cli wires the fleetprobe command-line interface: the collect
// fan-out, adhoc exec, artifact publishing, and version reporting.
package cli
