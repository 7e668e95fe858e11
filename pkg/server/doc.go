// Package server exposes run observability over HTTP: health and readiness
// probes plus the Prometheus metrics endpoint.
package server
