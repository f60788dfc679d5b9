// Package observability provides an extension that records job lifecycle
// counters through the OpenTelemetry metrics API.
//
// Register it with the orchestrator via WithExtension. Pair it with a
// MeterProvider backed by the Prometheus exporter to expose the counters
// on a scrape endpoint.
package observability
