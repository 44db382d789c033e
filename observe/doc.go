// Package observe provides observability for the health engine.
//
// It wires OpenTelemetry tracing and metrics for probe runs, a zap-backed
// structured logger, and HTTP request accounting. ProbeHook plugs the
// telemetry into health.Aggregator; Middleware and RequestStats feed the
// access log and the request figures of the detailed health endpoint.
package observe
