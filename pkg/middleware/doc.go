// Package middleware provides protocol-preserving Application wrappers:
// structured request logging, Prometheus metrics, and OpenTelemetry
// tracing.
//
// Every middleware here follows the composition contract: the scope is
// read-only, every event the inner application emits is forwarded
// unchanged, capability-gated events are never emitted without checking
// scope.Extensions, and errors from send propagate to the driver.
package middleware
