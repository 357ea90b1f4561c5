// Package tracing wraps OpenTelemetry so that the scheduler and the workers
// can open spans for ticks and launches without importing otel directly.
// Until Init is called spans are no-op.
package tracing
