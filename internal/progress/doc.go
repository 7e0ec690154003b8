// Package progress carries run events away from the orchestrator. Stream is
// the ordered, per-run channel behind the server-sent event endpoint; Hub is
// the non-blocking, batching fan-out to observability sinks such as logs,
// Prometheus metrics and run history.
package progress
