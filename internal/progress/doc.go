// Package progress carries sync-pass telemetry from the coordinator to pluggable sinks.
// Emit never blocks the drain loop; events are batched on a background goroutine and
// fanned out to sinks such as structured logs or Prometheus collectors.
package progress
