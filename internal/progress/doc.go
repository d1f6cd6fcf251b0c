// Package progress defines the scan event union streamed to callers, its
// NDJSON wire codec, and a non-blocking hub that batches observed events on a
// background goroutine and fans them out to sinks such as Prometheus metrics
// or structured logs.
package progress
