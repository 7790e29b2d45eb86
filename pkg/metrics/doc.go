// Package metrics registers flower's Prometheus metrics (queue depth,
// operation counters and latency, reaper activity) and exposes the
// generic health/readiness tracking used by pkg/api's HTTP handlers.
package metrics
