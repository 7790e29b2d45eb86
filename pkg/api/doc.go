// Package api serves flowerd's HTTP surface: health, readiness, liveness,
// and Prometheus metrics. See cmd/flowerd for how it's wired into the
// process alongside the task queue and reaper.
package api
