// Package monitor runs a small local HTTP server alongside a practice
// session, exposing health, component statistics, and Prometheus metrics
// for debugging and dashboards.
package monitor
