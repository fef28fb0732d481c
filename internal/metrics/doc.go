// Package metrics defines the Prometheus instruments exported at /metrics.
package metrics
