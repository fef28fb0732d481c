// Package server exposes the acquisition engine over HTTP: session control,
// instrument commands, frame history, statistics, Prometheus metrics and a
// Server-Sent Events stream of decoded frames.
package server
