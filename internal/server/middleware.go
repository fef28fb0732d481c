package server

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hadefuwa/stirling-engine/internal/metrics"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

var requestSeq atomic.Uint64

// RequestLogger tags each request with an ID and logs it once it completes.
// A client-supplied X-Request-ID is kept; otherwise one is generated. Session
// routes also log the serial port they address.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	prefix := strconv.FormatInt(time.Now().UnixNano(), 36)

	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = prefix + "-" + strconv.FormatUint(requestSeq.Add(1), 10)
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()

		status := c.Writer.Status()

		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		if port := c.Param("port"); port != "" {
			event = event.Str("port", port)
		}

		event.
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("route", routePath(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("Request handled")
	}
}

// RequestID returns the ID RequestLogger assigned to the request
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestMetrics records request counts, latency and errors per route
func RequestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		endpoint := routePath(c)

		m.RecordHTTPRequest(c.Request.Method, endpoint, strconv.Itoa(status), time.Since(start).Seconds())

		if status >= 400 {
			errorType := "client_error"
			if status >= 500 {
				errorType = "server_error"
			}
			m.RecordHTTPError(c.Request.Method, endpoint, errorType)
		}
	}
}

// routePath returns the route template so metric labels stay bounded
func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}
