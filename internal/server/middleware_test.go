package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggedRouter(buf *bytes.Buffer) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(buf)))
	r.GET("/sessions/:port", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": RequestID(c)})
	})
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	buf.Reset()
	return entry
}

func TestRequestLoggerSessionRoute(t *testing.T) {
	var buf bytes.Buffer
	r := newLoggedRouter(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/COM3", nil))
	require.Equal(t, http.StatusOK, w.Code)

	id := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, id, body["request_id"])

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Request handled", entry["message"])
	assert.Equal(t, id, entry["request_id"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/sessions/:port", entry["route"])
	assert.Equal(t, "COM3", entry["port"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
}

func TestRequestLoggerKeepsClientRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := newLoggedRouter(&buf)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "bench-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "bench-42", w.Header().Get(RequestIDHeader))
	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "bench-42", entry["request_id"])
	assert.NotContains(t, entry, "port")
}

func TestRequestLoggerUnmatchedRoute(t *testing.T) {
	var buf bytes.Buffer
	r := newLoggedRouter(&buf)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	first := w.Header().Get(RequestIDHeader)

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "unmatched", entry["route"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.NotEqual(t, first, w.Header().Get(RequestIDHeader))
}
