package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadefuwa/stirling-engine/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}

	for input, expected := range tests {
		assert.Equal(t, expected, ParseLevel(input), input)
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	logger := New(config.LoggingConfig{Level: "warn", Format: "json", Output: path}, "test-service")
	logger.Info().Msg("filtered out")
	logger.Warn().Str("port", "/dev/ttyUSB0").Msg("link lost")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.NotContains(t, out, "filtered out")
	assert.Contains(t, out, `"message":"link lost"`)
	assert.Contains(t, out, `"service":"test-service"`)
	assert.Contains(t, out, `"port":"/dev/ttyUSB0"`)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}
