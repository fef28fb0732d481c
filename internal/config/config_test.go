package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid default configuration",
			modify: func(c *Config) {},
		},
		{
			name:        "invalid baud rate",
			modify:      func(c *Config) { c.Serial.BaudRate = 0 },
			expectError: true,
			errorMsg:    "baud_rate must be positive",
		},
		{
			name:        "read timeout too small",
			modify:      func(c *Config) { c.Serial.ReadTimeoutMs = 0 },
			expectError: true,
			errorMsg:    "read_timeout_ms must be at least 1",
		},
		{
			name:        "negative simulated noise",
			modify:      func(c *Config) { c.Serial.SimulateNoise = -1 },
			expectError: true,
			errorMsg:    "simulate_noise cannot be negative",
		},
		{
			name:        "ceiling below one frame",
			modify:      func(c *Config) { c.Engine.BufferCeiling = 63 },
			expectError: true,
			errorMsg:    "buffer_ceiling must be at least 64 bytes",
		},
		{
			name:   "ceiling of exactly one frame",
			modify: func(c *Config) { c.Engine.BufferCeiling = 64 },
		},
		{
			name:        "zero history",
			modify:      func(c *Config) { c.Engine.HistoryCapacity = 0 },
			expectError: true,
			errorMsg:    "history_capacity must be at least 1",
		},
		{
			name:        "unknown resync policy",
			modify:      func(c *Config) { c.Engine.ResyncPolicy = "retry" },
			expectError: true,
			errorMsg:    "resync_policy must be 'skip_frame' or 'next_byte'",
		},
		{
			name:   "next byte resync policy",
			modify: func(c *Config) { c.Engine.ResyncPolicy = "next_byte" },
		},
		{
			name:        "zero dispatch queue",
			modify:      func(c *Config) { c.Engine.DispatchQueueSize = 0 },
			expectError: true,
			errorMsg:    "dispatch_queue_size must be at least 1",
		},
		{
			name:        "invalid http port",
			modify:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name: "http disabled ignores port",
			modify: func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Port = 0
			},
		},
		{
			name:        "invalid log level",
			modify:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
		{
			name:        "invalid log format",
			modify:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
serial:
  port: /dev/ttyUSB0
  start_on_connect: false
engine:
  resync_policy: next_byte
  history_capacity: 20
http:
  enabled: true
  address: 0.0.0.0
  port: 9090
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, DefaultBaudRate, cfg.Serial.BaudRate)
	assert.False(t, cfg.Serial.ShouldStartOnConnect())
	assert.Equal(t, "next_byte", cfg.Engine.ResyncPolicy)
	assert.Equal(t, 20, cfg.Engine.HistoryCapacity)
	assert.Equal(t, DefaultBufferCeiling, cfg.Engine.BufferCeiling)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.ListenAddress())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[serial]
simulate = true
simulate_interval_ms = 5
simulate_noise = 3

[engine]
buffer_ceiling = 256

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Serial.Simulate)
	assert.Equal(t, 5*time.Millisecond, cfg.Serial.GetSimulateInterval())
	assert.Equal(t, 3, cfg.Serial.SimulateNoise)
	assert.True(t, cfg.Serial.ShouldStartOnConnect())
	assert.Equal(t, 256, cfg.Engine.BufferCeiling)
	assert.Equal(t, DefaultResyncPolicy, cfg.Engine.ResyncPolicy)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	path := writeConfig(t, "bad.yaml", "serial: [unclosed")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")

	path = writeConfig(t, "invalid.yaml", "engine:\n  buffer_ceiling: 10\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "config validation failed"))
}

func TestDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 100*time.Millisecond, cfg.Serial.GetReadTimeout())
	assert.Equal(t, 20*time.Millisecond, cfg.Serial.GetSimulateInterval())
}

func TestShippedConfigs(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(filepath.Join("..", "..", "configs", name))
			assert.NoError(t, err)
		})
	}
}
