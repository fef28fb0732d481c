package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults matching the instrument's link and the reference engine behaviour
const (
	DefaultBaudRate          = 921600
	DefaultReadTimeoutMs     = 100
	DefaultReadBufferSize    = 256
	DefaultBufferCeiling     = 128
	DefaultHistoryCapacity   = 10
	DefaultResyncPolicy      = "skip_frame"
	DefaultChunkQueueSize    = 256
	DefaultDispatchQueueSize = 1024
	DefaultSimulateInterval  = 20 // milliseconds between simulated frames
)

// Config represents the complete service configuration
type Config struct {
	Serial  SerialConfig  `yaml:"serial" toml:"serial"`
	Engine  EngineConfig  `yaml:"engine" toml:"engine"`
	HTTP    HTTPConfig    `yaml:"http" toml:"http"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// SerialConfig contains the instrument link configuration
type SerialConfig struct {
	Port           string `yaml:"port" toml:"port"` // connected at startup when set
	BaudRate       int    `yaml:"baud_rate" toml:"baud_rate"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms" toml:"read_timeout_ms"`
	ReadBufferSize int    `yaml:"read_buffer_size" toml:"read_buffer_size"`
	StartOnConnect *bool  `yaml:"start_on_connect" toml:"start_on_connect"`
	Simulate       bool   `yaml:"simulate" toml:"simulate"`
	SimulateMs     int    `yaml:"simulate_interval_ms" toml:"simulate_interval_ms"`
	SimulateNoise  int    `yaml:"simulate_noise" toml:"simulate_noise"` // garbage bytes between frames
}

// EngineConfig contains frame synchronization parameters
type EngineConfig struct {
	BufferCeiling     int    `yaml:"buffer_ceiling" toml:"buffer_ceiling"`
	HistoryCapacity   int    `yaml:"history_capacity" toml:"history_capacity"`
	ResyncPolicy      string `yaml:"resync_policy" toml:"resync_policy"`
	ChunkQueueSize    int    `yaml:"chunk_queue_size" toml:"chunk_queue_size"`
	DispatchQueueSize int    `yaml:"dispatch_queue_size" toml:"dispatch_queue_size"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port        int      `yaml:"port" toml:"port"`
	Address     string   `yaml:"address" toml:"address"`
	Enabled     bool     `yaml:"enabled" toml:"enabled"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// Load reads and parses the configuration file. Files ending in .toml are
// decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns a configuration usable without a file
func Default() *Config {
	startOnConnect := true
	return &Config{
		Serial: SerialConfig{
			BaudRate:       DefaultBaudRate,
			ReadTimeoutMs:  DefaultReadTimeoutMs,
			ReadBufferSize: DefaultReadBufferSize,
			StartOnConnect: &startOnConnect,
			SimulateMs:     DefaultSimulateInterval,
		},
		Engine: EngineConfig{
			BufferCeiling:     DefaultBufferCeiling,
			HistoryCapacity:   DefaultHistoryCapacity,
			ResyncPolicy:      DefaultResyncPolicy,
			ChunkQueueSize:    DefaultChunkQueueSize,
			DispatchQueueSize: DefaultDispatchQueueSize,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyDefaults fills zero values left by a partial file
func (c *Config) applyDefaults() {
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = DefaultBaudRate
	}
	if c.Serial.ReadTimeoutMs == 0 {
		c.Serial.ReadTimeoutMs = DefaultReadTimeoutMs
	}
	if c.Serial.ReadBufferSize == 0 {
		c.Serial.ReadBufferSize = DefaultReadBufferSize
	}
	if c.Serial.StartOnConnect == nil {
		startOnConnect := true
		c.Serial.StartOnConnect = &startOnConnect
	}
	if c.Serial.SimulateMs == 0 {
		c.Serial.SimulateMs = DefaultSimulateInterval
	}
	if c.Engine.BufferCeiling == 0 {
		c.Engine.BufferCeiling = DefaultBufferCeiling
	}
	if c.Engine.HistoryCapacity == 0 {
		c.Engine.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.Engine.ResyncPolicy == "" {
		c.Engine.ResyncPolicy = DefaultResyncPolicy
	}
	if c.Engine.ChunkQueueSize == 0 {
		c.Engine.ChunkQueueSize = DefaultChunkQueueSize
	}
	if c.Engine.DispatchQueueSize == 0 {
		c.Engine.DispatchQueueSize = DefaultDispatchQueueSize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate performs validation of every configuration section
func (c *Config) Validate() error {
	if err := c.Serial.Validate(); err != nil {
		return fmt.Errorf("serial config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates serial link configuration
func (s *SerialConfig) Validate() error {
	if s.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", s.BaudRate)
	}

	if s.ReadTimeoutMs < 1 {
		return fmt.Errorf("read_timeout_ms must be at least 1, got %d", s.ReadTimeoutMs)
	}

	if s.ReadBufferSize < 1 {
		return fmt.Errorf("read_buffer_size must be at least 1 byte, got %d", s.ReadBufferSize)
	}

	if s.Simulate && s.SimulateMs < 1 {
		return fmt.Errorf("simulate_interval_ms must be at least 1, got %d", s.SimulateMs)
	}

	if s.SimulateNoise < 0 {
		return fmt.Errorf("simulate_noise cannot be negative, got %d", s.SimulateNoise)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	// A ceiling below one frame would discard every partially received frame
	if e.BufferCeiling < 64 {
		return fmt.Errorf("buffer_ceiling must be at least 64 bytes, got %d", e.BufferCeiling)
	}

	if e.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be at least 1, got %d", e.HistoryCapacity)
	}

	validPolicies := map[string]bool{"skip_frame": true, "next_byte": true}
	if !validPolicies[e.ResyncPolicy] {
		return fmt.Errorf("resync_policy must be 'skip_frame' or 'next_byte', got '%s'", e.ResyncPolicy)
	}

	if e.ChunkQueueSize < 1 {
		return fmt.Errorf("chunk_queue_size must be at least 1, got %d", e.ChunkQueueSize)
	}

	if e.DispatchQueueSize < 1 {
		return fmt.Errorf("dispatch_queue_size must be at least 1, got %d", e.DispatchQueueSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadTimeout returns the serial read timeout as a time.Duration
func (s *SerialConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

// GetSimulateInterval returns the simulated frame period as a time.Duration
func (s *SerialConfig) GetSimulateInterval() time.Duration {
	return time.Duration(s.SimulateMs) * time.Millisecond
}

// ShouldStartOnConnect reports whether the start-logging command is sent after connecting
func (s *SerialConfig) ShouldStartOnConnect() bool {
	return s.StartOnConnect == nil || *s.StartOnConnect
}

// ListenAddress returns the HTTP listen address
func (h *HTTPConfig) ListenAddress() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}
