package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hadefuwa/stirling-engine/internal/config"
	"github.com/hadefuwa/stirling-engine/internal/framing"
	"github.com/hadefuwa/stirling-engine/internal/logging"
	"github.com/hadefuwa/stirling-engine/internal/metrics"
	"github.com/hadefuwa/stirling-engine/internal/server"
	"github.com/hadefuwa/stirling-engine/internal/stream"
	"github.com/hadefuwa/stirling-engine/internal/transport"
)

const (
	serviceName      = "stirling-engine"
	serviceVersion   = "1.0.0"
	simulatedPort    = "sim0"
	subscriberBuffer = 256
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (.yaml or .toml); defaults are used when empty")
	portFlag := flag.String("port", "", "Serial port to connect at startup (overrides serial.port)")
	simulate := flag.Bool("simulate", false, "Use the simulated instrument instead of a serial port")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit")
	flag.Parse()

	if *listPorts {
		if err := printPorts(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list ports: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *simulate {
		cfg.Serial.Simulate = true
	}

	logger := logging.New(cfg.Logging, serviceName)

	logger.Info().
		Str("version", serviceVersion).
		Str("config_path", *configPath).
		Msg("Service starting")

	logger.Info().
		Str("serial_port", cfg.Serial.Port).
		Int("baud_rate", cfg.Serial.BaudRate).
		Bool("simulate", cfg.Serial.Simulate).
		Int("buffer_ceiling", cfg.Engine.BufferCeiling).
		Int("history_capacity", cfg.Engine.HistoryCapacity).
		Str("resync_policy", cfg.Engine.ResyncPolicy).
		Str("log_level", cfg.Logging.Level).
		Msg("Configuration loaded")

	policy, err := framing.ParseResyncPolicy(cfg.Engine.ResyncPolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid resync policy")
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	appMetrics := metrics.NewMetrics()
	logger.Info().Msg("Prometheus metrics initialized")

	hub := server.NewEventHub(subscriberBuffer, logger, appMetrics)

	managerConfig := stream.ManagerConfig{
		Session: stream.SessionConfig{
			BufferCeiling:     cfg.Engine.BufferCeiling,
			HistoryCapacity:   cfg.Engine.HistoryCapacity,
			ResyncPolicy:      policy,
			ChunkQueueSize:    cfg.Engine.ChunkQueueSize,
			DispatchQueueSize: cfg.Engine.DispatchQueueSize,
			ReadBufferSize:    cfg.Serial.ReadBufferSize,
		},
		StartOnConnect: cfg.Serial.ShouldStartOnConnect(),
	}

	streamMgr := stream.NewManager(logger, appMetrics, newOpener(cfg.Serial), frameConsumer(hub, logger), managerConfig)
	logger.Info().Bool("start_on_connect", managerConfig.StartOnConnect).Msg("Stream manager initialized")

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg, logger, streamMgr, hub, appMetrics, prometheus.DefaultGatherer)
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}

	port := cfg.Serial.Port
	if port == "" && cfg.Serial.Simulate {
		port = simulatedPort
	}
	if port != "" {
		connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := streamMgr.Connect(connectCtx, port); err != nil {
			logger.Error().Err(err).Str("port", port).Msg("Failed to connect at startup")
		}
		connectCancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Msg("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	logger.Info().Msg("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error stopping HTTP server")
		}
		shutdownCancel()
	}

	stats := streamMgr.GetStatistics()
	streamMgr.Stop()

	hubStats := hub.GetStatistics()
	logger.Info().
		Uint64("sessions_opened", stats.SessionsOpened).
		Uint64("frames_decoded", stats.FramesDecoded).
		Uint64("bytes_received", stats.BytesReceived).
		Uint64("chunks_dropped", stats.ChunksDropped).
		Uint64("events_published", hubStats.EventsPublished).
		Uint64("events_dropped", hubStats.EventsDropped).
		Msg("Final statistics")

	logger.Info().Msg("Service stopped")
}

// newOpener returns how ports are opened: the serial driver, or a fresh
// simulated instrument per connection
func newOpener(cfg config.SerialConfig) stream.Opener {
	if cfg.Simulate {
		return func(string) (transport.Port, error) {
			return transport.NewSimulator(transport.SimulatorConfig{
				Interval: cfg.GetSimulateInterval(),
				Noise:    cfg.SimulateNoise,
			}), nil
		}
	}

	return func(name string) (transport.Port, error) {
		return transport.OpenSerial(transport.SerialConfig{
			Name:        name,
			BaudRate:    cfg.BaudRate,
			ReadTimeout: cfg.GetReadTimeout(),
		})
	}
}

// frameConsumer publishes events to the hub and traces them at debug level
func frameConsumer(hub *server.EventHub, logger zerolog.Logger) stream.Consumer {
	return stream.ConsumerFunc(func(ev stream.Event) {
		hub.Deliver(ev)

		if e := logger.Debug(); e.Enabled() {
			e.Str("port", ev.Port).
				Uint64("sequence", ev.Sequence).
				Int("packet_number", ev.PacketNumber).
				Str("pressure", ev.Samples[0].PressureString()).
				Str("volume", ev.Samples[0].VolumeString()).
				Msg("Frame decoded")
		}
	})
}

func printPorts() error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(ports)
}
