package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hadefuwa/stirling-engine/internal/config"
	"github.com/hadefuwa/stirling-engine/internal/metrics"
	"github.com/hadefuwa/stirling-engine/internal/protocol"
	"github.com/hadefuwa/stirling-engine/internal/stream"
	"github.com/hadefuwa/stirling-engine/internal/transport"
)

const (
	serviceName    = "stirling-engine"
	serviceVersion = "1.0.0"

	heartbeatInterval = 15 * time.Second
)

// HTTPServer provides the HTTP API for session control and monitoring
type HTTPServer struct {
	server  *http.Server
	router  *gin.Engine
	logger  zerolog.Logger
	config  *config.Config
	manager *stream.Manager
	hub     *EventHub
	metrics *metrics.Metrics

	listPorts func() ([]transport.PortInfo, error)
	startTime time.Time
}

// NewHTTPServer creates the API server. Metrics are served from gatherer.
func NewHTTPServer(appConfig *config.Config, logger zerolog.Logger, manager *stream.Manager,
	hub *EventHub, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	logger = logger.With().Str("component", "http").Logger()

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		manager:   manager,
		hub:       hub,
		metrics:   m,
		listPorts: transport.ListPorts,
		startTime: time.Now(),
	}

	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(RequestMetrics(m))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(appConfig.HTTP.CORSOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	h.router = r
	h.setupRoutes(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h.server = &http.Server{
		Addr:        appConfig.HTTP.ListenAddress(),
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// no WriteTimeout: /events responses are long-lived
	}

	return h
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(metricsHandler http.Handler) {
	h.router.GET("/", h.handleRoot)
	h.router.GET("/health", h.handleHealth)
	h.router.GET("/config", h.handleConfig)
	h.router.GET("/stats", h.handleStats)
	h.router.GET("/metrics", gin.WrapH(metricsHandler))
	h.router.GET("/ports", h.handlePorts)

	sessions := h.router.Group("/sessions")
	sessions.GET("", h.handleSessions)
	sessions.POST("", h.handleConnect)
	sessions.GET("/:port", h.handleSessionDetail)
	sessions.DELETE("/:port", h.handleDisconnect)
	sessions.GET("/:port/frames", h.handleFrames)
	sessions.POST("/:port/commands", h.handleCommand)

	h.router.GET("/events", h.handleEvents)
}

// Handler returns the router, for embedding or tests
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info().Str("address", h.server.Addr).Msg("Starting HTTP API server")

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info().Msg("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": gin.H{
			"GET /":                          "API documentation",
			"GET /health":                    "Service health check",
			"GET /config":                    "Get service configuration",
			"GET /stats":                     "Get service statistics",
			"GET /metrics":                   "Prometheus metrics",
			"GET /ports":                     "List serial ports",
			"GET /sessions":                  "List connected sessions",
			"POST /sessions":                 "Connect a port",
			"GET /sessions/{port}":           "Get session details",
			"DELETE /sessions/{port}":        "Disconnect a port",
			"GET /sessions/{port}/frames":    "Get recent frames",
			"POST /sessions/{port}/commands": "Send an instrument command",
			"GET /events":                    "Stream decoded frames (Server-Sent Events)",
		},
		"commands":  protocol.CommandNames(),
		"timestamp": time.Now().UTC(),
	})
}

func (h *HTTPServer) handleHealth(c *gin.Context) {
	stats := h.manager.GetStatistics()

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": gin.H{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": gin.H{
			"stream_manager": gin.H{
				"status":          "running",
				"active_sessions": stats.ActiveSessions,
			},
			"event_hub": gin.H{
				"status":      "running",
				"subscribers": h.hub.Subscribers(),
			},
		},
	})
}

func (h *HTTPServer) handleConfig(c *gin.Context) {
	cfg := h.config

	c.JSON(http.StatusOK, gin.H{
		"serial": gin.H{
			"port":                 cfg.Serial.Port,
			"baud_rate":            cfg.Serial.BaudRate,
			"read_timeout_ms":      cfg.Serial.ReadTimeoutMs,
			"read_buffer_size":     cfg.Serial.ReadBufferSize,
			"start_on_connect":     cfg.Serial.ShouldStartOnConnect(),
			"simulate":             cfg.Serial.Simulate,
			"simulate_interval_ms": cfg.Serial.SimulateMs,
			"simulate_noise":       cfg.Serial.SimulateNoise,
		},
		"engine": gin.H{
			"buffer_ceiling":      cfg.Engine.BufferCeiling,
			"history_capacity":    cfg.Engine.HistoryCapacity,
			"resync_policy":       cfg.Engine.ResyncPolicy,
			"chunk_queue_size":    cfg.Engine.ChunkQueueSize,
			"dispatch_queue_size": cfg.Engine.DispatchQueueSize,
		},
		"http": gin.H{
			"address":      cfg.HTTP.Address,
			"port":         cfg.HTTP.Port,
			"cors_origins": cfg.HTTP.CORSOrigins,
		},
		"logging": gin.H{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
	})
}

func (h *HTTPServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions":  h.manager.GetStatistics(),
		"events":    h.hub.GetStatistics(),
	})
}

func (h *HTTPServer) handlePorts(c *gin.Context) {
	ports, err := h.listPorts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_ports": len(ports),
		"ports":       ports,
	})
}

func (h *HTTPServer) handleSessions(c *gin.Context) {
	sessions := h.manager.GetAllSessions()
	infos := make([]stream.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.GetSessionInfo())
	}

	c.JSON(http.StatusOK, gin.H{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

type connectRequest struct {
	Port string `json:"port"`
}

func (h *HTTPServer) handleConnect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Port == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "port is required"})
		return
	}

	session, err := h.manager.Connect(c.Request.Context(), req.Port)
	switch {
	case errors.Is(err, stream.ErrAlreadyConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, session.GetSessionInfo())
}

func (h *HTTPServer) handleSessionDetail(c *gin.Context) {
	session, ok := h.lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.GetSessionInfo())
}

func (h *HTTPServer) handleDisconnect(c *gin.Context) {
	port := c.Param("port")
	if err := h.manager.Disconnect(port); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Disconnected from " + port})
}

// frameView is a retained frame with its decoded samples
type frameView struct {
	FullPacket string            `json:"full_packet"`
	StartBytes string            `json:"start_bytes"`
	EndBytes   string            `json:"end_bytes"`
	Samples    []protocol.Sample `json:"samples"`
}

func (h *HTTPServer) handleFrames(c *gin.Context) {
	session, ok := h.lookupSession(c)
	if !ok {
		return
	}

	frames := session.Frames()
	views := make([]frameView, 0, len(frames))
	for _, f := range frames {
		samples := protocol.DecodeSamples(f)
		views = append(views, frameView{
			FullPacket: f.Hex(),
			StartBytes: f.StartHex(),
			EndBytes:   f.EndHex(),
			Samples:    samples[:],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"port":   session.Port,
		"count":  len(views),
		"frames": views,
	})
}

type commandRequest struct {
	Command string `json:"command"`
	Raw     string `json:"raw"`
}

func (h *HTTPServer) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	var cmd protocol.Command
	switch {
	case req.Command != "":
		known, ok := protocol.LookupCommand(req.Command)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"success":  false,
				"message":  "unknown command: " + req.Command,
				"commands": protocol.CommandNames(),
			})
			return
		}
		cmd = known
	case req.Raw != "":
		cmd = protocol.Command(req.Raw)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "command or raw is required"})
		return
	}

	err := h.manager.SendCommand(c.Request.Context(), c.Param("port"), cmd)
	switch {
	case errors.Is(err, stream.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Port not connected"})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Command sent: " + cmd.String()})
}

// handleEvents streams engine events as Server-Sent Events. The optional
// port query parameter restricts the stream to one session.
func (h *HTTPServer) handleEvents(c *gin.Context) {
	events, unsubscribe := h.hub.Subscribe(c.Query("port"))
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("frame", ev)
			return true
		case t := <-heartbeat.C:
			c.SSEvent("ping", t.UTC())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// lookupSession resolves the :port parameter, writing 404 when it is not connected
func (h *HTTPServer) lookupSession(c *gin.Context) (*stream.Session, bool) {
	port := c.Param("port")
	session, exists := h.manager.GetSession(port)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Port not connected", "port": port})
		return nil, false
	}
	return session, true
}
