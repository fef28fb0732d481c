package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the acquisition service
type Metrics struct {
	// Transport metrics
	BytesReceived  prometheus.Counter
	ChunksReceived prometheus.Counter
	ChunksDropped  prometheus.Counter

	// Framing metrics
	FrameCandidates     prometheus.Counter
	FramesValid         prometheus.Counter
	FramesInvalid       prometheus.Counter
	Resyncs             *prometheus.CounterVec
	BytesDropped        prometheus.Counter
	BufferOverflowReset prometheus.Counter
	BufferedBytes       *prometheus.GaugeVec
	HistorySize         *prometheus.GaugeVec
	FrameDecodeDuration prometheus.Histogram

	// Dispatch metrics
	EventsDispatched prometheus.Counter
	EventsDropped    prometheus.Counter

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionDuration prometheus.Histogram
	CommandsSent    *prometheus.CounterVec
	CommandsFailed  *prometheus.CounterVec
	SSESubscribers  prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics and registers them with reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Transport metrics
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_bytes_received_total",
			Help: "Total number of bytes read from instrument links",
		}),
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_chunks_received_total",
			Help: "Total number of transport chunks read",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_chunks_dropped_total",
			Help: "Total number of chunks dropped because the decode queue was full",
		}),

		// Framing metrics
		FrameCandidates: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_frame_candidates_total",
			Help: "Total number of 64-byte windows extracted after a start marker",
		}),
		FramesValid: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_frames_valid_total",
			Help: "Total number of frames accepted and decoded",
		}),
		FramesInvalid: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_frames_invalid_total",
			Help: "Total number of candidates rejected by the trailer check",
		}),
		Resyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "acq_resyncs_total",
			Help: "Total number of buffer resets by reason",
		}, []string{"reason"}),
		BytesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_bytes_dropped_total",
			Help: "Total number of bytes discarded while resynchronizing",
		}),
		BufferOverflowReset: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_buffer_overflow_resets_total",
			Help: "Total number of times the pending buffer exceeded its ceiling and was emptied",
		}),
		BufferedBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acq_buffered_bytes",
			Help: "Bytes pending in the frame buffer",
		}, []string{"port"}),
		HistorySize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acq_history_frames",
			Help: "Frames held in the session history",
		}, []string{"port"}),
		FrameDecodeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "acq_chunk_processing_duration_seconds",
			Help:    "Time spent framing and decoding one chunk",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us to ~0.26s
		}),

		// Dispatch metrics
		EventsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_events_dispatched_total",
			Help: "Total number of decoded-frame events delivered to consumers",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_events_dropped_total",
			Help: "Total number of events dropped because the dispatch queue was full",
		}),

		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "acq_active_sessions",
			Help: "Current number of connected instrument sessions",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_sessions_opened_total",
			Help: "Total number of sessions opened",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "acq_sessions_closed_total",
			Help: "Total number of sessions closed",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "acq_session_duration_seconds",
			Help:    "Duration of instrument sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1s to ~3 days
		}),
		CommandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "acq_commands_sent_total",
			Help: "Total number of commands written to instruments",
		}, []string{"command"}),
		CommandsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "acq_commands_failed_total",
			Help: "Total number of command writes that failed",
		}, []string{"command"}),
		SSESubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "acq_event_subscribers",
			Help: "Current number of event stream subscribers",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "acq_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "acq_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "acq_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunk records a chunk read from a transport
func (m *Metrics) RecordChunk(size int) {
	m.ChunksReceived.Inc()
	m.BytesReceived.Add(float64(size))
}

// RecordChunkDropped increments the dropped chunk counter
func (m *Metrics) RecordChunkDropped() {
	m.ChunksDropped.Inc()
}

// ScanDelta holds scanner counter increments since the previous report
type ScanDelta struct {
	Candidates      uint64
	Valid           uint64
	Invalid         uint64
	NoMarkerResets  uint64
	ShortTailResets uint64
	BytesDropped    uint64
	OverflowResets  uint64
}

// RecordScan adds scanner counter increments
func (m *Metrics) RecordScan(d ScanDelta, durationSeconds float64) {
	m.FrameCandidates.Add(float64(d.Candidates))
	m.FramesValid.Add(float64(d.Valid))
	m.FramesInvalid.Add(float64(d.Invalid))
	m.Resyncs.WithLabelValues("no_marker").Add(float64(d.NoMarkerResets))
	m.Resyncs.WithLabelValues("short_tail").Add(float64(d.ShortTailResets))
	m.Resyncs.WithLabelValues("overflow").Add(float64(d.OverflowResets))
	m.BufferOverflowReset.Add(float64(d.OverflowResets))
	m.BytesDropped.Add(float64(d.BytesDropped))
	m.FrameDecodeDuration.Observe(durationSeconds)
}

// SetSessionGauges sets the per-port buffer and history gauges
func (m *Metrics) SetSessionGauges(port string, bufferedBytes, historySize int) {
	m.BufferedBytes.WithLabelValues(port).Set(float64(bufferedBytes))
	m.HistorySize.WithLabelValues(port).Set(float64(historySize))
}

// ClearSessionGauges removes the per-port gauges of a closed session
func (m *Metrics) ClearSessionGauges(port string) {
	m.BufferedBytes.DeleteLabelValues(port)
	m.HistorySize.DeleteLabelValues(port)
}

// RecordEventDispatched increments the delivered event counter
func (m *Metrics) RecordEventDispatched() {
	m.EventsDispatched.Inc()
}

// RecordEventDropped increments the dropped event counter
func (m *Metrics) RecordEventDropped() {
	m.EventsDropped.Inc()
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionOpened increments the sessions opened counter
func (m *Metrics) RecordSessionOpened() {
	m.SessionsOpened.Inc()
}

// RecordSessionClosed increments the sessions closed counter and records duration
func (m *Metrics) RecordSessionClosed(durationSeconds float64) {
	m.SessionsClosed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordCommand records a command write outcome
func (m *Metrics) RecordCommand(command string, err error) {
	if err != nil {
		m.CommandsFailed.WithLabelValues(command).Inc()
		return
	}
	m.CommandsSent.WithLabelValues(command).Inc()
}

// SetSubscribers sets the current number of event stream subscribers
func (m *Metrics) SetSubscribers(count int) {
	m.SSESubscribers.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
