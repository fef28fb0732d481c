package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hadefuwa/stirling-engine/internal/framing"
	"github.com/hadefuwa/stirling-engine/internal/metrics"
	"github.com/hadefuwa/stirling-engine/internal/protocol"
	"github.com/hadefuwa/stirling-engine/internal/transport"
)

// ErrSessionClosed is returned when a command is sent to a stopped session
var ErrSessionClosed = errors.New("session closed")

// SessionConfig contains per-session engine parameters
type SessionConfig struct {
	BufferCeiling     int
	HistoryCapacity   int
	ResyncPolicy      framing.ResyncPolicy
	ChunkQueueSize    int
	DispatchQueueSize int
	ReadBufferSize    int
}

// DefaultSessionConfig returns the engine defaults
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		BufferCeiling:     framing.DefaultCeiling,
		HistoryCapacity:   framing.DefaultHistoryCapacity,
		ResyncPolicy:      framing.ResyncSkipFrame,
		ChunkQueueSize:    256,
		DispatchQueueSize: 1024,
		ReadBufferSize:    256,
	}
}

// Session is one connected instrument link and its framing state
type Session struct {
	Port      string
	StartTime time.Time

	link       transport.Port
	config     SessionConfig
	acc        *framing.Accumulator
	scanner    *framing.Scanner
	history    *framing.History
	dispatcher *Dispatcher
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	// Read loop -> decode loop
	chunks chan []byte

	// Processing control
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	onError  func(*Session, error)

	// One outstanding write at a time
	writeMu sync.Mutex

	sequence       atomic.Uint64
	bytesReceived  atomic.Uint64
	chunksReceived atomic.Uint64
	chunksDropped  atomic.Uint64

	// Snapshot of decode state, published after every Feed
	mu             sync.RWMutex
	lastActivity   time.Time
	bufferedBytes  int
	scanStats      framing.ScanStats
	overflowResets uint64
	bytesDiscarded uint64
	lastError      string
}

// NewSession creates a session around an open link. Events go to consumer
// through the session's dispatcher. The link is not read until Start.
func NewSession(port string, link transport.Port, consumer Consumer, cfg SessionConfig,
	logger zerolog.Logger, m *metrics.Metrics) *Session {

	defaults := DefaultSessionConfig()
	if cfg.ChunkQueueSize <= 0 {
		cfg.ChunkQueueSize = defaults.ChunkQueueSize
	}
	if cfg.DispatchQueueSize <= 0 {
		cfg.DispatchQueueSize = defaults.DispatchQueueSize
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaults.ReadBufferSize
	}

	logger = logger.With().Str("port", port).Logger()
	now := time.Now()

	return &Session{
		Port:         port,
		StartTime:    now,
		link:         link,
		config:       cfg,
		acc:          framing.NewAccumulator(cfg.BufferCeiling),
		scanner:      framing.NewScanner(cfg.ResyncPolicy),
		history:      framing.NewHistory(cfg.HistoryCapacity),
		dispatcher:   NewDispatcher(cfg.DispatchQueueSize, consumer, logger, m),
		logger:       logger,
		metrics:      m,
		chunks:       make(chan []byte, cfg.ChunkQueueSize),
		lastActivity: now,
	}
}

// Start launches the read and decode loops
func (s *Session) Start(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)

	s.wg.Add(2)
	go s.readLoop()
	go s.decodeLoop()

	s.logger.Info().
		Str("resync_policy", s.scanner.Policy().String()).
		Int("buffer_ceiling", s.acc.Ceiling()).
		Int("history_capacity", s.history.Capacity()).
		Msg("Session started")
}

// Stop cancels the loops, closes the link and the dispatcher. Events queued
// before Stop are still delivered. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}

		if err := s.link.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing port")
		}

		s.wg.Wait()
		s.dispatcher.Close()
		s.dispatcher.Wait()
		s.metrics.ClearSessionGauges(s.Port)

		s.logger.Info().
			Dur("duration", time.Since(s.StartTime)).
			Uint64("frames", s.sequence.Load()).
			Uint64("bytes_received", s.bytesReceived.Load()).
			Uint64("chunks_dropped", s.chunksDropped.Load()).
			Msg("Session stopped")
	})
}

// Feed runs one chunk through the framing engine: append to the accumulator,
// extract every complete frame, store it in the history and emit its event.
// It returns the emitted events in stream order. Feed must only be called from
// one goroutine at a time; once started, that is the decode loop.
func (s *Session) Feed(chunk []byte) []Event {
	started := time.Now()
	before := s.scanner.Stats()
	overflowBefore := s.acc.OverflowResets()
	discardedBefore := s.acc.BytesDiscarded()

	s.acc.Append(chunk)
	frames := s.scanner.Scan(s.acc)

	events := make([]Event, 0, len(frames))
	for _, f := range frames {
		n := s.history.Push(f)
		ev := NewEvent(s.Port, f, n, s.sequence.Add(1), started)
		s.dispatcher.Emit(ev)
		events = append(events, ev)
	}

	after := s.scanner.Stats()
	overflowAfter := s.acc.OverflowResets()
	discardedAfter := s.acc.BytesDiscarded()

	delta := metrics.ScanDelta{
		Candidates:      after.Candidates - before.Candidates,
		Valid:           after.ValidFrames - before.ValidFrames,
		Invalid:         after.InvalidTrailers - before.InvalidTrailers,
		NoMarkerResets:  after.NoMarkerResets - before.NoMarkerResets,
		ShortTailResets: after.ShortTailResets - before.ShortTailResets,
		BytesDropped:    (after.BytesDropped - before.BytesDropped) + (discardedAfter - discardedBefore),
		OverflowResets:  overflowAfter - overflowBefore,
	}
	s.metrics.RecordScan(delta, time.Since(started).Seconds())
	s.metrics.SetSessionGauges(s.Port, s.acc.Len(), s.history.Len())

	if delta.Invalid > 0 || delta.NoMarkerResets > 0 || delta.ShortTailResets > 0 || delta.OverflowResets > 0 {
		s.logger.Debug().
			Uint64("invalid_trailers", delta.Invalid).
			Uint64("no_marker_resets", delta.NoMarkerResets).
			Uint64("short_tail_resets", delta.ShortTailResets).
			Uint64("overflow_resets", delta.OverflowResets).
			Uint64("bytes_dropped", delta.BytesDropped).
			Msg("Resynchronized")
	}

	s.mu.Lock()
	s.lastActivity = started
	s.bufferedBytes = s.acc.Len()
	s.scanStats = after
	s.overflowResets = overflowAfter
	s.bytesDiscarded = discardedAfter
	s.mu.Unlock()

	return events
}

// Send writes a command to the instrument. Writes are serialized; a failed
// write is returned to the caller and not retried.
func (s *Session) Send(ctx context.Context, cmd protocol.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ctx != nil && s.ctx.Err() != nil {
		return ErrSessionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.link.Write(cmd.Bytes())
	s.metrics.RecordCommand(cmd.Name(), err)
	if err != nil {
		s.logger.Error().Err(err).Str("command", cmd.String()).Msg("Failed to send command")
		return fmt.Errorf("failed to send command %s: %w", cmd, err)
	}

	s.logger.Info().Str("command", cmd.String()).Msg("Command sent")
	return nil
}

// Frames returns the retained frames, oldest first
func (s *Session) Frames() []protocol.Frame {
	return s.history.Snapshot()
}

// readLoop copies whatever the link returns into the chunk queue. When the
// queue is full the chunk is dropped; the scanner resynchronizes on the gap.
func (s *Session) readLoop() {
	defer s.wg.Done()
	defer close(s.chunks)

	buf := make([]byte, s.config.ReadBufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		n, err := s.link.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			s.bytesReceived.Add(uint64(n))
			s.chunksReceived.Add(1)
			s.metrics.RecordChunk(n)

			select {
			case s.chunks <- chunk:
			default:
				s.chunksDropped.Add(1)
				s.metrics.RecordChunkDropped()
				s.logger.Warn().Int("chunk_size", n).Msg("Chunk queue full, dropping chunk")
			}
		}

		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.fail(err)
			return
		}
	}
}

// decodeLoop is the only caller of Feed while the session runs
func (s *Session) decodeLoop() {
	defer s.wg.Done()

	for chunk := range s.chunks {
		s.Feed(chunk)
	}
}

// fail records a link error and reports it asynchronously, since the handler
// usually stops the session and Stop waits for this loop
func (s *Session) fail(err error) {
	s.logger.Error().Err(err).Msg("Port read failed")

	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()

	if s.onError != nil {
		go s.onError(s, err)
	}
}

// GetSessionInfo returns a snapshot of the session state for monitoring
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		Port:             s.Port,
		StartTime:        s.StartTime,
		LastActivity:     s.lastActivity,
		Duration:         time.Since(s.StartTime),
		ResyncPolicy:     s.scanner.Policy().String(),
		BufferCeiling:    s.acc.Ceiling(),
		BufferedBytes:    s.bufferedBytes,
		HistorySize:      s.history.Len(),
		HistoryCapacity:  s.history.Capacity(),
		FramesDecoded:    s.sequence.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		ChunksReceived:   s.chunksReceived.Load(),
		ChunksDropped:    s.chunksDropped.Load(),
		Scan:             s.scanStats,
		OverflowResets:   s.overflowResets,
		BytesDiscarded:   s.bytesDiscarded,
		EventsDispatched: s.dispatcher.Delivered(),
		EventsDropped:    s.dispatcher.Dropped(),
		EventsPending:    s.dispatcher.Pending(),
		LastError:        s.lastError,
	}
}

// SessionInfo represents session state for monitoring and APIs
type SessionInfo struct {
	Port            string        `json:"port"`
	StartTime       time.Time     `json:"start_time"`
	LastActivity    time.Time     `json:"last_activity"`
	Duration        time.Duration `json:"duration"`
	ResyncPolicy    string        `json:"resync_policy"`
	BufferCeiling   int           `json:"buffer_ceiling"`
	BufferedBytes   int           `json:"buffered_bytes"`
	HistorySize     int           `json:"history_size"`
	HistoryCapacity int           `json:"history_capacity"`

	// Link statistics
	FramesDecoded  uint64 `json:"frames_decoded"`
	BytesReceived  uint64 `json:"bytes_received"`
	ChunksReceived uint64 `json:"chunks_received"`
	ChunksDropped  uint64 `json:"chunks_dropped"`

	// Synchronization statistics
	Scan           framing.ScanStats `json:"scan"`
	OverflowResets uint64            `json:"overflow_resets"`
	BytesDiscarded uint64            `json:"bytes_discarded"`

	// Dispatch statistics
	EventsDispatched uint64 `json:"events_dispatched"`
	EventsDropped    uint64 `json:"events_dropped"`
	EventsPending    int    `json:"events_pending"`

	LastError string `json:"last_error,omitempty"`
}
