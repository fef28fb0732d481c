package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hadefuwa/stirling-engine/internal/metrics"
	"github.com/hadefuwa/stirling-engine/internal/protocol"
	"github.com/hadefuwa/stirling-engine/internal/transport"
)

var (
	// ErrSessionNotFound is returned when no session is connected on a port
	ErrSessionNotFound = errors.New("port not connected")

	// ErrAlreadyConnected is returned when connecting a port twice
	ErrAlreadyConnected = errors.New("port already connected")

	// ErrManagerStopped is returned when connecting after Stop
	ErrManagerStopped = errors.New("manager stopped")
)

// Opener opens the link for a port name
type Opener func(port string) (transport.Port, error)

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	Session        SessionConfig
	StartOnConnect bool // send the start-logging command after connecting
}

// Manager manages all connected sessions, keyed by port name
type Manager struct {
	sessions   map[string]*Session
	connecting map[string]struct{}
	mu         sync.RWMutex
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	open       Opener
	consumer   Consumer
	config     ManagerConfig

	sessionsOpened uint64
	sessionsClosed uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a session manager. Every session's events go to consumer.
func NewManager(logger zerolog.Logger, m *metrics.Metrics, open Opener, consumer Consumer, config ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		sessions:   make(map[string]*Session),
		connecting: make(map[string]struct{}),
		logger:     logger.With().Str("component", "stream_manager").Logger(),
		metrics:    m,
		open:       open,
		consumer:   consumer,
		config:     config,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Connect opens the port and starts a session on it
func (m *Manager) Connect(ctx context.Context, port string) (*Session, error) {
	if port == "" {
		return nil, errors.New("port name required")
	}

	m.mu.Lock()
	if _, exists := m.sessions[port]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", port, ErrAlreadyConnected)
	}
	if _, pending := m.connecting[port]; pending {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", port, ErrAlreadyConnected)
	}
	m.connecting[port] = struct{}{}
	m.mu.Unlock()

	// Opening a serial device can block; the port stays reserved meanwhile
	link, err := m.open(port)
	if err != nil {
		m.release(port)
		return nil, fmt.Errorf("failed to open port %s: %w", port, err)
	}

	session := NewSession(port, link, m.consumer, m.config.Session, m.logger, m.metrics)
	session.onError = m.handleSessionError
	session.Start(m.ctx)

	m.mu.Lock()
	delete(m.connecting, port)
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		session.Stop()
		return nil, fmt.Errorf("%s: %w", port, ErrManagerStopped)
	}
	m.sessions[port] = session
	m.sessionsOpened++
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordSessionOpened()
	m.metrics.SetActiveSessions(active)

	m.logger.Info().
		Str("port", port).
		Int("active_sessions", active).
		Msg("Connected")

	if m.config.StartOnConnect {
		if err := session.Send(ctx, protocol.CmdStartLogging); err != nil {
			m.logger.Warn().Err(err).Str("port", port).Msg("Failed to start logging on connect")
		}
	}

	return session, nil
}

func (m *Manager) release(port string) {
	m.mu.Lock()
	delete(m.connecting, port)
	m.mu.Unlock()
}

// Disconnect stops the session on port and closes its link
func (m *Manager) Disconnect(port string) error {
	m.mu.Lock()
	session, exists := m.sessions[port]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", port, ErrSessionNotFound)
	}
	delete(m.sessions, port)
	m.mu.Unlock()

	m.finalize(session)
	return nil
}

// handleSessionError drops a session whose link failed. The session may already
// have been replaced or disconnected, in which case only it is stopped.
func (m *Manager) handleSessionError(session *Session, err error) {
	m.mu.Lock()
	current, exists := m.sessions[session.Port]
	owned := exists && current == session
	if owned {
		delete(m.sessions, session.Port)
	}
	m.mu.Unlock()

	m.logger.Warn().Err(err).Str("port", session.Port).Msg("Session link failed, disconnecting")

	if owned {
		m.finalize(session)
		return
	}
	session.Stop()
}

func (m *Manager) finalize(session *Session) {
	session.Stop()

	m.mu.Lock()
	m.sessionsClosed++
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordSessionClosed(time.Since(session.StartTime).Seconds())
	m.metrics.SetActiveSessions(active)

	m.logger.Info().
		Str("port", session.Port).
		Dur("duration", time.Since(session.StartTime)).
		Int("active_sessions", active).
		Msg("Disconnected")
}

// GetSession retrieves the session connected on port
func (m *Manager) GetSession(port string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[port]
	return session, exists
}

// GetAllSessions returns the connected sessions ordered by port name
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Port < sessions[j].Port
	})
	return sessions
}

// GetActiveSessionCount returns the number of connected sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SendCommand writes a command to the instrument on port
func (m *Manager) SendCommand(ctx context.Context, port string, cmd protocol.Command) error {
	session, exists := m.GetSession(port)
	if !exists {
		return fmt.Errorf("%s: %w", port, ErrSessionNotFound)
	}
	return session.Send(ctx, cmd)
}

// GetStatistics returns manager-wide counters
func (m *Manager) GetStatistics() ManagerStatistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ManagerStatistics{
		ActiveSessions: len(m.sessions),
		SessionsOpened: m.sessionsOpened,
		SessionsClosed: m.sessionsClosed,
	}
	for _, session := range m.sessions {
		stats.FramesDecoded += session.sequence.Load()
		stats.BytesReceived += session.bytesReceived.Load()
		stats.ChunksDropped += session.chunksDropped.Load()
	}
	return stats
}

// ManagerStatistics aggregates counters across sessions
type ManagerStatistics struct {
	ActiveSessions int    `json:"active_sessions"`
	SessionsOpened uint64 `json:"sessions_opened"`
	SessionsClosed uint64 `json:"sessions_closed"`
	FramesDecoded  uint64 `json:"frames_decoded"`
	BytesReceived  uint64 `json:"bytes_received"`
	ChunksDropped  uint64 `json:"chunks_dropped"`
}

// Stop disconnects every session
func (m *Manager) Stop() {
	m.logger.Info().Msg("Stopping stream manager...")

	m.mu.Lock()
	m.cancel()
	sessions := make([]*Session, 0, len(m.sessions))
	for port, session := range m.sessions {
		sessions = append(sessions, session)
		delete(m.sessions, port)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		m.finalize(session)
	}

	stats := m.GetStatistics()
	m.logger.Info().
		Uint64("sessions_opened", stats.SessionsOpened).
		Uint64("sessions_closed", stats.SessionsClosed).
		Msg("Stream manager stopped")
}
