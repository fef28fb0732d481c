package server

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/hadefuwa/stirling-engine/internal/metrics"
	"github.com/hadefuwa/stirling-engine/internal/stream"
)

// DefaultSubscriberBuffer is the per-client event buffer of the hub
const DefaultSubscriberBuffer = 64

// EventHub fans engine events out to event stream clients. Each client has a
// bounded buffer; a client that falls behind loses events instead of stalling
// the dispatcher.
type EventHub struct {
	subscribers map[*subscriber]struct{}
	bufferSize  int
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	published atomic.Uint64
	dropped   atomic.Uint64

	mu sync.RWMutex
}

type subscriber struct {
	events chan stream.Event
	port   string // empty receives every port
}

// NewEventHub creates a hub with the given per-client buffer size
func NewEventHub(bufferSize int, logger zerolog.Logger, m *metrics.Metrics) *EventHub {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}

	return &EventHub{
		subscribers: make(map[*subscriber]struct{}),
		bufferSize:  bufferSize,
		logger:      logger.With().Str("component", "event_hub").Logger(),
		metrics:     m,
	}
}

// Subscribe registers a client. Only events from port are received unless port
// is empty. The returned function unsubscribes and closes the channel.
func (h *EventHub) Subscribe(port string) (<-chan stream.Event, func()) {
	sub := &subscriber{
		events: make(chan stream.Event, h.bufferSize),
		port:   port,
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.metrics.SetSubscribers(count)
	h.logger.Debug().Str("port_filter", port).Int("subscribers", count).Msg("Subscriber added")

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, sub)
			close(sub.events)
			count := len(h.subscribers)
			h.mu.Unlock()

			h.metrics.SetSubscribers(count)
			h.logger.Debug().Int("subscribers", count).Msg("Subscriber removed")
		})
	}

	return sub.events, unsubscribe
}

// Deliver implements stream.Consumer. It never blocks.
func (h *EventHub) Deliver(ev stream.Event) {
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		if sub.port != "" && sub.port != ev.Port {
			continue
		}

		select {
		case sub.events <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of connected clients
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// GetStatistics returns hub counters
func (h *EventHub) GetStatistics() HubStatistics {
	return HubStatistics{
		Subscribers:     h.Subscribers(),
		EventsPublished: h.published.Load(),
		EventsDropped:   h.dropped.Load(),
	}
}

// HubStatistics represents event hub counters
type HubStatistics struct {
	Subscribers     int    `json:"subscribers"`
	EventsPublished uint64 `json:"events_published"`
	EventsDropped   uint64 `json:"events_dropped"`
}
