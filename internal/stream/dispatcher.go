package stream

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/hadefuwa/stirling-engine/internal/metrics"
)

// Consumer receives events from a Dispatcher. Deliver is called from the
// dispatcher goroutine, one event at a time, in emit order.
type Consumer interface {
	Deliver(ev Event)
}

// ConsumerFunc adapts a function to the Consumer interface
type ConsumerFunc func(ev Event)

// Deliver calls f(ev)
func (f ConsumerFunc) Deliver(ev Event) {
	f(ev)
}

// Dispatcher decouples event delivery from the decode loop. Emit only enqueues;
// a dedicated goroutine delivers queued events to the consumer in FIFO order.
// Emit never blocks: when the queue is full the event is dropped and counted in
// Dropped, so a slow consumer can observe gaps in Event.Sequence.
type Dispatcher struct {
	queue    chan Event
	consumer Consumer
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	delivered atomic.Uint64
	dropped   atomic.Uint64

	closed bool
	mu     sync.RWMutex
	done   chan struct{}
}

// NewDispatcher creates a dispatcher with a queue of the given size and starts
// its delivery goroutine. A nil consumer discards events.
func NewDispatcher(size int, consumer Consumer, logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		queue:    make(chan Event, size),
		consumer: consumer,
		logger:   logger,
		metrics:  m,
		done:     make(chan struct{}),
	}

	go d.run()

	return d
}

// Emit queues an event for delivery without blocking. It returns false when the
// event was dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Emit(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.queue <- ev:
		return true
	default:
		d.dropped.Add(1)
		d.metrics.RecordEventDropped()
		d.logger.Warn().
			Str("port", ev.Port).
			Uint64("sequence", ev.Sequence).
			Msg("Dispatch queue full, dropping event")
		return false
	}
}

// Close stops accepting events. Events already queued are still delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

// Wait blocks until every queued event has been delivered after Close
func (d *Dispatcher) Wait() {
	<-d.done
}

// Delivered returns the number of events handed to the consumer
func (d *Dispatcher) Delivered() uint64 {
	return d.delivered.Load()
}

// Dropped returns the number of events rejected by Emit
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Pending returns the number of queued events
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for ev := range d.queue {
		if d.consumer != nil {
			d.consumer.Deliver(ev)
		}
		d.delivered.Add(1)
		d.metrics.RecordEventDispatched()
	}
}
