package stream

import (
	"errors"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hadefuwa/stirling-engine/internal/metrics"
	"github.com/hadefuwa/stirling-engine/internal/protocol"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.NewMetricsWith(prometheus.NewRegistry())
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// testFrame builds a valid frame whose first sample carries the given pressure
func testFrame(pressure uint16) protocol.Frame {
	var readings [protocol.SampleCount]protocol.Reading
	readings[0].Pressure = pressure
	readings[0].VolumeRaw = 256
	return protocol.EncodeFrame(readings)
}

// fakePort is an in-memory link. Chunks pushed on reads are returned by Read;
// fail makes the next Read return an error.
type fakePort struct {
	reads chan []byte
	fail  chan error

	mu       sync.Mutex
	written  []string
	writeErr error

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{
		reads:  make(chan []byte, 64),
		fail:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case chunk := <-p.reads:
		return copy(buf, chunk), nil
	case err := <-p.fail:
		return 0, err
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *fakePort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written = append(p.written, string(buf))
	return len(buf), nil
}

func (p *fakePort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func (p *fakePort) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

var errLinkLost = errors.New("device disconnected")

// collector is a Consumer that records every delivered event
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Deliver(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
