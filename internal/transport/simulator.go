package transport

import (
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/hadefuwa/stirling-engine/internal/protocol"
)

// SimulatorConfig controls the simulated instrument
type SimulatorConfig struct {
	Interval time.Duration // time between frames while logging
	Noise    int           // garbage bytes inserted before each frame
	MaxChunk int           // upper bound of bytes returned per Read
	Seed     int64
}

// Simulator is a Port that behaves like the instrument: it emits pressure/volume
// frames while logging is enabled and reacts to the logging and heater commands.
type Simulator struct {
	config SimulatorConfig
	rng    *rand.Rand

	pending  []byte
	logging  bool
	heater   bool
	phase    float64
	commands []protocol.Command

	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// Simulated waveform parameters, in raw wire units
const (
	simPressureBase   = 10000
	simPressureAmp    = 6000
	simHeaterBoost    = 3000
	simVolumeBase     = 46_500_000
	simVolumeAmp      = 400_000
	simSamplesInCycle = 50
)

// NewSimulator creates a simulated instrument. It starts idle, like the real
// device, until it receives the start-logging command.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Millisecond
	}
	if cfg.MaxChunk <= 0 {
		cfg.MaxChunk = 32
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Simulator{
		config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		closed: make(chan struct{}),
	}
}

// Read returns pending bytes in randomly sized chunks. With nothing pending it
// waits one interval, generating a frame if logging, and otherwise times out
// with (0, nil) like a serial read.
func (s *Simulator) Read(buf []byte) (int, error) {
	if n, ok := s.readPending(buf); ok {
		return n, nil
	}

	select {
	case <-s.closed:
		return 0, io.EOF
	case <-time.After(s.config.Interval):
	}

	s.mu.Lock()
	if s.logging {
		s.generateLocked()
	}
	s.mu.Unlock()

	n, _ := s.readPending(buf)
	return n, nil
}

func (s *Simulator) readPending(buf []byte) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return 0, false
	default:
	}

	if len(s.pending) == 0 || len(buf) == 0 {
		return 0, false
	}

	n := 1 + s.rng.Intn(s.config.MaxChunk)
	n = min(n, len(buf), len(s.pending))
	copy(buf, s.pending[:n])
	s.pending = s.pending[n:]
	return n, true
}

// generateLocked appends optional noise and one frame to the pending bytes
func (s *Simulator) generateLocked() {
	for i := 0; i < s.config.Noise; i++ {
		b := byte(s.rng.Intn(256))
		if b == protocol.StartMarkerByte {
			b = 0
		}
		s.pending = append(s.pending, b)
	}

	amp := float64(simPressureAmp)
	if s.heater {
		amp += simHeaterBoost
	}

	var readings [protocol.SampleCount]protocol.Reading
	for i := range readings {
		s.phase += 2 * math.Pi / simSamplesInCycle
		readings[i] = protocol.Reading{
			Pressure:  uint16(simPressureBase + amp*math.Sin(s.phase)),
			VolumeRaw: uint32(simVolumeBase + simVolumeAmp*math.Cos(s.phase)),
		}
	}

	frame := protocol.EncodeFrame(readings)
	s.pending = append(s.pending, frame[:]...)
}

// Write interprets instrument commands; unknown input is accepted and ignored
func (s *Simulator) Write(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return 0, ErrPortClosed
	default:
	}

	cmd := protocol.Command(buf)
	s.commands = append(s.commands, cmd)

	switch cmd {
	case protocol.CmdStartLogging:
		s.logging = true
	case protocol.CmdStopLogging:
		s.logging = false
		s.pending = s.pending[:0]
	case protocol.CmdHeaterOn:
		s.heater = true
	case protocol.CmdHeaterOff:
		s.heater = false
	}

	return len(buf), nil
}

// Close stops the simulator; pending reads return io.EOF
func (s *Simulator) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}

// Commands returns the commands written so far
func (s *Simulator) Commands() []protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// Logging reports whether the simulator is emitting frames
func (s *Simulator) Logging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logging
}

// Heater reports the simulated heater state
func (s *Simulator) Heater() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heater
}
