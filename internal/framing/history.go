package framing

import (
	"sync"

	"github.com/hadefuwa/stirling-engine/internal/protocol"
)

// DefaultHistoryCapacity is the number of frames retained for inspection
const DefaultHistoryCapacity = 10

// History is a bounded FIFO of the most recent accepted frames. Pushes come from
// the decode loop, snapshots from monitoring, so access is synchronized.
type History struct {
	frames   []protocol.Frame
	capacity int
	mu       sync.RWMutex
}

// NewHistory creates a history; non-positive capacity uses DefaultHistoryCapacity
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		frames:   make([]protocol.Frame, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a frame, evicting the oldest entries beyond capacity.
// It returns the number of frames held afterwards.
func (h *History) Push(f protocol.Frame) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.frames = append(h.frames, f)
	if over := len(h.frames) - h.capacity; over > 0 {
		copy(h.frames, h.frames[over:])
		h.frames = h.frames[:h.capacity]
	}
	return len(h.frames)
}

// Snapshot returns a copy of the held frames, oldest first
func (h *History) Snapshot() []protocol.Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]protocol.Frame, len(h.frames))
	copy(out, h.frames)
	return out
}

// Len returns the number of frames held
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.frames)
}

// Capacity returns the maximum number of frames held
func (h *History) Capacity() int {
	return h.capacity
}
