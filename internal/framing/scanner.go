package framing

import (
	"bytes"
	"fmt"

	"github.com/hadefuwa/stirling-engine/internal/protocol"
)

// ResyncPolicy decides how far the scanner advances after a rejected candidate
type ResyncPolicy int

const (
	// ResyncSkipFrame always consumes the whole 64-byte window after the marker.
	// A genuine frame starting inside a rejected window is lost.
	ResyncSkipFrame ResyncPolicy = iota
	// ResyncNextByte consumes only the marker's first byte after a rejected
	// candidate, so a frame hidden inside the window is still found.
	ResyncNextByte
)

// ParseResyncPolicy converts a configuration value to a policy
func ParseResyncPolicy(s string) (ResyncPolicy, error) {
	switch s {
	case "skip_frame", "":
		return ResyncSkipFrame, nil
	case "next_byte":
		return ResyncNextByte, nil
	default:
		return ResyncSkipFrame, fmt.Errorf("unknown resync policy %q", s)
	}
}

func (p ResyncPolicy) String() string {
	switch p {
	case ResyncSkipFrame:
		return "skip_frame"
	case ResyncNextByte:
		return "next_byte"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// ScanStats counts scanner outcomes over the life of a session
type ScanStats struct {
	Candidates      uint64 `json:"candidates"`
	ValidFrames     uint64 `json:"valid_frames"`
	InvalidTrailers uint64 `json:"invalid_trailers"`
	NoMarkerResets  uint64 `json:"no_marker_resets"`
	ShortTailResets uint64 `json:"short_tail_resets"`
	BytesDropped    uint64 `json:"bytes_dropped"`
}

// Scanner extracts frames from an Accumulator
type Scanner struct {
	policy ResyncPolicy
	stats  ScanStats
}

// NewScanner creates a scanner with the given resync policy
func NewScanner(policy ResyncPolicy) *Scanner {
	return &Scanner{policy: policy}
}

// Scan consumes as many frames as the accumulator holds and returns the ones
// that passed validation, in stream order. It stops when fewer than FrameSize
// bytes remain; the remainder waits for the next chunk.
//
// A buffer with no start marker, or with a marker too close to the end to hold
// a whole frame, is discarded entirely. Partial frames are not carried over.
func (s *Scanner) Scan(acc *Accumulator) []protocol.Frame {
	var frames []protocol.Frame

	for acc.Len() >= protocol.FrameSize {
		buf := acc.Bytes()

		start := bytes.Index(buf, protocol.StartMarker[:])
		if start < 0 {
			s.stats.NoMarkerResets++
			s.stats.BytesDropped += uint64(len(buf))
			acc.Reset()
			break
		}

		end := start + protocol.FrameSize
		if end > len(buf) {
			s.stats.ShortTailResets++
			s.stats.BytesDropped += uint64(len(buf))
			acc.Reset()
			break
		}

		s.stats.Candidates++
		s.stats.BytesDropped += uint64(start)

		if protocol.ValidateFrame(buf[start:end]) {
			frame, _ := protocol.FrameFromBytes(buf[start:end])
			frames = append(frames, frame)
			s.stats.ValidFrames++
			acc.Consume(end)
			continue
		}

		s.stats.InvalidTrailers++
		switch s.policy {
		case ResyncNextByte:
			s.stats.BytesDropped++
			acc.Consume(start + 1)
		default:
			s.stats.BytesDropped += protocol.FrameSize
			acc.Consume(end)
		}
	}

	return frames
}

// Policy returns the scanner's resync policy
func (s *Scanner) Policy() ResyncPolicy {
	return s.policy
}

// Stats returns a copy of the scanner counters
func (s *Scanner) Stats() ScanStats {
	return s.stats
}
