package stream

import (
	"time"

	"github.com/hadefuwa/stirling-engine/internal/protocol"
)

// Event is the decoded form of one accepted frame as handed to consumers
type Event struct {
	Timestamp    time.Time         `json:"timestamp"`
	Port         string            `json:"port"`
	FullPacket   string            `json:"full_packet"`
	StartBytes   string            `json:"start_bytes"`
	EndBytes     string            `json:"end_bytes"`
	Samples      []protocol.Sample `json:"samples"`
	PacketNumber int               `json:"packet_number"`

	// Sequence counts accepted frames per session. Events dropped by a full
	// dispatch queue still consume a number, so delivered sequences may skip.
	Sequence uint64 `json:"sequence"`
}

// NewEvent builds the event for a frame. packetNumber is the history length
// after the frame was stored, so it never exceeds the history capacity;
// sequence counts every accepted frame of the session.
func NewEvent(port string, f protocol.Frame, packetNumber int, sequence uint64, ts time.Time) Event {
	samples := protocol.DecodeSamples(f)

	return Event{
		Timestamp:    ts,
		Port:         port,
		FullPacket:   f.Hex(),
		StartBytes:   f.StartHex(),
		EndBytes:     f.EndHex(),
		Samples:      samples[:],
		PacketNumber: packetNumber,
		Sequence:     sequence,
	}
}
