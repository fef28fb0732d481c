package framing

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadefuwa/stirling-engine/internal/protocol"
)

// testFrame builds a valid frame whose first sample carries the given pressure
func testFrame(pressure uint16) protocol.Frame {
	var readings [protocol.SampleCount]protocol.Reading
	readings[0].Pressure = pressure
	return protocol.EncodeFrame(readings)
}

func repeat(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func TestAccumulatorAppendConsume(t *testing.T) {
	acc := NewAccumulator(DefaultCeiling)

	acc.Append([]byte{1, 2, 3})
	acc.Append([]byte{4, 5})
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, acc.Bytes())

	acc.Consume(2)
	assert.Equal(t, []byte{3, 4, 5}, acc.Bytes())

	acc.Consume(0)
	assert.Equal(t, 3, acc.Len())

	acc.Consume(10)
	assert.Equal(t, 0, acc.Len())
}

func TestAccumulatorOverflowReset(t *testing.T) {
	acc := NewAccumulator(128)

	assert.False(t, acc.Append(repeat(0x01, 100)))
	// At 100 bytes the buffer is under the ceiling, so nothing is dropped yet
	assert.False(t, acc.Append(repeat(0x02, 100)))
	assert.Equal(t, 200, acc.Len())

	// Over the ceiling before appending: reset to empty, not trimmed
	assert.True(t, acc.Append([]byte{0x03}))
	assert.Equal(t, []byte{0x03}, acc.Bytes())
	assert.Equal(t, uint64(1), acc.OverflowResets())
	assert.Equal(t, uint64(200), acc.BytesDiscarded())
}

func TestAccumulatorCeilingAtBoundary(t *testing.T) {
	acc := NewAccumulator(128)

	acc.Append(repeat(0x01, 128))
	// Exactly at the ceiling is not over it
	assert.False(t, acc.Append([]byte{0x02}))
	assert.Equal(t, 129, acc.Len())
}

func TestAccumulatorDefaultCeiling(t *testing.T) {
	assert.Equal(t, DefaultCeiling, NewAccumulator(0).Ceiling())
	assert.Equal(t, 256, NewAccumulator(256).Ceiling())
}

func TestScanMarkerExtraction(t *testing.T) {
	frame := testFrame(1234)
	garbage := repeat(0x01, 10)
	garbage2 := repeat(0x02, 20)

	acc := NewAccumulator(DefaultCeiling)
	acc.Append(garbage)
	acc.Append(frame[:])
	acc.Append(garbage2)

	scanner := NewScanner(ResyncSkipFrame)
	frames := scanner.Scan(acc)

	require.Len(t, frames, 1)
	assert.Equal(t, frame, frames[0])
	assert.Equal(t, protocol.DecodeSamples(frame), protocol.DecodeSamples(frames[0]))

	// Only the trailing garbage remains, shorter than a frame
	assert.Equal(t, garbage2, acc.Bytes())

	stats := scanner.Stats()
	assert.Equal(t, uint64(1), stats.Candidates)
	assert.Equal(t, uint64(1), stats.ValidFrames)
	assert.Equal(t, uint64(len(garbage)), stats.BytesDropped)
}

func TestScanInvalidTrailerAdvances(t *testing.T) {
	frame := testFrame(1)
	frame[62], frame[63] = 0x00, 0x00

	acc := NewAccumulator(DefaultCeiling)
	acc.Append(frame[:])

	scanner := NewScanner(ResyncSkipFrame)
	frames := scanner.Scan(acc)

	assert.Empty(t, frames)
	assert.Equal(t, 0, acc.Len())

	stats := scanner.Stats()
	assert.Equal(t, uint64(1), stats.Candidates)
	assert.Equal(t, uint64(1), stats.InvalidTrailers)
	assert.Equal(t, uint64(0), stats.ValidFrames)
}

func TestScanNoMarkerResets(t *testing.T) {
	acc := NewAccumulator(DefaultCeiling)
	acc.Append(repeat(0x00, 80))

	scanner := NewScanner(ResyncSkipFrame)
	assert.Empty(t, scanner.Scan(acc))
	assert.Equal(t, 0, acc.Len())
	assert.Equal(t, uint64(1), scanner.Stats().NoMarkerResets)
	assert.Equal(t, uint64(80), scanner.Stats().BytesDropped)
}

func TestScanShortTailResets(t *testing.T) {
	frame := testFrame(7)

	acc := NewAccumulator(DefaultCeiling)
	acc.Append(repeat(0x00, 20))
	// Marker at offset 20 but only 50 bytes follow it
	acc.Append(frame[:50])

	scanner := NewScanner(ResyncSkipFrame)
	assert.Empty(t, scanner.Scan(acc))
	assert.Equal(t, 0, acc.Len(), "partial frames are dropped, not carried over")
	assert.Equal(t, uint64(1), scanner.Stats().ShortTailResets)
}

func TestScanWaitsBelowFrameSize(t *testing.T) {
	frame := testFrame(7)

	acc := NewAccumulator(DefaultCeiling)
	acc.Append(frame[:63])

	scanner := NewScanner(ResyncSkipFrame)
	assert.Empty(t, scanner.Scan(acc))
	assert.Equal(t, 63, acc.Len())

	acc.Append(frame[63:])
	frames := scanner.Scan(acc)
	require.Len(t, frames, 1)
	assert.Equal(t, frame, frames[0])
}

func TestScanThreeChunkAssembly(t *testing.T) {
	chunk2 := make([]byte, 0, 62)
	chunk2 = append(chunk2, 0x55)
	sampleBytes := make([]byte, 60)
	sampleBytes[1] = 0x0A // sample 1 pressureLo
	chunk2 = append(chunk2, sampleBytes...)
	chunk2 = append(chunk2, 0xAA)

	acc := NewAccumulator(DefaultCeiling)
	scanner := NewScanner(ResyncSkipFrame)

	acc.Append([]byte{0x55})
	assert.Empty(t, scanner.Scan(acc))
	acc.Append(chunk2)
	assert.Empty(t, scanner.Scan(acc))
	acc.Append([]byte{0xAA})
	frames := scanner.Scan(acc)

	require.Len(t, frames, 1)
	assert.Equal(t, "10.00", protocol.DecodeSamples(frames[0])[0].PressureString())
}

func TestScanConsecutiveFrames(t *testing.T) {
	acc := NewAccumulator(256)
	for i := 0; i < 3; i++ {
		f := testFrame(uint16(i))
		acc.Append(f[:])
	}

	frames := NewScanner(ResyncSkipFrame).Scan(acc)
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, uint16(i), protocol.DecodeSamples(f)[0].Pressure)
	}
	assert.Equal(t, 0, acc.Len())
}

// hiddenFrameStream returns a rejected 64-byte window that starts with a marker
// and contains a genuine frame starting at offset 10
func hiddenFrameStream() ([]byte, protocol.Frame) {
	frame := testFrame(4321)
	stream := []byte{0x55, 0x55}
	stream = append(stream, repeat(0x01, 8)...)
	stream = append(stream, frame[:]...)
	return stream, frame
}

func TestScanSkipFrameLosesHiddenFrame(t *testing.T) {
	stream, _ := hiddenFrameStream()

	acc := NewAccumulator(DefaultCeiling)
	acc.Append(stream)

	scanner := NewScanner(ResyncSkipFrame)
	assert.Empty(t, scanner.Scan(acc))
	assert.Equal(t, uint64(1), scanner.Stats().InvalidTrailers)
	assert.Equal(t, len(stream)-protocol.FrameSize, acc.Len())
}

func TestScanNextByteRecoversHiddenFrame(t *testing.T) {
	stream, frame := hiddenFrameStream()

	acc := NewAccumulator(DefaultCeiling)
	acc.Append(stream)

	scanner := NewScanner(ResyncNextByte)
	frames := scanner.Scan(acc)

	require.Len(t, frames, 1)
	assert.Equal(t, frame, frames[0])
	assert.Equal(t, 0, acc.Len())
	assert.Equal(t, uint64(1), scanner.Stats().InvalidTrailers)
}

func TestScanBoundedMemory(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	acc := NewAccumulator(DefaultCeiling)
	scanner := NewScanner(ResyncSkipFrame)

	valid := 0
	for i := 0; i < 2000; i++ {
		var chunk []byte
		switch rng.Intn(3) {
		case 0:
			f := testFrame(uint16(i))
			chunk = f[:]
		case 1:
			chunk = make([]byte, rng.Intn(100))
			rng.Read(chunk)
		default:
			f := testFrame(uint16(i))
			cut := rng.Intn(protocol.FrameSize)
			chunk = f[:cut]
		}

		require.LessOrEqual(t, acc.Len(), acc.Ceiling(), "buffer over ceiling at start of cycle")
		acc.Append(chunk)
		valid += len(scanner.Scan(acc))
		require.Less(t, acc.Len(), protocol.FrameSize)
	}

	assert.Positive(t, valid)
	assert.Equal(t, uint64(valid), scanner.Stats().ValidFrames)
}

func TestParseResyncPolicy(t *testing.T) {
	tests := []struct {
		input       string
		expected    ResyncPolicy
		expectError bool
	}{
		{input: "skip_frame", expected: ResyncSkipFrame},
		{input: "", expected: ResyncSkipFrame},
		{input: "next_byte", expected: ResyncNextByte},
		{input: "retry", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParseResyncPolicy(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}

	assert.Equal(t, "next_byte", ResyncNextByte.String())
	assert.Equal(t, "skip_frame", ResyncSkipFrame.String())
}

func TestHistoryBound(t *testing.T) {
	h := NewHistory(DefaultHistoryCapacity)

	pushed := make([]protocol.Frame, 0, 25)
	for i := 0; i < 25; i++ {
		f := testFrame(uint16(i))
		pushed = append(pushed, f)
		n := h.Push(f)
		if i < DefaultHistoryCapacity {
			assert.Equal(t, i+1, n)
		} else {
			assert.Equal(t, DefaultHistoryCapacity, n)
		}
	}

	snap := h.Snapshot()
	require.Len(t, snap, DefaultHistoryCapacity)
	assert.Equal(t, pushed[len(pushed)-DefaultHistoryCapacity:], snap)
}

func TestHistorySnapshotIsCopy(t *testing.T) {
	h := NewHistory(2)
	h.Push(testFrame(1))

	snap := h.Snapshot()
	snap[0][2] = 0xFF

	assert.Equal(t, testFrame(1), h.Snapshot()[0])
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 2, h.Capacity())

	h.Reset()
	assert.Equal(t, 0, h.Len())
}
