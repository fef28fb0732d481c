package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Wire format constants
const (
	// Frame structure sizes
	FrameSize   = 64 // 2 + 10*6 + 2 bytes
	MarkerSize  = 2
	SampleCount = 10
	SampleSize  = 6 // 2 pressure bytes + 4 volume bytes

	// Offsets within a frame
	SamplesOffset   = MarkerSize
	EndMarkerOffset = FrameSize - MarkerSize

	StartMarkerByte = 0x55
	EndMarkerByte   = 0xAA

	// VolumeScale converts the raw volume counter to engineering units
	VolumeScale = 1000
)

var (
	// StartMarker opens every frame
	StartMarker = [MarkerSize]byte{StartMarkerByte, StartMarkerByte}
	// EndMarker closes every frame
	EndMarker = [MarkerSize]byte{EndMarkerByte, EndMarkerByte}
)

// Frame is one complete 64-byte wire frame
// Layout: [0x55 0x55][Sample:6 x 10][0xAA 0xAA]
type Frame [FrameSize]byte

// FrameFromBytes copies exactly FrameSize bytes into a Frame
func FrameFromBytes(data []byte) (Frame, error) {
	var f Frame
	if len(data) != FrameSize {
		return f, fmt.Errorf("frame size mismatch: expected %d bytes, got %d", FrameSize, len(data))
	}
	copy(f[:], data)
	return f, nil
}

// ValidateFrame reports whether data is a well-formed frame: exactly FrameSize bytes
// bounded by the start and end markers. The protocol carries no checksum.
func ValidateFrame(data []byte) bool {
	if len(data) != FrameSize {
		return false
	}
	return HasStartMarker(data) && HasEndMarker(data)
}

// HasStartMarker checks the first two bytes of data
func HasStartMarker(data []byte) bool {
	return len(data) >= MarkerSize &&
		data[0] == StartMarkerByte && data[1] == StartMarkerByte
}

// HasEndMarker checks the trailer of a FrameSize window
func HasEndMarker(data []byte) bool {
	return len(data) >= FrameSize &&
		data[EndMarkerOffset] == EndMarkerByte && data[EndMarkerOffset+1] == EndMarkerByte
}

// Valid reports whether both markers match
func (f Frame) Valid() bool {
	return ValidateFrame(f[:])
}

// Hex returns the frame as space separated lowercase hex pairs
func (f Frame) Hex() string {
	var out [FrameSize*3 - 1]byte
	for i := range f {
		pos := i * 3
		hex.Encode(out[pos:pos+2], f[i:i+1])
		if i > 0 {
			out[pos-1] = ' '
		}
	}
	return string(out[:])
}

// StartHex returns the start marker bytes as hex
func (f Frame) StartHex() string {
	return hex.EncodeToString(f[:MarkerSize])
}

// EndHex returns the end marker bytes as hex
func (f Frame) EndHex() string {
	return hex.EncodeToString(f[EndMarkerOffset:])
}

// String returns a human-readable representation of the frame
func (f Frame) String() string {
	return fmt.Sprintf("Frame{Start:%s, End:%s, Valid:%t}", f.StartHex(), f.EndHex(), f.Valid())
}

// Reading is the raw value pair carried by one sample record
type Reading struct {
	Pressure  uint16
	VolumeRaw uint32
}

// EncodeFrame builds a valid frame from ten readings. Pressure is written
// big-endian and the volume counter little-endian, mirroring DecodeSamples.
func EncodeFrame(readings [SampleCount]Reading) Frame {
	var f Frame
	copy(f[:MarkerSize], StartMarker[:])
	for i, r := range readings {
		base := SamplesOffset + i*SampleSize
		binary.BigEndian.PutUint16(f[base:base+2], r.Pressure)
		binary.LittleEndian.PutUint32(f[base+2:base+SampleSize], r.VolumeRaw)
	}
	copy(f[EndMarkerOffset:], EndMarker[:])
	return f
}
