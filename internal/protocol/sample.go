package protocol

import (
	"encoding/json"
	"fmt"
)

// Sample is one decoded 6-byte sample record
// Layout: [PressureHi:1][PressureLo:1][Volume:4 little-endian]
type Sample struct {
	Number      int     // 1-based position within the frame
	PressureHi  byte    // First pressure byte on the wire
	PressureLo  byte    // Second pressure byte on the wire
	VolumeBytes [4]byte // Volume counter bytes in wire order
	Pressure    uint16  // PressureHi*256 + PressureLo
	VolumeRaw   uint32  // Little-endian volume counter
}

// DecodeSamples decodes the ten sample records of a frame. It never fails;
// the caller guarantees the frame passed validation.
func DecodeSamples(f Frame) [SampleCount]Sample {
	var samples [SampleCount]Sample
	for i := range samples {
		samples[i] = decodeSample(f, i)
	}
	return samples
}

func decodeSample(f Frame, index int) Sample {
	base := SamplesOffset + index*SampleSize

	s := Sample{
		Number:     index + 1,
		PressureHi: f[base],
		PressureLo: f[base+1],
	}
	copy(s.VolumeBytes[:], f[base+2:base+SampleSize])

	s.Pressure = uint16(s.PressureLo) + uint16(s.PressureHi)*256
	s.VolumeRaw = uint32(s.VolumeBytes[0]) |
		uint32(s.VolumeBytes[1])<<8 |
		uint32(s.VolumeBytes[2])<<16 |
		uint32(s.VolumeBytes[3])<<24

	return s
}

// Volume returns the volume in engineering units (raw / 1000)
func (s Sample) Volume() float64 {
	return float64(s.VolumeRaw) / VolumeScale
}

// PressureString renders pressure with two decimals. The value is integral,
// the fixed format is what downstream consumers parse.
func (s Sample) PressureString() string {
	return fmt.Sprintf("%d.00", s.Pressure)
}

// VolumeString renders the volume with three decimals using integer math,
// so every raw counter value maps to exactly one string.
func (s Sample) VolumeString() string {
	return fmt.Sprintf("%d.%03d", s.VolumeRaw/VolumeScale, s.VolumeRaw%VolumeScale)
}

// String returns a human-readable representation of the sample
func (s Sample) String() string {
	return fmt.Sprintf("Sample{Number:%d, Pressure:%s, Volume:%s}",
		s.Number, s.PressureString(), s.VolumeString())
}

// sampleJSON is the wire shape consumed by the visualization layer
type sampleJSON struct {
	SampleNumber  int     `json:"sample_number"`
	PressureByte1 byte    `json:"pressure_byte1"`
	PressureByte2 byte    `json:"pressure_byte2"`
	Pressure      string  `json:"pressure"`
	VolumeBytes   [4]byte `json:"volume_bytes"`
	Volume        string  `json:"volume"`
}

// MarshalJSON renders the sample with formatted pressure and volume strings
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleJSON{
		SampleNumber:  s.Number,
		PressureByte1: s.PressureHi,
		PressureByte2: s.PressureLo,
		Pressure:      s.PressureString(),
		VolumeBytes:   s.VolumeBytes,
		Volume:        s.VolumeString(),
	})
}
