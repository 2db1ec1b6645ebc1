// Package posepkt implements the radar deck pose packet: an 18 byte frame
// carrying x, y, z and a standard deviation as little-endian float32 values,
// guarded by a Dallas/Maxim CRC-8.
//
// Wire layout:
//
//	0      sync (0xA5)
//	1..4   x
//	5..8   y
//	9..12  z
//	13..16 stdDev
//	17     CRC-8 over bytes 1..16
package posepkt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// SyncByte marks the start of a frame.
	SyncByte byte = 0xA5

	// PayloadLen is the number of payload bytes (four float32 values).
	PayloadLen = 4 * 4

	// FrameLen is the fixed total frame length: sync + payload + checksum.
	FrameLen = 1 + PayloadLen + 1

	payloadStart = 1
	crcIndex     = FrameLen - 1
)

// Frame is one complete candidate packet as received on the wire.
type Frame [FrameLen]byte

// Payload returns the bytes covered by the checksum.
func (f *Frame) Payload() []byte {
	return f[payloadStart:crcIndex]
}

// Checksum returns the trailing checksum byte.
func (f *Frame) Checksum() byte {
	return f[crcIndex]
}

// Source identifies where a Measurement came from, in the terms the
// estimator uses for position sources.
type Source uint8

const (
	SourceUnknown Source = iota
	// SourceRadarDeck tags measurements decoded from the radar deck link.
	SourceRadarDeck
)

func (s Source) String() string {
	switch s {
	case SourceRadarDeck:
		return "radar_deck"
	default:
		return "unknown"
	}
}

// Measurement is a decoded position with its standard deviation.
//
// Values are passed through exactly as transmitted; NaN and Inf are not
// filtered here.
type Measurement struct {
	X      float32 `json:"x"`
	Y      float32 `json:"y"`
	Z      float32 `json:"z"`
	StdDev float32 `json:"std_dev"`
	Source Source  `json:"source"`
}

// ErrChecksumMismatch is matched (via errors.Is) by every *ChecksumError.
var ErrChecksumMismatch = errors.New("posepkt: checksum mismatch")

// ChecksumError reports a frame whose trailing byte disagrees with the CRC
// computed over its payload.
type ChecksumError struct {
	Got  byte
	Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("posepkt: checksum mismatch got=0x%02x want=0x%02x", e.Got, e.Want)
}

func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// Decode validates the frame checksum and, on success, decodes the payload.
// The sync byte is not inspected; the Assembler only emits frames that
// start with it.
func Decode(f Frame) (Measurement, error) {
	want := CRC8(f.Payload())
	if got := f.Checksum(); got != want {
		return Measurement{}, &ChecksumError{Got: got, Want: want}
	}

	p := f.Payload()
	return Measurement{
		X:      float32At(p, 0),
		Y:      float32At(p, 4),
		Z:      float32At(p, 8),
		StdDev: float32At(p, 12),
		Source: SourceRadarDeck,
	}, nil
}

// Encode builds the wire frame for m, including sync byte and checksum.
// m.Source is not transmitted.
func Encode(m Measurement) Frame {
	var f Frame
	f[0] = SyncByte
	p := f[payloadStart:crcIndex]
	putFloat32(p, 0, m.X)
	putFloat32(p, 4, m.Y)
	putFloat32(p, 8, m.Z)
	putFloat32(p, 12, m.StdDev)
	f[crcIndex] = CRC8(p)
	return f
}

func float32At(p []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(p[off : off+4]))
}

func putFloat32(p []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(p[off:off+4], math.Float32bits(v))
}
