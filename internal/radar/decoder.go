package radar

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"radardeck/internal/posepkt"
)

// Pose is the last successfully decoded position. Valid stays false until
// the first frame passes its checksum.
type Pose struct {
	Valid     bool      `json:"valid"`
	X         float32   `json:"x"`
	Y         float32   `json:"y"`
	Z         float32   `json:"z"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// MarshalJSON keeps NaN and ±Inf coordinates encodable; see posepkt.JSONFloat.
func (p Pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Valid     bool              `json:"valid"`
		X         posepkt.JSONFloat `json:"x"`
		Y         posepkt.JSONFloat `json:"y"`
		Z         posepkt.JSONFloat `json:"z"`
		UpdatedAt time.Time         `json:"updated_at,omitempty"`
	}{p.Valid, posepkt.JSONFloat(p.X), posepkt.JSONFloat(p.Y), posepkt.JSONFloat(p.Z), p.UpdatedAt})
}

// Stats are running counters since the Decoder was created.
type Stats struct {
	BytesIn        uint64 `json:"bytes_in"`
	BytesDropped   uint64 `json:"bytes_dropped"`
	Frames         uint64 `json:"frames"`
	Measurements   uint64 `json:"measurements"`
	ChecksumErrors uint64 `json:"checksum_errors"`
}

// Decoder feeds bytes through a posepkt.Assembler, validates completed
// frames and publishes the resulting measurements.
//
// Feed and Write must be called from a single goroutine. LastPose and Stats
// may be called concurrently with them.
type Decoder struct {
	asm  posepkt.Assembler
	sink Sink
	log  *zap.Logger
	now  func() time.Time

	last atomic.Value // Pose

	bytesIn        atomic.Uint64
	bytesDropped   atomic.Uint64
	frames         atomic.Uint64
	measurements   atomic.Uint64
	checksumErrors atomic.Uint64
}

// NewDecoder returns a Decoder publishing to sink. Either argument may be nil.
func NewDecoder(sink Sink, log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Decoder{sink: sink, log: log, now: time.Now}
	d.last.Store(Pose{})
	return d
}

// Feed consumes one byte. When b completes a frame that validates, the
// measurement is published and returned with true.
func (d *Decoder) Feed(b byte) (posepkt.Measurement, bool) {
	d.bytesIn.Add(1)
	if d.asm.Pending() == 0 && b != posepkt.SyncByte {
		d.bytesDropped.Add(1)
		return posepkt.Measurement{}, false
	}

	f, ok := d.asm.Feed(b)
	if !ok {
		return posepkt.Measurement{}, false
	}
	d.frames.Add(1)

	m, err := posepkt.Decode(f)
	if err != nil {
		d.checksumErrors.Add(1)
		var ce *posepkt.ChecksumError
		if errors.As(err, &ce) {
			d.log.Debug("frame dropped", zap.Uint8("crc_got", ce.Got), zap.Uint8("crc_want", ce.Want))
		}
		return posepkt.Measurement{}, false
	}

	d.measurements.Add(1)
	d.last.Store(Pose{Valid: true, X: m.X, Y: m.Y, Z: m.Z, UpdatedAt: d.now().UTC()})
	if d.sink != nil {
		d.sink.Publish(m)
	}
	return m, true
}

// Write feeds every byte of p in order. It never fails, which lets a Decoder
// sit at the end of io.Copy or an io.MultiWriter.
func (d *Decoder) Write(p []byte) (int, error) {
	for _, b := range p {
		d.Feed(b)
	}
	return len(p), nil
}

// LastPose returns a copy of the most recent valid pose.
func (d *Decoder) LastPose() Pose {
	v := d.last.Load()
	if v == nil {
		return Pose{}
	}
	return v.(Pose)
}

func (d *Decoder) Stats() Stats {
	return Stats{
		BytesIn:        d.bytesIn.Load(),
		BytesDropped:   d.bytesDropped.Load(),
		Frames:         d.frames.Load(),
		Measurements:   d.measurements.Load(),
		ChecksumErrors: d.checksumErrors.Load(),
	}
}

// Snapshot reports the decoder alone, for sources without a serial link
// (replay, simulator).
func (d *Decoder) Snapshot() Snapshot {
	return Snapshot{
		Enabled:   true,
		Connected: true,
		Pose:      d.LastPose(),
		Stats:     d.Stats(),
	}
}
