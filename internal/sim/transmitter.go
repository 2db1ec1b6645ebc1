package sim

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"radardeck/internal/posepkt"
)

// Transmitter imitates the radar MCU: it emits pose frames for a target
// flying a horizontal circle, optionally surrounded by line noise and with
// some frames deliberately corrupted.
type Transmitter struct {
	RadiusM float64
	AltM    float64
	Period  time.Duration
	StdDev  float64

	// NoiseBytes of junk precede every frame. Junk never contains the sync
	// byte, so it cannot start a false frame.
	NoiseBytes int
	// CorruptEvery flips a payload bit in every Nth frame; 0 disables.
	CorruptEvery int

	rng *rand.Rand
	seq int
}

// NewTransmitter returns a Transmitter whose noise is reproducible for a
// given seed.
func NewTransmitter(seed int64) *Transmitter {
	return &Transmitter{
		RadiusM: 1.5,
		AltM:    1.0,
		Period:  20 * time.Second,
		StdDev:  0.05,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Measurement returns the true pose at now.
func (t *Transmitter) Measurement(now time.Time) posepkt.Measurement {
	period := t.Period
	if period <= 0 {
		period = 20 * time.Second
	}
	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	w := 2 * math.Pi * phase
	return posepkt.Measurement{
		X:      float32(t.RadiusM * math.Cos(w)),
		Y:      float32(t.RadiusM * math.Sin(w)),
		Z:      float32(t.AltM),
		StdDev: float32(t.StdDev),
		Source: posepkt.SourceRadarDeck,
	}
}

// Next returns the bytes transmitted for one frame period.
func (t *Transmitter) Next(now time.Time) []byte {
	t.seq++
	out := make([]byte, 0, t.NoiseBytes+posepkt.FrameLen)
	for i := 0; i < t.NoiseBytes; i++ {
		b := byte(t.rng.Intn(256))
		if b == posepkt.SyncByte {
			b = ^b
		}
		out = append(out, b)
	}

	f := posepkt.Encode(t.Measurement(now))
	if t.CorruptEvery > 0 && t.seq%t.CorruptEvery == 0 {
		i := 1 + t.rng.Intn(posepkt.PayloadLen)
		f[i] ^= 1 << uint(t.rng.Intn(8))
	}
	return append(out, f[:]...)
}

// Run writes one Next() burst to w every 1/rate seconds until ctx is done.
func Run(ctx context.Context, t *Transmitter, rate float64, w io.Writer) error {
	if rate <= 0 {
		return fmt.Errorf("sim rate must be > 0")
	}
	tick := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-tick.C:
			if _, err := w.Write(t.Next(now)); err != nil {
				return err
			}
		}
	}
}
