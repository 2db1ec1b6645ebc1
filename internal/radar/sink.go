package radar

import (
	"go.uber.org/zap"

	"radardeck/internal/posepkt"
)

// Sink receives every validated measurement. Publish is fire-and-forget and
// is called on the decoding goroutine, so implementations must not block
// for long.
type Sink interface {
	Publish(m posepkt.Measurement)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(m posepkt.Measurement)

func (f SinkFunc) Publish(m posepkt.Measurement) { f(m) }

// MultiSink fans out to each sink in order. Nil entries are skipped.
type MultiSink []Sink

func (ms MultiSink) Publish(m posepkt.Measurement) {
	for _, s := range ms {
		if s != nil {
			s.Publish(m)
		}
	}
}

// LogSink writes each measurement at debug level.
func LogSink(log *zap.Logger) Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return SinkFunc(func(m posepkt.Measurement) {
		log.Debug("pose",
			zap.Float32("x", m.X),
			zap.Float32("y", m.Y),
			zap.Float32("z", m.Z),
			zap.Float32("std_dev", m.StdDev),
			zap.Stringer("source", m.Source),
		)
	})
}
