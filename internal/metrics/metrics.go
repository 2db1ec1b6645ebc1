// Package metrics exposes decoder counters and the last pose to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"radardeck/internal/radar"
)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// DecoderSource is the read side of a radar.Decoder.
type DecoderSource interface {
	Stats() radar.Stats
	LastPose() radar.Pose
}

// RegisterDecoder exports src's counters and pose. Values are read at
// scrape time, so nothing on the decode path touches Prometheus.
func RegisterDecoder(reg prometheus.Registerer, src DecoderSource) error {
	counter := func(name, help string, get func(radar.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "radardeck",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(src.Stats())) })
	}
	gauge := func(name, help string, get func(radar.Pose) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "radardeck",
			Name:      name,
			Help:      help,
		}, func() float64 { return get(src.LastPose()) })
	}

	cs := []prometheus.Collector{
		counter("bytes_received_total", "Bytes read from the radar link.", func(s radar.Stats) uint64 { return s.BytesIn }),
		counter("bytes_dropped_total", "Bytes discarded while hunting for sync.", func(s radar.Stats) uint64 { return s.BytesDropped }),
		counter("frames_total", "Complete candidate frames assembled.", func(s radar.Stats) uint64 { return s.Frames }),
		counter("measurements_total", "Frames that passed the checksum.", func(s radar.Stats) uint64 { return s.Measurements }),
		counter("checksum_errors_total", "Frames rejected by the checksum.", func(s radar.Stats) uint64 { return s.ChecksumErrors }),
		gauge("pose_valid", "1 once a valid pose has been decoded.", func(p radar.Pose) float64 {
			if p.Valid {
				return 1
			}
			return 0
		}),
		gauge("pose_x_meters", "Last decoded x.", func(p radar.Pose) float64 { return float64(p.X) }),
		gauge("pose_y_meters", "Last decoded y.", func(p radar.Pose) float64 { return float64(p.Y) }),
		gauge("pose_z_meters", "Last decoded z.", func(p radar.Pose) float64 { return float64(p.Z) }),
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Values of the result label on radardeck_sink_publish_total.
const (
	ResultOK     = "ok"
	ResultError  = "error"
	ResultQueued = "queued"
)

// SinkMetrics counts per-sink publish outcomes.
type SinkMetrics struct {
	Published *prometheus.CounterVec // labels: sink, result
}

func NewSinkMetrics(reg prometheus.Registerer) *SinkMetrics {
	m := &SinkMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radardeck",
			Name:      "sink_publish_total",
			Help:      "Measurements forwarded to downstream sinks.",
		}, []string{"sink", "result"}),
	}
	reg.MustRegister(m.Published)
	return m
}

// Observe records one publish attempt. A nil receiver is a no-op.
func (m *SinkMetrics) Observe(sink string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.Record(sink, result)
}

// Record counts one publish attempt with an explicit result label.
func (m *SinkMetrics) Record(sink, result string) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(sink, result).Inc()
}
