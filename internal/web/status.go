package web

import (
	"sync/atomic"
	"time"

	"radardeck/internal/radar"
)

// RadarSource is anything that can report the radar link state; both
// *radar.Service and *radar.Decoder qualify.
type RadarSource interface {
	Snapshot() radar.Snapshot
}

type Status struct {
	startUnixNano int64
	source        atomic.Value // string
	sinks         atomic.Value // []string
	radar         atomic.Value // radarHolder
}

type radarHolder struct {
	src RadarSource
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.source.Store("")
	s.sinks.Store([]string{})
	s.radar.Store(radarHolder{})
	return s
}

// SetStatic records how the process was configured.
func (s *Status) SetStatic(source string, sinks []string) {
	if source != "" {
		s.source.Store(source)
	}
	if sinks != nil {
		s.sinks.Store(append([]string(nil), sinks...))
	}
}

func (s *Status) SetRadar(src RadarSource) {
	s.radar.Store(radarHolder{src: src})
}

type StatusSnapshot struct {
	Service   string         `json:"service"`
	NowUTC    string         `json:"now_utc"`
	UptimeSec int64          `json:"uptime_sec"`
	Source    string         `json:"source"`
	Sinks     []string       `json:"sinks"`
	Radar     radar.Snapshot `json:"radar"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "radardeck",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Source:    s.source.Load().(string),
		Sinks:     s.sinks.Load().([]string),
	}
	if h := s.radar.Load().(radarHolder); h.src != nil {
		snap.Radar = h.src.Snapshot()
	}
	return snap
}
