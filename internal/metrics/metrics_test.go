package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radardeck/internal/posepkt"
	"radardeck/internal/radar"
)

func TestRegisterDecoder_ReadsAtScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	dec := radar.NewDecoder(nil, nil)
	require.NoError(t, RegisterDecoder(reg, dec))

	f := posepkt.Encode(posepkt.Measurement{X: 1, Y: 2, Z: 3, StdDev: 1})
	_, _ = dec.Write([]byte{0x00, 0x01})
	_, _ = dec.Write(f[:])

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range mfs {
		m := mf.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			got[mf.GetName()] = m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			got[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(20), got["radardeck_bytes_received_total"])
	assert.Equal(t, float64(2), got["radardeck_bytes_dropped_total"])
	assert.Equal(t, float64(1), got["radardeck_measurements_total"])
	assert.Equal(t, float64(1), got["radardeck_pose_valid"])
	assert.Equal(t, float64(3), got["radardeck_pose_z_meters"])
}

func TestRegisterDecoder_DuplicateFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	dec := radar.NewDecoder(nil, nil)
	require.NoError(t, RegisterDecoder(reg, dec))
	assert.Error(t, RegisterDecoder(reg, dec))
}

func TestSinkMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSinkMetrics(reg)
	m.Observe("udp", nil)
	m.Observe("udp", errors.New("boom"))
	m.Observe("udp", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Published.WithLabelValues("udp", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Published.WithLabelValues("udp", "error")))

	var nilMetrics *SinkMetrics
	nilMetrics.Observe("udp", nil)
	nilMetrics.Record("udp", ResultQueued)
}

func TestSinkMetrics_RecordQueued(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSinkMetrics(reg)
	m.Record("mqtt", ResultQueued)
	m.Record("mqtt", ResultQueued)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Published.WithLabelValues("mqtt", ResultQueued)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Published.WithLabelValues("mqtt", ResultOK)))
}

func TestHandler_ServesText(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterDecoder(reg, radar.NewDecoder(nil, nil)))

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "radardeck_frames_total")
	assert.Contains(t, string(body), "go_goroutines")
}
