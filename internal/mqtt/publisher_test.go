package mqtt

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radardeck/internal/posepkt"
)

type fakeToken struct {
	paho.Token
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                     { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	connectErr     error
	publishErr     error
	publishPending bool
	published      []published
	disconnected   bool
}

func (c *fakeClient) Connect() paho.Token { return &fakeToken{err: c.connectErr} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return &fakeToken{err: c.publishErr, pending: c.publishPending}
}

func (c *fakeClient) Disconnect(quiesce uint) { c.disconnected = true }

func TestPublisher_PublishesJSON(t *testing.T) {
	fc := &fakeClient{}
	p, err := newPublisher(Config{Broker: "tcp://x:1883", Topic: "radardeck/pose", QoS: 1}, fc, nil)
	require.NoError(t, err)
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	var observed []error
	p.SetObserver(func(err error) { observed = append(observed, err) })

	p.Publish(posepkt.Measurement{X: 1, Y: 2, Z: 3, StdDev: 0.5, Source: posepkt.SourceRadarDeck})

	require.Len(t, fc.published, 1)
	assert.Equal(t, "radardeck/pose", fc.published[0].topic)
	assert.Equal(t, byte(1), fc.published[0].qos)

	var msg Message
	require.NoError(t, json.Unmarshal(fc.published[0].payload, &msg))
	assert.Equal(t, Message{X: 1, Y: 2, Z: 3, StdDev: 0.5, Source: "radar_deck", TsUnix: 1700000000}, msg)
	assert.Equal(t, []error{nil}, observed)

	p.Close()
	assert.True(t, fc.disconnected)
}

func TestPublisher_NonFiniteValuesPublished(t *testing.T) {
	fc := &fakeClient{}
	p, err := newPublisher(Config{Topic: "t"}, fc, nil)
	require.NoError(t, err)

	var got []error
	p.SetObserver(func(err error) { got = append(got, err) })
	p.Publish(posepkt.Measurement{
		X:      float32(math.NaN()),
		Y:      float32(math.Inf(1)),
		Z:      float32(math.Inf(-1)),
		StdDev: 0.25,
	})

	assert.Equal(t, []error{nil}, got)
	require.Len(t, fc.published, 1)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(fc.published[0].payload, &raw))
	assert.Equal(t, "NaN", raw["x"])
	assert.Equal(t, "+Inf", raw["y"])
	assert.Equal(t, "-Inf", raw["z"])
	assert.Equal(t, 0.25, raw["std_dev"])

	var msg Message
	require.NoError(t, json.Unmarshal(fc.published[0].payload, &msg))
	assert.True(t, math.IsNaN(float64(msg.X)))
	assert.True(t, math.IsInf(float64(msg.Y), 1))
	assert.True(t, math.IsInf(float64(msg.Z), -1))
}

func TestPublisher_TokenErrorReported(t *testing.T) {
	boom := errors.New("not connected")
	fc := &fakeClient{publishErr: boom}
	p, err := newPublisher(Config{Topic: "t"}, fc, nil)
	require.NoError(t, err)

	var got error
	p.SetObserver(func(err error) { got = err })
	p.Publish(posepkt.Measurement{X: 1})

	assert.ErrorIs(t, got, boom)
}

func TestPublisher_PendingTokenReportedQueued(t *testing.T) {
	fc := &fakeClient{publishPending: true}
	p, err := newPublisher(Config{Topic: "t"}, fc, nil)
	require.NoError(t, err)

	var got error
	p.SetObserver(func(err error) { got = err })
	p.Publish(posepkt.Measurement{X: 1})

	assert.ErrorIs(t, got, ErrNotAcked)
	assert.Len(t, fc.published, 1)
}

func TestNewPublisher_ConnectError(t *testing.T) {
	boom := errors.New("refused")
	_, err := newPublisher(Config{Broker: "tcp://x:1883", Topic: "t"}, &fakeClient{connectErr: boom}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestNewPublisher_EmptyTopic(t *testing.T) {
	_, err := newPublisher(Config{}, &fakeClient{}, nil)
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	opts := ClientOptions(Config{Broker: "tcp://broker:1883", ClientID: "deck-1"})
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.Equal(t, "deck-1", opts.ClientID)
	assert.True(t, opts.AutoReconnect)
}
