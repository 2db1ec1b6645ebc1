// Package mqtt publishes decoded measurements to an MQTT broker as JSON.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"radardeck/internal/posepkt"
)

// Config selects the broker and topic.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
}

// Message is the JSON document published per measurement. Non-finite
// values are sent as "NaN", "+Inf" or "-Inf".
type Message struct {
	X      posepkt.JSONFloat `json:"x"`
	Y      posepkt.JSONFloat `json:"y"`
	Z      posepkt.JSONFloat `json:"z"`
	StdDev posepkt.JSONFloat `json:"std_dev"`
	Source string            `json:"source"`
	TsUnix float64           `json:"ts"`
}

// ErrNotAcked is reported to the observer when a publish was handed to the
// client but had not completed yet, e.g. while it is reconnecting.
var ErrNotAcked = errors.New("mqtt: publish queued")

// client is the subset of paho.Client used here.
type client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher is a radar.Sink backed by an MQTT connection. Publish does not
// wait for the broker acknowledgement; a publish that has not completed by
// the time Publish returns is reported as ErrNotAcked.
type Publisher struct {
	cfg     Config
	client  client
	log     *zap.Logger
	now     func() time.Time
	observe func(error)
}

// ClientOptions builds paho options for cfg. Auto-reconnect is on so a
// broker restart does not need a process restart.
func ClientOptions(cfg Config) *paho.ClientOptions {
	return paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second).
		SetKeepAlive(30 * time.Second)
}

// Dial connects to the broker and returns a ready Publisher.
func Dial(cfg Config, log *zap.Logger) (*Publisher, error) {
	return newPublisher(cfg, paho.NewClient(ClientOptions(cfg)), log)
}

func newPublisher(cfg Config, c client, log *zap.Logger) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt topic is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	token := c.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	log.Info("mqtt connected", zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic))
	return &Publisher{cfg: cfg, client: c, log: log, now: time.Now}, nil
}

// SetObserver installs a callback for publish outcomes.
func (p *Publisher) SetObserver(fn func(error)) {
	p.observe = fn
}

func (p *Publisher) Publish(m posepkt.Measurement) {
	err := p.publish(m)
	if err != nil && !errors.Is(err, ErrNotAcked) {
		p.log.Debug("mqtt publish failed", zap.Error(err))
	}
	if p.observe != nil {
		p.observe(err)
	}
}

func (p *Publisher) publish(m posepkt.Measurement) error {
	payload, err := json.Marshal(messageFor(m, p.now()))
	if err != nil {
		return fmt.Errorf("encode measurement: %w", err)
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, false, payload)
	if !token.WaitTimeout(0) {
		return ErrNotAcked
	}
	return token.Error()
}

func messageFor(m posepkt.Measurement, now time.Time) Message {
	return Message{
		X:      posepkt.JSONFloat(m.X),
		Y:      posepkt.JSONFloat(m.Y),
		Z:      posepkt.JSONFloat(m.Z),
		StdDev: posepkt.JSONFloat(m.StdDev),
		Source: m.Source.String(),
		TsUnix: float64(now.UnixNano()) / 1e9,
	}
}

// Close disconnects, giving in-flight messages 250ms to drain.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
