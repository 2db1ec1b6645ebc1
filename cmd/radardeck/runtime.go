package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"radardeck/internal/config"
	"radardeck/internal/metrics"
	"radardeck/internal/mqtt"
	"radardeck/internal/radar"
	"radardeck/internal/replay"
	"radardeck/internal/sim"
	"radardeck/internal/udp"
	"radardeck/internal/web"
)

type mqttSink interface {
	radar.Sink
	SetObserver(fn func(error))
	Close()
}

var dialMQTT = func(cfg mqtt.Config, log *zap.Logger) (mqttSink, error) {
	p, err := mqtt.Dial(cfg, log)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type runtime struct {
	cfg    config.Config
	log    *zap.Logger
	reg    *prometheus.Registry
	status *web.Status
	dec    *radar.Decoder

	svc      *radar.Service
	recorder *replay.Writer
	closers  []func()
}

func newRuntime(cfg config.Config, log *zap.Logger) (*runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rt := &runtime{
		cfg:    cfg,
		log:    log,
		reg:    metrics.NewRegistry(),
		status: web.NewStatus(),
	}
	sinkMetrics := metrics.NewSinkMetrics(rt.reg)

	sinks := radar.MultiSink{radar.LogSink(log.Named("pose"))}
	var names []string

	if cfg.UDP.Enable {
		fwd, err := udp.NewForwarder(cfg.UDP.Dest)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("udp sink: %w", err)
		}
		fwd.SetObserver(observer(log, sinkMetrics, "udp"))
		sinks = append(sinks, fwd)
		names = append(names, "udp")
		rt.closers = append(rt.closers, func() { _ = fwd.Close() })
		log.Info("udp sink enabled", zap.String("dest", cfg.UDP.Dest))
	}

	if cfg.MQTT.Enable {
		p, err := dialMQTT(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      byte(cfg.MQTT.QoS),
		}, log.Named("mqtt"))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("mqtt sink: %w", err)
		}
		p.SetObserver(observer(log, sinkMetrics, "mqtt"))
		sinks = append(sinks, p)
		names = append(names, "mqtt")
		rt.closers = append(rt.closers, p.Close)
	}

	rt.dec = radar.NewDecoder(sinks, log.Named("decoder"))
	if err := metrics.RegisterDecoder(rt.reg, rt.dec); err != nil {
		rt.Close()
		return nil, err
	}

	rt.status.SetStatic(cfg.Source.Kind, names)
	rt.status.SetRadar(rt.dec)

	if cfg.Source.Kind == config.SourceSerial {
		rt.svc = radar.New(radar.Config{
			Enable: true,
			Port: radar.PortConfig{
				Device:      cfg.Serial.Device,
				Baud:        cfg.Serial.Baud,
				Driver:      cfg.Serial.Driver,
				ReadTimeout: cfg.Serial.ReadTimeout,
			},
		}, rt.dec, log.Named("radar"))
		if cfg.Record.Enable {
			w, err := replay.CreateWriter(cfg.Record.Path)
			if err != nil {
				rt.Close()
				return nil, fmt.Errorf("record: %w", err)
			}
			rt.recorder = w
			rt.svc.SetRecorder(w)
			log.Info("recording raw link", zap.String("path", cfg.Record.Path))
		}
		rt.status.SetRadar(rt.svc)
	}

	return rt, nil
}

func observer(log *zap.Logger, m *metrics.SinkMetrics, sink string) func(error) {
	return func(err error) {
		if errors.Is(err, mqtt.ErrNotAcked) {
			m.Record(sink, metrics.ResultQueued)
			return
		}
		m.Observe(sink, err)
		if err != nil {
			log.Debug("sink publish failed", zap.String("sink", sink), zap.Error(err))
		}
	}
}

// Run drives the configured source until ctx is done or, for a
// non-looping replay, the capture is exhausted.
func (rt *runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webErr := make(chan error, 1)
	if rt.cfg.Web.Listen != "" {
		h := web.Handler(rt.status, metrics.Handler(rt.reg))
		go func() {
			webErr <- web.Serve(ctx, rt.cfg.Web.Listen, h)
		}()
		rt.log.Info("web listening", zap.String("addr", rt.cfg.Web.Listen))
	}

	srcErr := make(chan error, 1)
	go func() {
		srcErr <- rt.runSource(ctx)
	}()

	select {
	case err := <-srcErr:
		return err
	case err := <-webErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("web server: %w", err)
		}
		return <-srcErr
	}
}

func (rt *runtime) runSource(ctx context.Context) error {
	switch rt.cfg.Source.Kind {
	case config.SourceSerial:
		if err := rt.svc.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		rt.svc.Close()
		return ctx.Err()

	case config.SourceReplay:
		recs, err := replay.ReadFile(rt.cfg.Replay.Path)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		rt.log.Info("replay started", zap.String("path", rt.cfg.Replay.Path), zap.Int("records", len(recs)), zap.Float64("speed", rt.cfg.Replay.Speed))
		err = replay.Play(ctx, recs, rt.cfg.Replay.Speed, rt.cfg.Replay.Loop, nil, func(chunk []byte) error {
			_, err := rt.dec.Write(chunk)
			return err
		})
		if err == nil {
			rt.log.Info("replay finished", zap.Any("stats", rt.dec.Stats()))
		}
		return err

	case config.SourceSim:
		sc := rt.cfg.Sim
		tx := sim.NewTransmitter(time.Now().UnixNano())
		tx.RadiusM = sc.RadiusM
		tx.AltM = sc.AltM
		tx.Period = sc.Period
		tx.StdDev = sc.StdDev
		tx.NoiseBytes = sc.NoiseBytes
		tx.CorruptEvery = sc.CorruptEvery
		rt.log.Info("simulator started", zap.Float64("rate_hz", sc.Rate))
		return sim.Run(ctx, tx, sc.Rate, rt.dec)

	default:
		return fmt.Errorf("unknown source %q", rt.cfg.Source.Kind)
	}
}

// Close releases sinks and the recorder. It is safe to call more than once.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
	if rt.recorder != nil {
		if err := rt.recorder.Close(); err != nil {
			rt.log.Warn("record close failed", zap.Error(err))
		}
		rt.recorder = nil
	}
}
