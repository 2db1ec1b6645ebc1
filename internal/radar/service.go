package radar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls the serial ingest service.
type Config struct {
	Enable bool
	Port   PortConfig
}

// Recorder receives every chunk read from the port, before decoding.
type Recorder interface {
	Write(p []byte) (int, error)
}

// Snapshot is the status view of the service, safe to marshal as JSON.
type Snapshot struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Device    string `json:"device,omitempty"`
	Baud      int    `json:"baud,omitempty"`
	Driver    string `json:"driver,omitempty"`
	Pose      Pose   `json:"pose"`
	Stats     Stats  `json:"stats"`
	LastError string `json:"last_error,omitempty"`
}

type linkState struct {
	connected bool
	device    string
	lastError string
}

// Service reads the radar deck serial port in the background and feeds a
// Decoder. It reopens the port with backoff when reads fail.
type Service struct {
	cfg Config
	dec *Decoder
	log *zap.Logger
	rec Recorder

	cancel context.CancelFunc
	wg     sync.WaitGroup

	state atomic.Value // linkState

	mu     sync.Mutex
	closer io.Closer
}

func New(cfg Config, dec *Decoder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Port.Baud == 0 {
		cfg.Port.Baud = DefaultBaud
	}
	if dec == nil {
		dec = NewDecoder(nil, log)
	}
	s := &Service{cfg: cfg, dec: dec, log: log}
	s.state.Store(linkState{device: strings.TrimSpace(cfg.Port.Device)})
	return s
}

// SetRecorder installs a raw-byte recorder. It must be called before Start.
func (s *Service) SetRecorder(r Recorder) {
	s.rec = r
}

// Decoder returns the decoder fed by this service.
func (s *Service) Decoder() *Decoder {
	return s.dec
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("radar service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
	return nil
}

func (s *Service) run(ctx context.Context) {
	backoff := 250 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.setError(err.Error())
			s.log.Warn("radar link down", zap.Error(err), zap.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// session opens the port and pumps it until the first read error.
func (s *Service) session(ctx context.Context) error {
	pc := s.cfg.Port
	pc.Device = strings.TrimSpace(pc.Device)
	if pc.Device == "" {
		pc.Device = autoDetectDevice()
		if pc.Device == "" {
			return fmt.Errorf("radar auto-detect failed: no serial device found")
		}
	}

	port, err := openPortFn(pc)
	if err != nil {
		return fmt.Errorf("radar open failed device=%s baud=%d: %w", pc.Device, pc.Baud, err)
	}

	s.mu.Lock()
	s.closer = port
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.closer = nil
		s.mu.Unlock()
		_ = port.Close()
	}()

	s.state.Store(linkState{connected: true, device: pc.Device})
	s.log.Info("radar link up", zap.String("device", pc.Device), zap.Int("baud", pc.Baud))

	w := io.Writer(s.dec)
	if s.rec != nil {
		w = &recordingWriter{dec: s.dec, rec: s.rec, log: s.log}
	}
	err = Pump(ctx, port, w)
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("radar read stopped: %w", err)
	}
	return err
}

// Pump copies r into w one read at a time until ctx is done or r fails.
// Zero-length reads (port read timeouts) are not errors.
func Pump(ctx context.Context, r io.Reader, w io.Writer) error {
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}

// recordingWriter tees chunks into the recorder. Recording failures are
// logged once and recording stops; decoding carries on.
type recordingWriter struct {
	dec *Decoder
	rec Recorder
	log *zap.Logger
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.rec != nil {
		if _, err := w.rec.Write(p); err != nil {
			w.log.Warn("radar recording stopped", zap.Error(err))
			w.rec = nil
		}
	}
	return w.dec.Write(p)
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		// Unblocks a pending read.
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	st, _ := s.state.Load().(linkState)
	return Snapshot{
		Enabled:   s.cfg.Enable,
		Connected: st.connected,
		Device:    st.device,
		Baud:      s.cfg.Port.Baud,
		Driver:    s.cfg.Port.Driver,
		Pose:      s.dec.LastPose(),
		Stats:     s.dec.Stats(),
		LastError: st.lastError,
	}
}

func (s *Service) setError(msg string) {
	cur, _ := s.state.Load().(linkState)
	cur.connected = false
	cur.lastError = msg
	s.state.Store(cur)
}
