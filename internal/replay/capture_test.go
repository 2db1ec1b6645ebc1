package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"radardeck/internal/posepkt"
	"radardeck/internal/radar"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	fs.slept = append(fs.slept, d)
	return nil
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0, a501
10, 0a 0b
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Data != nil {
		t.Fatalf("expected START marker (nil data), got %v", recs[0].Data)
	}
	if !reflect.DeepEqual(recs[1].Data, []byte{0xa5, 0x01}) {
		t.Fatalf("unexpected chunk 1: %x", recs[1].Data)
	}
	if recs[2].At != 10*time.Nanosecond {
		t.Fatalf("expected At=10ns, got %s", recs[2].At)
	}
	if !reflect.DeepEqual(recs[2].Data, []byte{0x0a, 0x0b}) {
		t.Fatalf("unexpected chunk 2: %x", recs[2].Data)
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	cases := []struct {
		in      string
		wantMsg string
	}{
		{"not-a-valid-line\n", "want <t_ns>,<hex>"},
		{",00\n", "chunk offset"},
		{"x,00\n", "chunk offset"},
		{"-1,00\n", "chunk offset -1 is before START"},
		{"5,zz\n", "chunk bytes"},
		{"5,\n", "chunk has no bytes"},
	}
	for _, tc := range cases {
		_, err := NewReader(strings.NewReader("# header\nSTART\n" + tc.in)).ReadAll()
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Fatalf("%q: err=%v want *SyntaxError", tc.in, err)
		}
		if se.Line != 3 || se.Msg != tc.wantMsg {
			t.Fatalf("%q: line=%d msg=%q want line=3 msg=%q", tc.in, se.Line, se.Msg, tc.wantMsg)
		}
	}
}

func TestPlay_RespectsTimingAndStart(t *testing.T) {
	var chunks [][]byte
	fs := &fakeSleeper{}

	recs := []Record{
		{At: 1 * time.Second, Data: nil},
		{At: 1 * time.Second, Data: []byte{0xAA}},
		{At: 1*time.Second + 100*time.Nanosecond, Data: []byte{0xBB}},
		{At: 2 * time.Second, Data: nil},
		{At: 2*time.Second + 50*time.Nanosecond, Data: []byte{0xCC}},
	}

	err := Play(context.Background(), recs, 1.0, false, fs, func(chunk []byte) error {
		chunks = append(chunks, append([]byte(nil), chunk...))
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	want := [][]byte{{0xAA}, {0xBB}, {0xCC}}
	if !reflect.DeepEqual(chunks, want) {
		t.Fatalf("chunks=%x want %x", chunks, want)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{100 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [100ns]", fs.slept)
	}
}

func TestPlay_SpeedMultiplier(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 0, Data: []byte{0x01}},
		{At: 100 * time.Nanosecond, Data: []byte{0x02}},
	}

	if err := Play(context.Background(), recs, 2.0, false, fs, func([]byte) error { return nil }); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{50 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [50ns]", fs.slept)
	}
}

func TestPlay_InvalidArgs(t *testing.T) {
	recs := []Record{{At: 0, Data: []byte{0x01}}}
	ctx := context.Background()
	if err := Play(ctx, recs, 0, false, nil, func([]byte) error { return nil }); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if err := Play(ctx, recs, 1, false, nil, nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
	if err := Play(ctx, []Record{{}}, 1, false, nil, func([]byte) error { return nil }); err == nil {
		t.Fatalf("expected error for START-only capture")
	}
}

func TestPlay_LoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	recs := []Record{{At: 0, Data: []byte{0x01}}}
	n := 0
	err := Play(ctx, recs, 1, true, &fakeSleeper{}, func([]byte) error {
		n++
		if n == 5 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if n != 5 {
		t.Fatalf("callbacks=%d want 5", n)
	}
}

func TestWriter_WritesExpectedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	w.start = time.Unix(0, 0)
	w.now = func() time.Time { return time.Unix(0, 35) }

	if err := w.WriteChunk(time.Unix(0, 20), []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteChunk() error: %v", err)
	}
	if n, err := w.Write([]byte{0xa5}); err != nil || n != 1 {
		t.Fatalf("Write()=%d,%v", n, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteChunk(time.Now(), []byte{0x01}); err == nil {
		t.Fatalf("expected error after Close")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(b) != "START\n20,0102\n35,a5\n" {
		t.Fatalf("unexpected file contents: %q", string(b))
	}
}

func TestRecordReplay_DecodesSplitFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radar-capture.log")
	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}

	// Frames deliberately split across chunk boundaries, with line noise.
	var stream []byte
	for i := 0; i < 3; i++ {
		f := posepkt.Encode(posepkt.Measurement{X: float32(i), Y: 1, Z: 2, StdDev: 0.1})
		stream = append(stream, 0x00, 0x7f)
		stream = append(stream, f[:]...)
	}
	now := time.Now()
	for off := 0; off < len(stream); off += 7 {
		end := off + 7
		if end > len(stream) {
			end = len(stream)
		}
		if err := w.WriteChunk(now, stream[off:end]); err != nil {
			t.Fatalf("WriteChunk() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	recs, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}

	var xs []float32
	dec := radar.NewDecoder(radar.SinkFunc(func(m posepkt.Measurement) { xs = append(xs, m.X) }), nil)
	fs := &fakeSleeper{}
	err = Play(context.Background(), recs, 1.0, false, fs, func(chunk []byte) error {
		_, err := dec.Write(chunk)
		return err
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if len(fs.slept) != 0 {
		t.Fatalf("expected no sleeps, got %v", fs.slept)
	}
	if !reflect.DeepEqual(xs, []float32{0, 1, 2}) {
		t.Fatalf("xs=%v want [0 1 2]", xs)
	}
}
