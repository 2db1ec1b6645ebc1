// Package replay records and replays raw radar link captures.
//
// Capture format: line-oriented text.
//
//   - Blank lines and lines starting with '#' are ignored.
//   - "START" resets the origin (the next record time is relative to 0 again).
//   - Data lines are <t_ns>,<hex> where t_ns is nanoseconds since START and
//     hex is one chunk of bytes exactly as read from the serial port.
//
// Chunks are not frame aligned; replaying them through a decoder exercises
// resynchronization the same way the live port does.
package replay

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Record struct {
	At   time.Duration
	Data []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFile parses the capture at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// startMarker begins a new recording session inside a capture.
const startMarker = "START"

// SyntaxError reports a malformed capture line.
type SyntaxError struct {
	Line int
	Msg  string
	Err  error
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture line %d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("capture line %d: %s", e.Line, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// ReadAll parses every record. A START line becomes a Record with nil Data.
func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var recs []Record
	for n := 1; s.Scan(); n++ {
		line := strings.TrimSpace(s.Text())
		switch {
		case line == "", strings.HasPrefix(line, "#"):
			continue
		case line == startMarker:
			recs = append(recs, Record{})
			continue
		}
		rec, err := parseChunk(line)
		if err != nil {
			err.Line = n
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return recs, nil
}

// parseChunk decodes one "<t_ns>,<hex>" data line. The caller fills in Line.
func parseChunk(line string) (Record, *SyntaxError) {
	offset, payload, ok := strings.Cut(line, ",")
	if !ok {
		return Record{}, &SyntaxError{Msg: "want <t_ns>,<hex>"}
	}

	ns, err := strconv.ParseInt(strings.TrimSpace(offset), 10, 64)
	switch {
	case err != nil:
		return Record{}, &SyntaxError{Msg: "chunk offset", Err: err}
	case ns < 0:
		return Record{}, &SyntaxError{Msg: fmt.Sprintf("chunk offset %d is before START", ns)}
	}

	data, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(payload), " ", ""))
	switch {
	case err != nil:
		return Record{}, &SyntaxError{Msg: "chunk bytes", Err: err}
	case len(data) == 0:
		return Record{}, &SyntaxError{Msg: "chunk has no bytes"}
	}
	return Record{At: time.Duration(ns), Data: data}, nil
}

// Writer appends chunks to a capture file. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	now    func() time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now(), now: time.Now}, nil
}

// Write records p as one chunk stamped with the current time, so a Writer
// can sit directly behind the serial reader.
func (ww *Writer) Write(p []byte) (int, error) {
	if err := ww.WriteChunk(ww.now(), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (ww *Writer) WriteChunk(now time.Time, chunk []byte) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("capture writer is closed")
	}
	if len(chunk) == 0 {
		return nil
	}

	// Monotonic component of time is used when available.
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), hex.EncodeToString(chunk))
	return err
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Play replays records with their relative timing, invoking cb for every
// record carrying data. START markers reset the origin.
//
// speedMultiplier: 1.0 = real time, 2.0 = twice as fast, 0.5 = half speed.
func Play(ctx context.Context, records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(chunk []byte) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	hasData := false
	for _, r := range records {
		if r.Data != nil {
			hasData = true
			break
		}
	}
	if !hasData {
		return errors.New("no records")
	}

	for {
		var origin time.Duration
		var lastAt time.Duration
		var haveLast bool

		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.Data == nil {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast {
				wait := at - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					if err := sleeper.Sleep(ctx, wait); err != nil {
						return err
					}
				}
			}

			if err := cb(r.Data); err != nil {
				return err
			}

			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}
