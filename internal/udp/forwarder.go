// Package udp forwards validated pose frames to a UDP listener, typically an
// estimator running on another host.
package udp

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"radardeck/internal/posepkt"
)

type dialFunc func(raddr *net.UDPAddr) (io.WriteCloser, error)

func dialUDP(raddr *net.UDPAddr) (io.WriteCloser, error) {
	return net.DialUDP("udp", nil, raddr)
}

// Forwarder is a radar.Sink that re-encodes every measurement into its wire
// frame and sends it as a single datagram.
type Forwarder struct {
	dest    *net.UDPAddr
	conn    io.WriteCloser
	observe func(error)

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewForwarder resolves dest ("host:port") and connects a UDP socket to it.
func NewForwarder(dest string) (*Forwarder, error) {
	return newForwarder(dest, dialUDP)
}

func newForwarder(dest string, dial dialFunc) (*Forwarder, error) {
	raddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("udp forward %q: %w", dest, err)
	}
	conn, err := dial(raddr)
	if err != nil {
		return nil, fmt.Errorf("udp forward %s: %w", raddr, err)
	}
	return &Forwarder{dest: raddr, conn: conn}, nil
}

// SetObserver installs a callback invoked with the outcome of every
// Publish. Call before the forwarder is shared.
func (f *Forwarder) SetObserver(fn func(error)) {
	f.observe = fn
}

// Dest is the resolved destination address.
func (f *Forwarder) Dest() string {
	return f.dest.String()
}

// Publish sends m; errors go to the observer only.
func (f *Forwarder) Publish(m posepkt.Measurement) {
	err := f.forward(posepkt.Encode(m))
	if err != nil {
		f.failed.Add(1)
	} else {
		f.sent.Add(1)
	}
	if f.observe != nil {
		f.observe(err)
	}
}

func (f *Forwarder) forward(frame posepkt.Frame) error {
	n, err := f.conn.Write(frame[:])
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("udp forward: short write %d/%d", n, len(frame))
	}
	return nil
}

// Counts returns the number of datagrams sent and failed.
func (f *Forwarder) Counts() (sent, failed uint64) {
	return f.sent.Load(), f.failed.Load()
}

func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
