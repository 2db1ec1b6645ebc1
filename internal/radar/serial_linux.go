//go:build linux

package radar

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultDriver is used when PortConfig.Driver is empty.
const DefaultDriver = DriverTermios

var termiosRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	2000000: unix.B2000000,
}

// TermiosBaudSupported reports whether the termios driver can program baud.
func TermiosBaudSupported(baud int) bool {
	_, ok := termiosRates[baud]
	return ok
}

// openTermios opens path non-blocking so the returned file is driven by the
// runtime poller and Close interrupts a pending Read.
func openTermios(path string, baud int) (io.ReadCloser, error) {
	rate, ok := termiosRates[baud]
	if !ok {
		return nil, fmt.Errorf("termios: unsupported baud %d", baud)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("termios: open %s: %w", path, err)
	}
	if err := makeRaw(fd, rate); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("termios: configure %s: %w", path, err)
	}

	f := os.NewFile(uintptr(fd), path)
	if f == nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("termios: invalid fd for %s", path)
	}
	return f, nil
}

// makeRaw puts fd into 8-N-1 raw mode at rate with no flow control.
// VMIN=1/VTIME=0: a read returns as soon as one byte is available; waiting
// for that byte is left to the poller.
func makeRaw(fd int, rate uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | rate
	t.Ispeed = rate
	t.Ospeed = rate
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}
