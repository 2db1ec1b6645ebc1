//go:build !linux

package radar

import (
	"fmt"
	"io"
)

// DefaultDriver is used when PortConfig.Driver is empty.
const DefaultDriver = DriverPortable

// TermiosBaudSupported is always false: the termios driver is Linux only.
func TermiosBaudSupported(baud int) bool { return false }

func openTermios(path string, baud int) (io.ReadCloser, error) {
	return nil, fmt.Errorf("termios serial driver not supported on this platform")
}
