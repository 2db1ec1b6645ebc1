package radar

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	DriverTermios  = "termios"
	DriverPortable = "portable"

	// DefaultBaud is the rate the radar MCU transmits at (8-N-1).
	DefaultBaud = 1000000
)

// PortConfig selects and configures the serial device.
type PortConfig struct {
	// Device may be empty to auto-detect.
	Device string
	Baud   int

	// Driver is DriverTermios (Linux raw termios) or DriverPortable
	// (go.bug.st/serial). Empty picks termios on Linux, portable elsewhere.
	Driver string

	// ReadTimeout bounds a single read on the portable driver. Zero blocks.
	ReadTimeout time.Duration
}

func openPort(cfg PortConfig) (io.ReadCloser, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DefaultDriver
	}
	switch driver {
	case DriverTermios:
		return openTermios(cfg.Device, cfg.Baud)
	case DriverPortable:
		return openPortable(cfg.Device, cfg.Baud, cfg.ReadTimeout)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}

var openPortFn = openPort

func openPortable(path string, baud int, readTimeout time.Duration) (io.ReadCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err := p.SetReadTimeout(readTimeout); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	return p, nil
}

// devicePrefixes are tried in order; USB CDC adapters first, then the Pi's
// on-board UART.
var devicePrefixes = []string{"/dev/ttyACM", "/dev/ttyUSB", "/dev/ttyAMA", "/dev/serial"}

func autoDetectDevice() string {
	ports, err := listPortsFn()
	if err != nil || len(ports) == 0 {
		ports = nil
		for _, prefix := range devicePrefixes {
			for i := 0; i < 10; i++ {
				p := fmt.Sprintf("%s%d", prefix, i)
				if _, err := os.Stat(p); err == nil {
					ports = append(ports, p)
				}
			}
		}
	}
	return pickDevice(ports)
}

var listPortsFn = serial.GetPortsList

func pickDevice(ports []string) string {
	sorted := append([]string(nil), ports...)
	sort.Strings(sorted)
	for _, prefix := range devicePrefixes {
		for _, p := range sorted {
			if strings.HasPrefix(p, prefix) {
				return p
			}
		}
	}
	return ""
}
