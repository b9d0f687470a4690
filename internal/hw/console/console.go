// Package console mirrors diagnostic output to a serial port, the way the
// tracker's status lines were read on a USB serial monitor.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaud matches the usual serial monitor setting.
const DefaultBaud = 9600

// ErrNoPort is returned when no serial port name is given.
var ErrNoPort = errors.New("no serial port configured")

// Mode returns the 8N1 serial mode for the given baud rate.
func Mode(baud int) *serial.Mode {
	if baud <= 0 {
		baud = DefaultBaud
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Open opens port for writing diagnostic lines.
func Open(port string, baud int) (io.WriteCloser, error) {
	if port == "" {
		return nil, ErrNoPort
	}
	p, err := serial.Open(port, Mode(baud))
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return &lineWriter{w: p}, nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// lineWriter converts LF line endings to CRLF, which serial terminals expect.
type lineWriter struct {
	w io.WriteCloser
}

func (l *lineWriter) Write(p []byte) (int, error) {
	out := strings.ReplaceAll(strings.ReplaceAll(string(p), "\r\n", "\n"), "\n", "\r\n")
	if _, err := io.WriteString(l.w, out); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *lineWriter) Close() error {
	return l.w.Close()
}
