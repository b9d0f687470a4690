package console

import (
	"bytes"
	"errors"
	"testing"

	"go.bug.st/serial"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestMode(t *testing.T) {
	m := Mode(115200)
	if m.BaudRate != 115200 || m.DataBits != 8 || m.Parity != serial.NoParity || m.StopBits != serial.OneStopBit {
		t.Errorf("Mode(115200) = %+v, want 115200 8N1", m)
	}
	if Mode(0).BaudRate != DefaultBaud {
		t.Errorf("Mode(0).BaudRate = %d, want %d", Mode(0).BaudRate, DefaultBaud)
	}
}

func TestOpen_NoPort(t *testing.T) {
	if _, err := Open("", 9600); !errors.Is(err, ErrNoPort) {
		t.Errorf("err = %v, want ErrNoPort", err)
	}
}

func TestLineWriter_CRLF(t *testing.T) {
	buf := &bufferCloser{}
	w := &lineWriter{w: buf}

	in := "Solar Elevation Angle: 34.04\nMotor awake\r\n"
	n, err := w.Write([]byte(in))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(in) {
		t.Errorf("n = %d, want %d", n, len(in))
	}
	want := "Solar Elevation Angle: 34.04\r\nMotor awake\r\n"
	if buf.String() != want {
		t.Errorf("wrote %q, want %q", buf.String(), want)
	}

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if !buf.closed {
		t.Error("Close should close the port")
	}
}
