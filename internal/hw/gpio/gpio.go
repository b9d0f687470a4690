package gpio

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/SunTrack/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// MaxDuty is the full-scale PWM duty value, matching an 8-bit analog write.
const MaxDuty = 255

var (
	// ErrUnknownBackend is returned by NewDriver for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown gpio backend")

	// ErrPWMUnsupported is returned when a backend cannot produce PWM on a pin.
	ErrPWMUnsupported = errors.New("pwm not supported")

	// ErrPinNotConfigured is returned when a pin is used before SetupPin.
	ErrPinNotConfigured = errors.New("pin not configured")
)

// Backend names accepted by NewDriver.
const (
	BackendMock     = "mock"
	BackendRPi      = "rpio"
	BackendCdev     = "gpiocdev"
	BackendPeriph   = "periph"
	defaultCdevChip = "gpiochip0"
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// WritePWM drives a pin with a duty cycle in [0, MaxDuty].
	WritePWM(pin int, duty uint8) error
	Close() error
}

// MockDriver is a test implementation that simply logs actions.
// Used for development on PC or testing.
type MockDriver struct{}

// NewDriver creates a GPIO driver for the named backend.
// chip is only used by the gpiocdev backend; empty means gpiochip0.
func NewDriver(backend, chip string) (Driver, error) {
	switch backend {
	case BackendMock, "":
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	case BackendRPi:
		return NewRPiRealDriver()
	case BackendCdev:
		if chip == "" {
			chip = defaultCdevChip
		}
		return NewCdevDriver(chip), nil
	case BackendPeriph:
		return NewPeriphDriver()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	return Low, nil
}

func (m *MockDriver) WritePWM(pin int, duty uint8) error {
	debug.GPIO("WritePWM", pin, duty)
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
