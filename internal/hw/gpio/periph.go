package gpio

import (
	"fmt"
	"strconv"

	"github.com/cjeanneret/SunTrack/internal/debug"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// pwmFrequency is the carrier used for PWM through periph.
const pwmFrequency = 490 * physic.Hertz

// PeriphDriver drives pins through periph.io, which supports many boards
// and falls back to software PWM where no hardware channel exists.
type PeriphDriver struct {
	byName func(name string) pgpio.PinIO
	pins   map[int]pgpio.PinIO
}

// NewPeriphDriver initializes the periph host drivers and returns a driver
// resolving pins by their number in the host registry.
func NewPeriphDriver() (*PeriphDriver, error) {
	debug.Info("Initializing GPIO driver (periph.io)")

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return newPeriphDriver(gpioreg.ByName), nil
}

func newPeriphDriver(byName func(string) pgpio.PinIO) *PeriphDriver {
	return &PeriphDriver{
		byName: byName,
		pins:   make(map[int]pgpio.PinIO),
	}
}

func (d *PeriphDriver) lookup(pin int) (pgpio.PinIO, error) {
	if p, ok := d.pins[pin]; ok {
		return p, nil
	}
	p := d.byName(strconv.Itoa(pin))
	if p == nil {
		return nil, fmt.Errorf("%w: no periph pin %d", ErrPinNotConfigured, pin)
	}
	d.pins[pin] = p
	return p, nil
}

func (d *PeriphDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		return p.In(pgpio.PullNoChange, pgpio.NoEdge)
	case Output:
		return p.Out(pgpio.Low)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
}

func (d *PeriphDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	return p.Out(pgpio.Level(level))
}

func (d *PeriphDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, err := d.lookup(pin)
	if err != nil {
		return Low, err
	}
	return Level(p.Read()), nil
}

func (d *PeriphDriver) WritePWM(pin int, duty uint8) error {
	debug.GPIO("WritePWM", pin, duty)

	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	scaled := pgpio.Duty(int64(duty) * int64(pgpio.DutyMax) / MaxDuty)
	if err := p.PWM(scaled, pwmFrequency); err != nil {
		return fmt.Errorf("%w on %s: %w", ErrPWMUnsupported, p.Name(), err)
	}
	return nil
}

func (d *PeriphDriver) Close() error {
	debug.Trace("GPIO Close (periph)")

	var firstErr error
	for pin, p := range d.pins {
		if err := p.Halt(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("halt pin %d: %w", pin, err)
		}
	}
	return firstErr
}
