package gpio

import (
	"fmt"

	"github.com/cjeanneret/SunTrack/internal/debug"
	"github.com/warthog618/go-gpiocdev"
)

// cdevLine is the subset of *gpiocdev.Line the driver needs.
type cdevLine interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

type cdevRequester func(chip string, offset int, opts ...gpiocdev.LineReqOption) (cdevLine, error)

func requestCdevLine(chip string, offset int, opts ...gpiocdev.LineReqOption) (cdevLine, error) {
	return gpiocdev.RequestLine(chip, offset, opts...)
}

type cdevPin struct {
	line cdevLine
	mode PinMode
}

// CdevDriver drives GPIO lines through the Linux GPIO character device.
// It works on any board exposing /dev/gpiochipN, not only the Raspberry Pi.
// Pin numbers are line offsets on the chip.
type CdevDriver struct {
	chip    string
	request cdevRequester
	lines   map[int]*cdevPin
}

// NewCdevDriver creates a character-device driver for the given chip
// (e.g. "gpiochip0"). Lines are requested lazily in SetupPin.
func NewCdevDriver(chip string) *CdevDriver {
	debug.Info("Initializing GPIO character device driver (%s)", chip)
	return &CdevDriver{
		chip:    chip,
		request: requestCdevLine,
		lines:   make(map[int]*cdevPin),
	}
}

func (c *CdevDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	if p, ok := c.lines[pin]; ok {
		if p.mode == mode {
			return nil
		}
		if err := p.line.Close(); err != nil {
			return fmt.Errorf("release line %d: %w", pin, err)
		}
		delete(c.lines, pin)
	}

	var opt gpiocdev.LineReqOption
	switch mode {
	case Input:
		opt = gpiocdev.AsInput
	case Output:
		opt = gpiocdev.AsOutput(0)
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	l, err := c.request(c.chip, pin, opt, gpiocdev.WithConsumer("suntrack"))
	if err != nil {
		return fmt.Errorf("request line %d on %s: %w", pin, c.chip, err)
	}
	c.lines[pin] = &cdevPin{line: l, mode: mode}
	return nil
}

func (c *CdevDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := c.lines[pin]
	if !ok || p.mode != Output {
		if err := c.SetupPin(pin, Output); err != nil {
			return err
		}
		p = c.lines[pin]
	}

	v := 0
	if level == High {
		v = 1
	}
	return p.line.SetValue(v)
}

func (c *CdevDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, ok := c.lines[pin]
	if !ok {
		if err := c.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = c.lines[pin]
	}

	v, err := p.line.Value()
	if err != nil {
		return Low, err
	}
	return Level(v != 0), nil
}

// WritePWM has no hardware support on a plain character device. A zero duty
// drives the line low; full duty drives it high; anything in between is
// rejected.
func (c *CdevDriver) WritePWM(pin int, duty uint8) error {
	switch duty {
	case 0:
		return c.WritePin(pin, Low)
	case MaxDuty:
		return c.WritePin(pin, High)
	default:
		debug.GPIO("WritePWM", pin, duty)
		return fmt.Errorf("%w on %s line %d (duty %d)", ErrPWMUnsupported, c.chip, pin, duty)
	}
}

func (c *CdevDriver) Close() error {
	debug.Trace("GPIO Close (gpiocdev)")

	var firstErr error
	for pin, p := range c.lines {
		if err := p.line.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("release line %d: %w", pin, err)
		}
		delete(c.lines, pin)
	}
	return firstErr
}
