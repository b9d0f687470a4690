package gpio

import (
	"fmt"

	"github.com/cjeanneret/SunTrack/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// pwmClockHz is the PWM clock handed to rpio for hardware PWM pins.
// With a cycle length of MaxDuty+1 this gives roughly a 490 Hz carrier,
// close to what an AVR analog write produces.
const pwmClockHz = 490 * (MaxDuty + 1)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins map[int]rpio.Pin
	pwm  map[int]bool
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
		pwm:  make(map[int]bool),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	r.pins[pin] = p
	delete(r.pwm, pin)

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok || r.pwm[pin] {
		// Pin not setup yet (or left in PWM mode), setup as output
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as input
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// WritePWM switches the pin to hardware PWM mode on first use.
// Only BCM 12, 13, 18 and 19 carry a PWM channel on the Raspberry Pi.
func (r *RPiDriver) WritePWM(pin int, duty uint8) error {
	debug.GPIO("WritePWM", pin, duty)

	if !hardwarePWM[pin] {
		return fmt.Errorf("%w on BCM %d", ErrPWMUnsupported, pin)
	}

	p := rpio.Pin(pin)
	if !r.pwm[pin] {
		p.Mode(rpio.Pwm)
		p.Freq(pwmClockHz)
		r.pins[pin] = p
		r.pwm[pin] = true
	}
	p.DutyCycle(uint32(duty), MaxDuty+1)
	return nil
}

var hardwarePWM = map[int]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
