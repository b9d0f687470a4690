package stepper

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/SunTrack/internal/debug"
	"github.com/cjeanneret/SunTrack/internal/hw/gpio"
)

var (
	// ErrInvalidMicrostep is returned for a microstep divisor the A4988 can't select.
	ErrInvalidMicrostep = errors.New("invalid microstep mode")

	// ErrFractionalStep is returned when a rotation is not a whole number of
	// STEP pulses at the current microstep mode.
	ErrFractionalStep = errors.New("rotation is not a whole number of microsteps")
)

// stepEpsilon is how far a pulse count may sit from an integer and still
// count as whole.
const stepEpsilon = 1e-6

// WholeSteps converts deg into a pulse count at stepsPerDeg pulses per
// degree. It fails with ErrFractionalStep unless the count is integral.
func WholeSteps(deg, stepsPerDeg float64) (int, error) {
	n := deg * stepsPerDeg
	r := math.Round(n)
	if math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n-r) > stepEpsilon {
		return 0, fmt.Errorf("%w: %g° is %g pulses", ErrFractionalStep, deg, n)
	}
	return int(r), nil
}

// Microstep is the A4988 step divisor (1 = full step, 8 = 1/8 step, ...).
type Microstep int

// microstepTable maps a divisor to the MS1/MS2/MS3 levels from the A4988 datasheet.
var microstepTable = map[Microstep][3]gpio.Level{
	1:  {gpio.Low, gpio.Low, gpio.Low},
	2:  {gpio.High, gpio.Low, gpio.Low},
	4:  {gpio.Low, gpio.High, gpio.Low},
	8:  {gpio.High, gpio.High, gpio.Low},
	16: {gpio.High, gpio.High, gpio.High},
}

// MicrostepPins returns the MS1, MS2 and MS3 levels selecting mode.
func MicrostepPins(mode Microstep) (ms1, ms2, ms3 gpio.Level, err error) {
	levels, ok := microstepTable[mode]
	if !ok {
		return gpio.Low, gpio.Low, gpio.Low, fmt.Errorf("%w: 1/%d", ErrInvalidMicrostep, mode)
	}
	return levels[0], levels[1], levels[2], nil
}

// A4988Config holds the hardware configuration for an A4988 driver.
// A pin number of 0 means the line is hard-wired and not driven.
type A4988Config struct {
	EnablePin   int // !EN, active LOW
	MS1Pin      int
	MS2Pin      int
	MS3Pin      int
	ResetPin    int // !RST, active LOW
	SleepPin    int // !SLP, active LOW
	StepPin     int
	DirPin      int
	StepsPerRev int
	Microstep   Microstep
	StepDelay   time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
	WakeDelay   time.Duration // settling time after leaving sleep
}

// A4988 drives a stepper motor through an A4988 microstepping driver.
type A4988 struct {
	gpio      gpio.Driver
	cfg       A4988Config
	delay     time.Duration // delay between STEP pulse half-cycles
	wakeDelay time.Duration
	asleep    bool
}

// NewA4988 configures every driver line once: pins as outputs, driver
// enabled, out of reset, microstep mode selected. The driver is left asleep.
// cfg.StepDelay defaults to 1ms, cfg.WakeDelay to 1ms.
func NewA4988(g gpio.Driver, cfg A4988Config) (*A4988, error) {
	if cfg.Microstep == 0 {
		cfg.Microstep = 1
	}
	ms1, ms2, ms3, err := MicrostepPins(cfg.Microstep)
	if err != nil {
		return nil, err
	}
	if cfg.StepsPerRev <= 0 {
		return nil, fmt.Errorf("steps per revolution must be > 0, got %d", cfg.StepsPerRev)
	}

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}
	wake := cfg.WakeDelay
	if wake <= 0 {
		wake = 1 * time.Millisecond
	}

	a := &A4988{
		gpio:      g,
		cfg:       cfg,
		delay:     delay,
		wakeDelay: wake,
	}

	for _, pin := range []int{cfg.EnablePin, cfg.MS1Pin, cfg.MS2Pin, cfg.MS3Pin, cfg.ResetPin, cfg.SleepPin, cfg.StepPin, cfg.DirPin} {
		if pin <= 0 {
			continue
		}
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
	}

	writes := []struct {
		pin   int
		level gpio.Level
	}{
		{cfg.EnablePin, gpio.Low}, // enabled
		{cfg.ResetPin, gpio.High}, // not in reset
		{cfg.SleepPin, gpio.High}, // awake while configuring
		{cfg.MS1Pin, ms1},
		{cfg.MS2Pin, ms2},
		{cfg.MS3Pin, ms3},
	}
	for _, w := range writes {
		if err := a.write(w.pin, w.level); err != nil {
			return nil, err
		}
	}

	debug.Info("A4988 initialized (1/%d step, %d steps/rev)", cfg.Microstep, cfg.StepsPerRev)
	if err := a.Sleep(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *A4988) write(pin int, level gpio.Level) error {
	if pin <= 0 {
		return nil
	}
	return a.gpio.WritePin(pin, level)
}

// MicrostepsPerDegree is the number of STEP pulses per degree of shaft rotation.
func (a *A4988) MicrostepsPerDegree() float64 {
	return float64(a.cfg.StepsPerRev*int(a.cfg.Microstep)) / 360.0
}

// DegreesPerMicrostep is the shaft rotation produced by one STEP pulse.
func (a *A4988) DegreesPerMicrostep() float64 {
	return 360.0 / float64(a.cfg.StepsPerRev*int(a.cfg.Microstep))
}

// Asleep reports whether the driver is in low-power sleep.
func (a *A4988) Asleep() bool {
	return a.asleep
}

// MoveSteps moves the motor by a number of steps (positive or negative).
func (a *A4988) MoveSteps(steps int) error {
	if steps == 0 {
		return nil
	}

	var dirLevel gpio.Level
	var direction string
	if steps > 0 {
		dirLevel = gpio.High
		direction = "forward"
	} else {
		dirLevel = gpio.Low
		direction = "backward"
		steps = -steps
	}

	debug.Printf("A4988: moving %d steps (%s) on pin %d", steps, direction, a.cfg.StepPin)

	if err := a.write(a.cfg.DirPin, dirLevel); err != nil {
		return err
	}

	for i := 0; i < steps; i++ {
		if err := a.stepPulse(); err != nil {
			return err
		}
	}
	return nil
}

// MoveDegrees rotates the shaft by deg. deg must be a whole number of
// microsteps; otherwise nothing moves and ErrFractionalStep is returned.
func (a *A4988) MoveDegrees(deg float64) error {
	steps, err := WholeSteps(deg, a.MicrostepsPerDegree())
	if err != nil {
		return err
	}
	return a.MoveSteps(steps)
}

func (a *A4988) stepPulse() error {
	if err := a.gpio.WritePin(a.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(a.delay)
	if err := a.gpio.WritePin(a.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(a.delay)
	return nil
}

// Sleep puts the driver in low-power sleep (!SLP=LOW). No holding torque.
func (a *A4988) Sleep() error {
	if err := a.write(a.cfg.SleepPin, gpio.Low); err != nil {
		return err
	}
	a.asleep = true
	debug.Live("Motor in sleep mode")
	return nil
}

// Wake leaves sleep (!SLP=HIGH) and waits for the charge pump to settle
// before any STEP pulse is issued.
func (a *A4988) Wake() error {
	if err := a.write(a.cfg.SleepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(a.wakeDelay)
	a.asleep = false
	debug.Live("Motor awake")
	return nil
}

// Reset pulses !RST, returning the translator to its home microstep position.
func (a *A4988) Reset() error {
	if err := a.write(a.cfg.ResetPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(a.delay)
	return a.write(a.cfg.ResetPin, gpio.High)
}

// Enable turns on the motor outputs (!EN=LOW).
func (a *A4988) Enable() error {
	return a.write(a.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor outputs (!EN=HIGH). Motor freewheels.
func (a *A4988) Disable() error {
	return a.write(a.cfg.EnablePin, gpio.High)
}
