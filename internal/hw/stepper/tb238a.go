package stepper

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/SunTrack/internal/debug"
	"github.com/cjeanneret/SunTrack/internal/hw/gpio"
)

// PhaseCount is the number of states in one electrical rotation.
const PhaseCount = 4

// phaseTable holds the AIN1, AIN2, BIN1, BIN2 levels for each full step
// of a two-phase bipolar motor.
var phaseTable = [PhaseCount][4]gpio.Level{
	{gpio.High, gpio.Low, gpio.High, gpio.Low},
	{gpio.Low, gpio.High, gpio.High, gpio.Low},
	{gpio.Low, gpio.High, gpio.Low, gpio.High},
	{gpio.High, gpio.Low, gpio.Low, gpio.High},
}

// Phase returns the phase-line levels for a step index. Any index is
// accepted and reduced modulo PhaseCount.
func Phase(index int) [4]gpio.Level {
	i := index % PhaseCount
	if i < 0 {
		i += PhaseCount
	}
	return phaseTable[i]
}

// TB238AConfig holds the pins and timing of a TB238A dual H-bridge.
// StandbyPin of 0 means standby is only done through the PWM lines.
type TB238AConfig struct {
	AIN1Pin    int
	AIN2Pin    int
	BIN1Pin    int
	BIN2Pin    int
	PWMAPin    int // bridge A enable, PWM power limit
	PWMBPin    int // bridge B enable, PWM power limit
	StandbyPin int // STBY, active LOW
	Power      uint8
	StepDelay  time.Duration
	Cooldown   time.Duration
}

// TB238A sequences a full-step H-bridge at constant speed. There is no
// feedback and no direction control.
type TB238A struct {
	gpio    gpio.Driver
	cfg     TB238AConfig
	index   int
	standby bool
}

// NewTB238A sets all pins as outputs and applies the configured power on
// both bridge enable lines.
func NewTB238A(g gpio.Driver, cfg TB238AConfig) (*TB238A, error) {
	for _, pin := range []int{cfg.AIN1Pin, cfg.AIN2Pin, cfg.BIN1Pin, cfg.BIN2Pin, cfg.PWMAPin, cfg.PWMBPin, cfg.StandbyPin} {
		if pin <= 0 {
			continue
		}
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
	}

	t := &TB238A{gpio: g, cfg: cfg}
	if err := t.Resume(); err != nil {
		return nil, err
	}
	debug.Info("TB238A initialized (power %d/%d)", cfg.Power, gpio.MaxDuty)
	return t, nil
}

// Index returns the phase index that the next Step will apply.
func (t *TB238A) Index() int {
	return t.index
}

// InStandby reports whether the bridges are disabled.
func (t *TB238A) InStandby() bool {
	return t.standby
}

// Step writes the current phase to the bridge lines and advances the index
// 0→1→2→3→0.
func (t *TB238A) Step() error {
	if err := t.applyPhase(Phase(t.index)); err != nil {
		return err
	}
	debug.Trace("TB238A: phase %d", t.index)
	t.index = (t.index + 1) % PhaseCount
	return nil
}

func (t *TB238A) applyPhase(levels [4]gpio.Level) error {
	pins := [4]int{t.cfg.AIN1Pin, t.cfg.AIN2Pin, t.cfg.BIN1Pin, t.cfg.BIN2Pin}
	for i, pin := range pins {
		if pin <= 0 {
			continue
		}
		if err := t.gpio.WritePin(pin, levels[i]); err != nil {
			return err
		}
	}
	return nil
}

// Standby cuts power to both bridges and releases the phase lines.
func (t *TB238A) Standby() error {
	for _, pin := range []int{t.cfg.PWMAPin, t.cfg.PWMBPin} {
		if pin <= 0 {
			continue
		}
		if err := t.gpio.WritePWM(pin, 0); err != nil {
			return err
		}
	}
	if t.cfg.StandbyPin > 0 {
		if err := t.gpio.WritePin(t.cfg.StandbyPin, gpio.Low); err != nil {
			return err
		}
	}
	if err := t.applyPhase([4]gpio.Level{}); err != nil {
		return err
	}
	t.standby = true
	debug.Live("TB238A: standby")
	return nil
}

// Resume leaves standby and restores the configured power.
func (t *TB238A) Resume() error {
	if t.cfg.StandbyPin > 0 {
		if err := t.gpio.WritePin(t.cfg.StandbyPin, gpio.High); err != nil {
			return err
		}
	}
	for _, pin := range []int{t.cfg.PWMAPin, t.cfg.PWMBPin} {
		if pin <= 0 {
			continue
		}
		if err := t.gpio.WritePWM(pin, t.cfg.Power); err != nil {
			return err
		}
	}
	t.standby = false
	return nil
}

// RunCycle performs one full electrical rotation (four steps separated by
// the step delay), then holds standby for the cooldown period.
func (t *TB238A) RunCycle(ctx context.Context) error {
	if t.standby {
		if err := t.Resume(); err != nil {
			return err
		}
	}
	for i := 0; i < PhaseCount; i++ {
		if err := t.Step(); err != nil {
			return err
		}
		if err := sleepCtx(ctx, t.cfg.StepDelay); err != nil {
			return err
		}
	}
	if err := t.Standby(); err != nil {
		return err
	}
	return sleepCtx(ctx, t.cfg.Cooldown)
}

// Run repeats RunCycle. cycles <= 0 runs until ctx is cancelled. The bridges
// are left in standby on return.
func (t *TB238A) Run(ctx context.Context, cycles int) error {
	for n := 0; cycles <= 0 || n < cycles; n++ {
		debug.Live("TB238A: cycle %d", n+1)
		if err := t.RunCycle(ctx); err != nil {
			if serr := t.Standby(); serr != nil {
				debug.Error(fmt.Errorf("tb238a: standby after failed cycle: %w", serr))
			}
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
