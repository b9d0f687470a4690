package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/SunTrack/internal/debug"
)

var (
	// ErrNotConverged is returned when an adjustment hits its iteration cap
	// before the heading gets within tolerance of the target.
	ErrNotConverged = errors.New("adjustment did not converge")

	// ErrInvalidAngle is returned for a NaN or infinite target or heading.
	ErrInvalidAngle = errors.New("angle is not finite")
)

// stepEpsilon is how far StepDeg may sit from a whole number of motor
// increments.
const stepEpsilon = 1e-6

// Motor is the azimuth drive. MoveDegrees is open loop: nothing confirms
// the shaft actually turned.
type Motor interface {
	Wake() error
	Sleep() error
	MoveDegrees(deg float64) error
}

// Resolver is implemented by motors that only move in fixed increments.
// NewTracker then requires StepDeg to be a whole number of them.
type Resolver interface {
	DegreesPerMicrostep() float64
}

// Config holds the adjustment parameters.
type Config struct {
	StepDeg       float64       // rotation per iteration
	Tolerance     float64       // stop when |heading - target| <= Tolerance
	MaxIterations int           // 0 = derived from a full turn
	SettleDelay   time.Duration // pause after each step
}

// AngleState is the running heading owned by the control loop. The
// adjustment is its only writer; both fields change by exactly ±StepDeg
// per step issued.
type AngleState struct {
	MotorAngle  float64 `json:"motor_angle"` // commanded rotation since start
	Orientation float64 `json:"orientation"` // panel heading estimate
}

// Result describes one adjustment.
type Result struct {
	Target     float64 `json:"target"`
	Start      float64 `json:"start"`
	Final      float64 `json:"final"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
}

// Tracker steps the motor toward a target heading.
type Tracker struct {
	motor Motor
	cfg   Config
}

// NewTracker validates cfg. A step of 2×Tolerance or more could jump over
// the acceptance window forever, so it is rejected.
func NewTracker(m Motor, cfg Config) (*Tracker, error) {
	if !(cfg.StepDeg > 0) || math.IsInf(cfg.StepDeg, 0) {
		return nil, fmt.Errorf("step must be > 0, got %g", cfg.StepDeg)
	}
	if !(cfg.Tolerance > 0) || math.IsInf(cfg.Tolerance, 0) {
		return nil, fmt.Errorf("tolerance must be > 0, got %g", cfg.Tolerance)
	}
	if cfg.StepDeg >= 2*cfg.Tolerance {
		return nil, fmt.Errorf("step %g must be smaller than twice the tolerance %g", cfg.StepDeg, cfg.Tolerance)
	}
	if r, ok := m.(Resolver); ok {
		inc := r.DegreesPerMicrostep()
		n := cfg.StepDeg / inc
		if math.Round(n) < 1 || math.Abs(n-math.Round(n)) > stepEpsilon {
			return nil, fmt.Errorf("step %g is not a whole number of %g° motor increments", cfg.StepDeg, inc)
		}
	}
	if cfg.MaxIterations <= 0 {
		// Enough for two full turns.
		cfg.MaxIterations = int(math.Ceil(720 / cfg.StepDeg))
	}
	return &Tracker{motor: m, cfg: cfg}, nil
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

// IterationsFor predicts how many steps Adjust takes from start to target:
// ceil((|target-start| - Tolerance) / StepDeg), since stepping stops at the
// edge of the tolerance window.
func (t *Tracker) IterationsFor(start, target float64) int {
	excess := math.Abs(target-start) - t.cfg.Tolerance
	if excess <= 0 {
		return 0
	}
	return int(math.Ceil(excess / t.cfg.StepDeg))
}

// Adjust wakes the motor and steps toward target until the heading is
// within tolerance, updating st optimistically on every step. The motor is
// put back to sleep on every return path.
func (t *Tracker) Adjust(ctx context.Context, target float64, st *AngleState) (res Result, err error) {
	res = Result{Target: target, Start: st.Orientation}
	if !finite(target) || !finite(st.Orientation) {
		res.Final = st.Orientation
		return res, fmt.Errorf("%w: heading %g, target %g", ErrInvalidAngle, st.Orientation, target)
	}

	if err := t.motor.Wake(); err != nil {
		return res, fmt.Errorf("wake motor: %w", err)
	}
	defer func() {
		if serr := t.motor.Sleep(); serr != nil && err == nil {
			err = fmt.Errorf("sleep motor: %w", serr)
		}
		res.Final = st.Orientation
	}()

	for math.Abs(st.Orientation-target) > t.cfg.Tolerance {
		if res.Iterations >= t.cfg.MaxIterations {
			return res, fmt.Errorf("%w: %d steps, heading %.2f, target %.2f", ErrNotConverged, res.Iterations, st.Orientation, target)
		}

		step, direction := t.cfg.StepDeg, "forward"
		if st.Orientation > target {
			step, direction = -step, "backward"
		}
		if err := t.motor.MoveDegrees(step); err != nil {
			return res, fmt.Errorf("step %d: %w", res.Iterations+1, err)
		}
		st.MotorAngle += step
		st.Orientation += step
		res.Iterations++
		debug.Motor(st.MotorAngle, direction)

		if err := sleepCtx(ctx, t.cfg.SettleDelay); err != nil {
			return res, err
		}
	}

	res.Converged = true
	debug.Info("Position adjusted (%d steps, heading %.2f, target %.2f)", res.Iterations, st.Orientation, target)
	return res, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
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
