package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/SunTrack/internal/debug"
	"github.com/cjeanneret/SunTrack/internal/hw/orientation"
	"github.com/cjeanneret/SunTrack/internal/hw/rtc"
	"github.com/cjeanneret/SunTrack/internal/logic/solar"
	"github.com/cjeanneret/SunTrack/internal/store"
)

// Recorder persists one sample per cycle.
type Recorder interface {
	Record(ctx context.Context, smp store.Sample) (store.Sample, error)
}

// Report is the outcome of one tracking cycle.
type Report struct {
	TakenAt time.Time     `json:"taken_at"`
	Fix     solar.TimeFix `json:"fix"`
	Angles  solar.Angles  `json:"angles"`
	Result  Result        `json:"result"`
	State   AngleState    `json:"state"`
	Error   string        `json:"error,omitempty"`
}

// LoopConfig wires the tracking loop.
type LoopConfig struct {
	Site     solar.Site
	Clock    rtc.Source
	Sensor   orientation.Sensor
	Tracker  *Tracker
	Recorder Recorder      // optional
	Interval time.Duration // pause between cycles
	OnCycle  func(Report)  // optional, called after every cycle
}

// Loop runs the read, calculate, adjust cycle.
type Loop struct {
	cfg LoopConfig

	cycleMu sync.Mutex // serializes cycles from Run and the web handler

	mu    sync.RWMutex
	state AngleState
	last  *Report
}

func NewLoop(cfg LoopConfig) *Loop {
	return &Loop{cfg: cfg}
}

// State returns the current heading estimate.
func (l *Loop) State() AngleState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Last returns the report of the latest cycle, if any.
func (l *Loop) Last() (Report, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return Report{}, false
	}
	return *l.last, true
}

// Cycle runs one cycle, waiting for any cycle already in progress.
func (l *Loop) Cycle(ctx context.Context) (Report, error) {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()
	return l.cycle(ctx)
}

func (l *Loop) cycle(ctx context.Context) (rep Report, err error) {
	rep.TakenAt = time.Now()
	defer func() {
		if err != nil {
			rep.Error = err.Error()
		}
		l.publish(rep)
	}()

	fix, err := l.cfg.Clock.Now()
	if err != nil {
		return rep, fmt.Errorf("read clock: %w", err)
	}
	rep.Fix = fix

	st := l.State()
	heading, err := l.cfg.Sensor.Angle()
	if err != nil {
		return rep, fmt.Errorf("read orientation: %w", err)
	}
	st.Orientation = heading
	debug.Verbose("Heading before adjustment: %.2f", heading)

	angles, err := solar.Calculate(l.cfg.Site, fix)
	rep.Angles = angles
	if err != nil {
		if errors.Is(err, solar.ErrDegenerateAzimuth) {
			debug.Live("Sun azimuth undefined at elevation %.2f, holding position", angles.Elevation)
		}
		rep.State = st
		l.setState(st)
		return rep, err
	}
	debug.Angles(angles.Elevation, angles.Azimuth)

	res, adjErr := l.cfg.Tracker.Adjust(ctx, angles.Azimuth, &st)
	rep.Result = res
	rep.State = st
	l.setState(st)

	if f, ok := l.cfg.Sensor.(orientation.Follower); ok {
		f.Follow(st.Orientation)
	}
	if l.cfg.Recorder != nil && (adjErr == nil || errors.Is(adjErr, ErrNotConverged)) {
		if _, err := l.cfg.Recorder.Record(ctx, store.Sample{
			TakenAt:     rep.TakenAt,
			Elevation:   angles.Elevation,
			Azimuth:     angles.Azimuth,
			Orientation: st.Orientation,
			MotorAngle:  st.MotorAngle,
			Iterations:  res.Iterations,
			Converged:   res.Converged,
		}); err != nil {
			debug.Error(fmt.Errorf("record sample: %w", err))
		}
	}
	if a, ok := l.cfg.Sensor.(orientation.Advancer); ok {
		a.Advance()
	}
	return rep, adjErr
}

// Run repeats Cycle every Interval. cycles <= 0 runs until ctx is done.
// A cycle that fails to converge or hits an undefined azimuth is logged
// and the loop keeps going; any other error stops it.
func (l *Loop) Run(ctx context.Context, cycles int) error {
	debug.Section("Tracking")
	for n := 0; cycles <= 0 || n < cycles; n++ {
		if _, err := l.Cycle(ctx); err != nil {
			switch {
			case errors.Is(err, ErrNotConverged), errors.Is(err, solar.ErrDegenerateAzimuth):
				debug.Error(err)
			default:
				return err
			}
		}
		if cycles > 0 && n == cycles-1 {
			break
		}
		if err := sleepCtx(ctx, l.cfg.Interval); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) setState(st AngleState) {
	l.mu.Lock()
	l.state = st
	l.mu.Unlock()
}

func (l *Loop) publish(rep Report) {
	l.mu.Lock()
	l.last = &rep
	l.mu.Unlock()
	if l.cfg.OnCycle != nil {
		l.cfg.OnCycle(rep)
	}
}
