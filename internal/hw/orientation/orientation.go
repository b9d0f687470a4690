package orientation

import (
	"errors"
	"fmt"
	"sync"
)

// Source names accepted by New.
const (
	SourceSimulated = "simulated"
	SourceCommanded = "commanded"
)

// ErrUnknownSource is returned by New for an unsupported source name.
var ErrUnknownSource = errors.New("unknown orientation source")

// Sensor reports the panel heading in degrees. It stands in for a real
// IMU; the tracker reads it once per cycle.
type Sensor interface {
	Angle() (float64, error)
}

// Follower is implemented by sensors with no physical measurement: after an
// adjustment they adopt the commanded heading.
type Follower interface {
	Follow(commanded float64)
}

// Advancer is implemented by sensors that change on their own between
// cycles.
type Advancer interface {
	Advance()
}

// Simulated is a dead-reckoning heading that also drifts by a fixed amount
// each cycle, which keeps the tracker busy on a bench without an IMU.
type Simulated struct {
	mu    sync.Mutex
	angle float64
	drift float64
}

// NewSimulated returns a sensor starting at initial and drifting by drift
// degrees per Advance.
func NewSimulated(initial, drift float64) *Simulated {
	return &Simulated{angle: initial, drift: drift}
}

// NewCommanded returns a sensor that only ever reports the commanded heading.
func NewCommanded(initial float64) *Simulated {
	return NewSimulated(initial, 0)
}

// New builds the named sensor.
func New(source string, initial, drift float64) (Sensor, error) {
	switch source {
	case SourceSimulated, "":
		return NewSimulated(initial, drift), nil
	case SourceCommanded:
		return NewCommanded(initial), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}

func (s *Simulated) Angle() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.angle, nil
}

func (s *Simulated) Follow(commanded float64) {
	s.mu.Lock()
	s.angle = commanded
	s.mu.Unlock()
}

func (s *Simulated) Advance() {
	s.mu.Lock()
	s.angle += s.drift
	s.mu.Unlock()
}
