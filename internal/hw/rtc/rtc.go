package rtc

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/SunTrack/internal/logic/solar"
)

// Source names accepted by the config.
const (
	SourceFixed  = "fixed"
	SourceSystem = "system"
	SourceDS3231 = "ds3231"
)

// ErrUnknownSource is returned for an unsupported clock source name.
var ErrUnknownSource = errors.New("unknown clock source")

// Source provides the local time of day used for the solar computation.
type Source interface {
	Now() (solar.TimeFix, error)
}

// Fixed always returns the same time fix. Used on the bench and in tests.
type Fixed struct {
	Fix solar.TimeFix
}

func (f Fixed) Now() (solar.TimeFix, error) {
	return f.Fix, nil
}

// System reads the host wall clock in a fixed UTC offset.
type System struct {
	loc *time.Location
	now func() time.Time
}

// NewSystem returns a wall-clock source for the given UTC offset in hours.
func NewSystem(utcOffset float64) *System {
	return &System{
		loc: zone(utcOffset),
		now: time.Now,
	}
}

func (s *System) Now() (solar.TimeFix, error) {
	return solar.FixFromTime(s.now().In(s.loc)), nil
}

func zone(utcOffset float64) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+g", utcOffset), int(utcOffset*3600))
}

// Options selects and parameterizes a clock source.
type Options struct {
	Source    string
	Fix       solar.TimeFix // for SourceFixed
	UTCOffset float64       // hours
	I2CBus    string        // for SourceDS3231, "" = first bus
	I2CAddr   uint16
}

// New builds the configured clock. The returned close function releases
// any bus the source holds and is never nil.
func New(o Options) (Source, func() error, error) {
	noop := func() error { return nil }
	switch o.Source {
	case SourceFixed, "":
		return Fixed{Fix: o.Fix}, noop, nil
	case SourceSystem:
		return NewSystem(o.UTCOffset), noop, nil
	case SourceDS3231:
		d, bus, err := OpenDS3231(o.I2CBus, o.I2CAddr, o.UTCOffset)
		if err != nil {
			return nil, noop, err
		}
		return d, bus.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: %q", ErrUnknownSource, o.Source)
	}
}
