package rtc

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/SunTrack/internal/debug"
	"github.com/cjeanneret/SunTrack/internal/logic/solar"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DS3231Addr is the fixed I²C address of the DS3231.
const DS3231Addr uint16 = 0x68

const (
	regSeconds = 0x00
	regStatus  = 0x0F

	statusOSF   = 0x80 // oscillator stop flag
	hour12Mode  = 0x40
	hourPM      = 0x20
	centuryFlag = 0x80
)

// ErrOscillatorStopped means the RTC lost power and its time is not valid.
var ErrOscillatorStopped = errors.New("rtc oscillator stopped, time not set")

// DS3231 is a handle to a DS3231 real-time clock. The chip keeps local
// time; loc is the zone it was set in.
type DS3231 struct {
	c   conn.Conn
	loc *time.Location
}

// NewDS3231 returns a DS3231 on bus b. utcOffset is the zone the clock was
// set in, in hours.
func NewDS3231(b i2c.Bus, addr uint16, utcOffset float64) *DS3231 {
	if addr == 0 {
		addr = DS3231Addr
	}
	return &DS3231{
		c:   &i2c.Dev{Bus: b, Addr: addr},
		loc: zone(utcOffset),
	}
}

// OpenDS3231 initializes the host, opens the named I²C bus ("" for the
// first one) and returns the clock with the bus to close when done.
func OpenDS3231(busName string, addr uint16, utcOffset float64) (*DS3231, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	return NewDS3231(b, addr, utcOffset), b, nil
}

// Time reads the current date and time.
func (d *DS3231) Time() (time.Time, error) {
	status := make([]byte, 1)
	if err := d.c.Tx([]byte{regStatus}, status); err != nil {
		return time.Time{}, fmt.Errorf("ds3231: read status: %w", err)
	}
	if status[0]&statusOSF != 0 {
		return time.Time{}, ErrOscillatorStopped
	}

	r := make([]byte, 7)
	if err := d.c.Tx([]byte{regSeconds}, r); err != nil {
		return time.Time{}, fmt.Errorf("ds3231: read time: %w", err)
	}

	sec := fromBCD(r[0] & 0x7F)
	minute := fromBCD(r[1] & 0x7F)
	hour := decodeHour(r[2])
	day := fromBCD(r[4] & 0x3F)
	month := fromBCD(r[5] & 0x1F)
	year := 2000 + fromBCD(r[6])
	if r[5]&centuryFlag != 0 {
		year += 100
	}
	debug.Trace("DS3231 raw % x", r)

	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, d.loc), nil
}

// Now implements Source.
func (d *DS3231) Now() (solar.TimeFix, error) {
	t, err := d.Time()
	if err != nil {
		return solar.TimeFix{}, err
	}
	return solar.FixFromTime(t), nil
}

// Set writes t (converted to the clock's zone) in 24-hour mode and clears
// the oscillator stop flag.
func (d *DS3231) Set(t time.Time) error {
	t = t.In(d.loc)
	year := t.Year() - 2000
	if year < 0 || year > 199 {
		return fmt.Errorf("ds3231: year %d out of range", t.Year())
	}
	month := toBCD(int(t.Month()))
	if year >= 100 {
		month |= centuryFlag
		year -= 100
	}

	w := []byte{
		regSeconds,
		toBCD(t.Second()),
		toBCD(t.Minute()),
		toBCD(t.Hour()),
		toBCD(int(t.Weekday()) + 1),
		toBCD(t.Day()),
		month,
		toBCD(year),
	}
	if err := d.c.Tx(w, nil); err != nil {
		return fmt.Errorf("ds3231: write time: %w", err)
	}

	status := make([]byte, 1)
	if err := d.c.Tx([]byte{regStatus}, status); err != nil {
		return fmt.Errorf("ds3231: read status: %w", err)
	}
	if err := d.c.Tx([]byte{regStatus, status[0] &^ statusOSF}, nil); err != nil {
		return fmt.Errorf("ds3231: clear status: %w", err)
	}
	return nil
}

func decodeHour(b byte) int {
	if b&hour12Mode == 0 {
		return fromBCD(b & 0x3F)
	}
	h := fromBCD(b & 0x1F)
	if h == 12 {
		h = 0
	}
	if b&hourPM != 0 {
		h += 12
	}
	return h
}

func fromBCD(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

func toBCD(v int) byte {
	return byte(v/10)<<4 | byte(v%10)
}
