// Package solar computes the sun's elevation and azimuth with the NOAA
// low-precision approximation (Fourier series for declination and the
// equation of time). Accuracy is within a fraction of a degree, which is
// plenty for pointing a panel.
package solar

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s1"
)

var (
	ErrInvalidLatitude  = errors.New("latitude out of range")
	ErrInvalidLongitude = errors.New("longitude out of range")
	ErrInvalidUTCOffset = errors.New("utc offset out of range")
	ErrInvalidDayOfYear = errors.New("day of year out of range")
	ErrInvalidTime      = errors.New("time of day out of range")

	// ErrDegenerateAzimuth is returned when azimuth is undefined: at a pole,
	// or with the sun exactly at the zenith.
	ErrDegenerateAzimuth = errors.New("azimuth undefined at pole or zenith")
)

// degenerateEpsilon bounds cos(lat)·sin(zenith) below which azimuth is undefined.
const degenerateEpsilon = 1e-9

// Site is the observer position. UTCOffset is in hours (EST = -5).
type Site struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	UTCOffset float64 `json:"utc_offset"`
}

// TimeFix is a local time of day on a given day of the year.
type TimeFix struct {
	Hour      int `json:"hour"`
	Minute    int `json:"minute"`
	DayOfYear int `json:"day_of_year"`
}

// Angles holds the computed sun position. All values are in degrees.
type Angles struct {
	Elevation      float64 `json:"elevation"` // SEA, 90 - zenith
	Azimuth        float64 `json:"azimuth"`   // clockwise from north, [0, 360)
	Zenith         float64 `json:"zenith"`
	Declination    float64 `json:"declination"`
	HourAngle      float64 `json:"hour_angle"`      // normalized, negative before solar noon
	TimeCorrection float64 `json:"time_correction"` // equation of time, degrees of hour angle
}

// Validate checks the site coordinates and UTC offset (-12 to +14 hours).
// NaN fails every check.
func (s Site) Validate() error {
	if !inRange(s.Latitude, -90, 90) {
		return fmt.Errorf("%w: %g", ErrInvalidLatitude, s.Latitude)
	}
	if !inRange(s.Longitude, -180, 180) {
		return fmt.Errorf("%w: %g", ErrInvalidLongitude, s.Longitude)
	}
	if !inRange(s.UTCOffset, -12, 14) {
		return fmt.Errorf("%w: %g", ErrInvalidUTCOffset, s.UTCOffset)
	}
	return nil
}

func inRange(x, lo, hi float64) bool {
	return x >= lo && x <= hi
}

// Validate checks the time fields.
func (f TimeFix) Validate() error {
	if f.DayOfYear < 1 || f.DayOfYear > 366 {
		return fmt.Errorf("%w: %d", ErrInvalidDayOfYear, f.DayOfYear)
	}
	if f.Hour < 0 || f.Hour > 23 || f.Minute < 0 || f.Minute > 59 {
		return fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, f.Hour, f.Minute)
	}
	return nil
}

// UTCHour returns the fractional hour in UTC.
func UTCHour(site Site, fix TimeFix) float64 {
	return float64(fix.Hour) + float64(fix.Minute)/60.0 - site.UTCOffset
}

// DayAngle returns the fractional year angle g in radians.
func DayAngle(dayOfYear int, utcHour float64) float64 {
	return radians((360.0 / 365.25) * (float64(dayOfYear) + utcHour/24.0))
}

// Declination returns the solar declination in degrees for day angle g (radians).
func Declination(g float64) float64 {
	return 0.396372 -
		22.91327*math.Cos(g) + 4.02543*math.Sin(g) -
		0.387205*math.Cos(2*g) + 0.051967*math.Sin(2*g) -
		0.154527*math.Cos(3*g) + 0.084798*math.Sin(3*g)
}

// TimeCorrection returns the equation-of-time correction, in degrees of
// hour angle, for day angle g (radians).
func TimeCorrection(g float64) float64 {
	return 0.004297 +
		0.107029*math.Cos(g) - 1.837877*math.Sin(g) -
		0.837378*math.Cos(2*g) - 2.340475*math.Sin(2*g)
}

// NormalizeHourAngle folds an angle in degrees into [-180, 180].
func NormalizeHourAngle(deg float64) float64 {
	return (s1.Angle(deg) * s1.Degree).Normalized().Degrees()
}

// ClampCosine limits x to the domain of acos. NaN maps to 0.
func ClampCosine(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(-1, math.Min(1, x))
}

// Calculate returns the sun position for the site at the given time. On
// ErrDegenerateAzimuth the elevation fields are still filled in.
func Calculate(site Site, fix TimeFix) (Angles, error) {
	if err := site.Validate(); err != nil {
		return Angles{}, err
	}
	if err := fix.Validate(); err != nil {
		return Angles{}, err
	}

	hour := UTCHour(site, fix)
	g := DayAngle(fix.DayOfYear, hour)
	dec := Declination(g)
	tc := TimeCorrection(g)
	sha := NormalizeHourAngle((hour-12)*15 + site.Longitude + tc)

	lat := radians(site.Latitude)
	d := radians(dec)
	zenith := math.Acos(ClampCosine(math.Sin(lat)*math.Sin(d) + math.Cos(lat)*math.Cos(d)*math.Cos(radians(sha))))

	a := Angles{
		Elevation:      90 - degrees(zenith),
		Zenith:         degrees(zenith),
		Declination:    dec,
		HourAngle:      sha,
		TimeCorrection: tc,
	}

	denom := math.Cos(lat) * math.Sin(zenith)
	if math.Abs(denom) < degenerateEpsilon {
		return a, fmt.Errorf("%w (lat %g, zenith %g)", ErrDegenerateAzimuth, site.Latitude, a.Zenith)
	}

	cosAZ := ClampCosine((math.Sin(d) - math.Sin(lat)*math.Cos(zenith)) / denom)
	az := degrees(math.Acos(cosAZ))
	if sha > 0 {
		az = 360 - az
	}
	if az >= 360 {
		az -= 360
	}
	a.Azimuth = az
	return a, nil
}

// Elevation returns the solar elevation angle (SEA) in degrees.
func Elevation(site Site, fix TimeFix) (float64, error) {
	a, err := Calculate(site, fix)
	if err != nil && !errors.Is(err, ErrDegenerateAzimuth) {
		return 0, err
	}
	return a.Elevation, nil
}

// Azimuth returns the solar azimuth angle in degrees clockwise from north.
func Azimuth(site Site, fix TimeFix) (float64, error) {
	a, err := Calculate(site, fix)
	if err != nil {
		return 0, err
	}
	return a.Azimuth, nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
