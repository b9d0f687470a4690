package solar

import (
	"errors"
	"math"
	"testing"
)

const tolerance = 0.01

var philadelphia = Site{Latitude: 39.9526, Longitude: -75.1652, UTCOffset: -5}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestCalculate_ReferenceValues(t *testing.T) {
	cases := []struct {
		name      string
		site      Site
		fix       TimeFix
		elevation float64
		azimuth   float64
	}{
		{"philadelphia_morning", philadelphia, TimeFix{Hour: 10, Minute: 15, DayOfYear: 56}, 34.0375, 143.7318},
		{"philadelphia_afternoon", philadelphia, TimeFix{Hour: 15, Minute: 0, DayOfYear: 56}, 28.0396, 227.9333},
		{"philadelphia_solstice_noon", philadelphia, TimeFix{Hour: 12, Minute: 0, DayOfYear: 172}, 73.4944, 178.1128},
		{"sydney_new_year", Site{Latitude: -33.8688, Longitude: 151.2093, UTCOffset: 10}, TimeFix{Hour: 9, Minute: 0, DayOfYear: 1}, 49.6102, 86.3760},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := Calculate(tc.site, tc.fix)
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if !almostEqual(a.Elevation, tc.elevation, tolerance) {
				t.Errorf("elevation = %.4f, want %.4f", a.Elevation, tc.elevation)
			}
			if !almostEqual(a.Azimuth, tc.azimuth, tolerance) {
				t.Errorf("azimuth = %.4f, want %.4f", a.Azimuth, tc.azimuth)
			}
		})
	}
}

func TestCalculate_IntermediateValues(t *testing.T) {
	a, err := Calculate(philadelphia, TimeFix{Hour: 10, Minute: 15, DayOfYear: 56})
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(a.Declination, -8.7852, 1e-3) {
		t.Errorf("declination = %.4f, want -8.7852", a.Declination)
	}
	if !almostEqual(a.TimeCorrection, -3.3227, 1e-3) {
		t.Errorf("time correction = %.4f, want -3.3227", a.TimeCorrection)
	}
	if !almostEqual(a.HourAngle, -29.7379, 1e-3) {
		t.Errorf("hour angle = %.4f, want -29.7379", a.HourAngle)
	}
	if !almostEqual(a.Elevation+a.Zenith, 90, 1e-9) {
		t.Errorf("elevation + zenith = %v, want 90", a.Elevation+a.Zenith)
	}
}

func TestCalculate_Idempotent(t *testing.T) {
	fix := TimeFix{Hour: 10, Minute: 15, DayOfYear: 56}
	first, err := Calculate(philadelphia, fix)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Calculate(philadelphia, fix)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("call %d returned %+v, want %+v", i, again, first)
		}
	}
}

func TestElevationAzimuthWrappers(t *testing.T) {
	fix := TimeFix{Hour: 10, Minute: 15, DayOfYear: 56}
	a, _ := Calculate(philadelphia, fix)

	sea, err := Elevation(philadelphia, fix)
	if err != nil || sea != a.Elevation {
		t.Errorf("Elevation = %v, %v; want %v", sea, err, a.Elevation)
	}
	az, err := Azimuth(philadelphia, fix)
	if err != nil || az != a.Azimuth {
		t.Errorf("Azimuth = %v, %v; want %v", az, err, a.Azimuth)
	}
}

func TestCalculate_AzimuthRange(t *testing.T) {
	for doy := 1; doy <= 366; doy += 15 {
		for hour := 0; hour < 24; hour++ {
			for _, lat := range []float64{-66, -33.8, 0, 39.9526, 70} {
				site := Site{Latitude: lat, Longitude: -75.1652, UTCOffset: -5}
				a, err := Calculate(site, TimeFix{Hour: hour, Minute: 30, DayOfYear: doy})
				if errors.Is(err, ErrDegenerateAzimuth) {
					continue
				}
				if err != nil {
					t.Fatalf("Calculate: %v", err)
				}
				if a.Azimuth < 0 || a.Azimuth >= 360 {
					t.Fatalf("lat %v day %d hour %d: azimuth %v outside [0, 360)", lat, doy, hour, a.Azimuth)
				}
				if a.Elevation < -90 || a.Elevation > 90 {
					t.Fatalf("elevation %v outside [-90, 90]", a.Elevation)
				}
			}
		}
	}
}

func TestCalculate_DegeneratePole(t *testing.T) {
	north := Site{Latitude: 90, Longitude: 0, UTCOffset: 0}
	fix := TimeFix{Hour: 12, Minute: 0, DayOfYear: 172}

	a, err := Calculate(north, fix)
	if !errors.Is(err, ErrDegenerateAzimuth) {
		t.Fatalf("err = %v, want ErrDegenerateAzimuth", err)
	}
	// At the pole the sun's elevation equals its declination.
	if !almostEqual(a.Elevation, a.Declination, 1e-6) {
		t.Errorf("elevation %v != declination %v at the pole", a.Elevation, a.Declination)
	}

	sea, err := Elevation(north, fix)
	if err != nil {
		t.Errorf("Elevation at pole should succeed, got %v", err)
	}
	if sea != a.Elevation {
		t.Errorf("Elevation = %v, want %v", sea, a.Elevation)
	}
	if _, err := Azimuth(north, fix); !errors.Is(err, ErrDegenerateAzimuth) {
		t.Errorf("Azimuth err = %v, want ErrDegenerateAzimuth", err)
	}
}

func TestCalculate_InvalidInputs(t *testing.T) {
	good := TimeFix{Hour: 10, Minute: 15, DayOfYear: 56}
	cases := []struct {
		name string
		site Site
		fix  TimeFix
		want error
	}{
		{"latitude_high", Site{Latitude: 90.5}, good, ErrInvalidLatitude},
		{"latitude_nan", Site{Latitude: math.NaN()}, good, ErrInvalidLatitude},
		{"longitude_low", Site{Longitude: -181}, good, ErrInvalidLongitude},
		{"longitude_nan", Site{Longitude: math.NaN()}, good, ErrInvalidLongitude},
		{"utc_offset_nan", Site{Latitude: 39.9526, Longitude: -75.1652, UTCOffset: math.NaN()}, good, ErrInvalidUTCOffset},
		{"utc_offset_inf", Site{UTCOffset: math.Inf(-1)}, good, ErrInvalidUTCOffset},
		{"utc_offset_15", Site{UTCOffset: 15}, good, ErrInvalidUTCOffset},
		{"utc_offset_minus_13", Site{UTCOffset: -13}, good, ErrInvalidUTCOffset},
		{"day_zero", philadelphia, TimeFix{Hour: 10, DayOfYear: 0}, ErrInvalidDayOfYear},
		{"day_367", philadelphia, TimeFix{Hour: 10, DayOfYear: 367}, ErrInvalidDayOfYear},
		{"hour_24", philadelphia, TimeFix{Hour: 24, DayOfYear: 56}, ErrInvalidTime},
		{"minute_negative", philadelphia, TimeFix{Hour: 10, Minute: -1, DayOfYear: 56}, ErrInvalidTime},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Calculate(tc.site, tc.fix); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNormalizeHourAngle_Range(t *testing.T) {
	for sha := -720.0; sha <= 720.0; sha += 0.37 {
		got := NormalizeHourAngle(sha)
		if got < -180 || got > 180 {
			t.Fatalf("NormalizeHourAngle(%v) = %v, outside [-180, 180]", sha, got)
		}
		// Same direction on the circle.
		if math.Abs(math.Cos(radians(got))-math.Cos(radians(sha))) > 1e-9 ||
			math.Abs(math.Sin(radians(got))-math.Sin(radians(sha))) > 1e-9 {
			t.Fatalf("NormalizeHourAngle(%v) = %v is not congruent", sha, got)
		}
	}
}

func TestNormalizeHourAngle_Boundaries(t *testing.T) {
	for _, sha := range []float64{-720, -540, -360, -180, 0, 180, 360, 540, 720} {
		got := NormalizeHourAngle(sha)
		if got < -180 || got > 180 {
			t.Errorf("NormalizeHourAngle(%v) = %v, outside [-180, 180]", sha, got)
		}
	}
	if got := NormalizeHourAngle(180); !almostEqual(math.Abs(got), 180, 1e-9) {
		t.Errorf("NormalizeHourAngle(180) = %v, want ±180", got)
	}
	if got := NormalizeHourAngle(0); !almostEqual(got, 0, 1e-12) {
		t.Errorf("NormalizeHourAngle(0) = %v, want 0", got)
	}
}

// Both folding techniques the tracker used historically must agree away
// from the ±180° seam, where they pick opposite but equivalent ends.
func TestNormalizeHourAngle_MatchesLegacyFolds(t *testing.T) {
	subtractAdd := func(sha float64) float64 {
		switch {
		case sha > 180:
			return sha - 360
		case sha < -180:
			return sha + 360
		}
		return sha
	}
	floorMod := func(sha float64) float64 {
		return (sha + 180) - math.Floor((sha+180)/360)*360 - 180
	}

	for sha := -539.9; sha < 540; sha += 0.7 {
		if almostEqual(math.Abs(sha), 180, 1e-6) {
			continue
		}
		got := NormalizeHourAngle(sha)
		if !almostEqual(got, floorMod(sha), 1e-9) {
			t.Fatalf("sha %v: got %v, floor-mod %v", sha, got, floorMod(sha))
		}
		if !almostEqual(got, subtractAdd(sha), 1e-9) {
			t.Fatalf("sha %v: got %v, subtract/add %v", sha, got, subtractAdd(sha))
		}
	}
}

func TestClampCosine(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-1.0000001, -1},
		{1.0000001, 1},
		{-5, -1},
		{5, 1},
		{0.5, 0.5},
		{math.Inf(1), 1},
		{math.Inf(-1), -1},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := ClampCosine(tc.in); got != tc.want {
			t.Errorf("ClampCosine(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestClampCosine_ContrivedAzimuthInputs(t *testing.T) {
	for lat := -89.0; lat <= 89; lat += 7.3 {
		for dec := -23.5; dec <= 23.5; dec += 4.1 {
			for zen := 0.5; zen < 180; zen += 11.7 {
				l, d, z := radians(lat), radians(dec), radians(zen)
				c := ClampCosine((math.Sin(d) - math.Sin(l)*math.Cos(z)) / (math.Cos(l) * math.Sin(z)))
				if c < -1 || c > 1 || math.IsNaN(math.Acos(c)) {
					t.Fatalf("lat %v dec %v zen %v: cos_AZ %v outside [-1, 1]", lat, dec, zen, c)
				}
			}
		}
	}
}
