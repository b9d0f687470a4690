package solar

import (
	"errors"
	"testing"
	"time"
)

func TestDayOfYear(t *testing.T) {
	cases := []struct {
		year, month, day int
		want             int
	}{
		{2025, 1, 1, 1},
		{2025, 2, 25, 56},
		{2025, 12, 31, 365},
		{2024, 3, 1, 61},
		{2024, 12, 31, 366},
		{2000, 2, 29, 60},
		{1900, 3, 1, 60},
	}
	for _, tc := range cases {
		got, err := DayOfYear(tc.year, tc.month, tc.day)
		if err != nil {
			t.Errorf("DayOfYear(%d, %d, %d): %v", tc.year, tc.month, tc.day, err)
			continue
		}
		if got != tc.want {
			t.Errorf("DayOfYear(%d, %d, %d) = %d, want %d", tc.year, tc.month, tc.day, got, tc.want)
		}
		// Cross-check against the time package.
		yd := time.Date(tc.year, time.Month(tc.month), tc.day, 0, 0, 0, 0, time.UTC).YearDay()
		if got != yd {
			t.Errorf("DayOfYear(%d, %d, %d) = %d, time.YearDay = %d", tc.year, tc.month, tc.day, got, yd)
		}
	}
}

func TestDayOfYear_Invalid(t *testing.T) {
	cases := []struct{ year, month, day int }{
		{2025, 2, 29},
		{1900, 2, 29},
		{2025, 13, 1},
		{2025, 0, 1},
		{2025, 4, 31},
		{2025, 1, 0},
	}
	for _, tc := range cases {
		if _, err := DayOfYear(tc.year, tc.month, tc.day); !errors.Is(err, ErrInvalidDayOfYear) {
			t.Errorf("DayOfYear(%d, %d, %d) err = %v, want ErrInvalidDayOfYear", tc.year, tc.month, tc.day, err)
		}
	}
}

func TestIsLeapYear(t *testing.T) {
	cases := map[int]bool{1900: false, 2000: true, 2023: false, 2024: true, 2100: false}
	for year, want := range cases {
		if got := IsLeapYear(year); got != want {
			t.Errorf("IsLeapYear(%d) = %v, want %v", year, got, want)
		}
	}
}

func TestFixFromTime(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	ts := time.Date(2025, 2, 25, 10, 15, 42, 0, est)

	fix := FixFromTime(ts)
	want := TimeFix{Hour: 10, Minute: 15, DayOfYear: 56}
	if fix != want {
		t.Errorf("FixFromTime = %+v, want %+v", fix, want)
	}
	if off := UTCOffsetHours(ts); off != -5 {
		t.Errorf("UTCOffsetHours = %v, want -5", off)
	}
}
