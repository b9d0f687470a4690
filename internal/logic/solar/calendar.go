package solar

import (
	"fmt"
	"time"
)

var daysInMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// IsLeapYear reports whether year has a February 29th.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DayOfYear returns the 1-based ordinal day for a calendar date.
func DayOfYear(year, month, day int) (int, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("%w: month %d", ErrInvalidDayOfYear, month)
	}
	limit := daysInMonth[month-1]
	if month == 2 && IsLeapYear(year) {
		limit = 29
	}
	if day < 1 || day > limit {
		return 0, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDayOfYear, year, month, day)
	}

	doy := day
	for m := 0; m < month-1; m++ {
		doy += daysInMonth[m]
		if m == 1 && IsLeapYear(year) {
			doy++
		}
	}
	return doy, nil
}

// FixFromTime converts a wall-clock time to a TimeFix in t's location.
func FixFromTime(t time.Time) TimeFix {
	return TimeFix{
		Hour:      t.Hour(),
		Minute:    t.Minute(),
		DayOfYear: t.YearDay(),
	}
}

// UTCOffsetHours returns the offset of t's zone from UTC in hours.
func UTCOffsetHours(t time.Time) float64 {
	_, offset := t.Zone()
	return float64(offset) / 3600
}
