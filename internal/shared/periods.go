package shared

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the calendar-day wire format.
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// DateOnly truncates t to its calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar day.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrValidation, value)
	}
	return t, nil
}

// Nights counts hotel nights between check-in and check-out, rounding a
// partial day up.
func Nights(checkIn, checkOut time.Time) int {
	diff := checkOut.Sub(checkIn)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(float64(diff) / float64(day)))
}

// StayNights lists each night of a stay. The check-out day is excluded.
func StayNights(checkIn, checkOut time.Time) []time.Time {
	start := DateOnly(checkIn)
	end := DateOnly(checkOut)
	var nights []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		nights = append(nights, d)
	}
	return nights
}

// DateRange lists every calendar day in [start, end], both ends included.
func DateRange(start, end time.Time) []time.Time {
	start = DateOnly(start)
	end = DateOnly(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
