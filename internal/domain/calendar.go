package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	daysPerMonth   = 30
	monthsPerYear  = 12
	daysPerYear    = daysPerMonth * monthsPerYear
	minutesPerDay  = 24 * 60
	minutesPerHour = 60
)

// ErrUnsupportedCalendar is returned when a time axis is not on the 360-day calendar.
var ErrUnsupportedCalendar = errors.New("unsupported calendar")

// Date360 is a timestamp on the 360-day model calendar.
type Date360 struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// NewDate360 builds a Date360, normalising overflowing fields.
func NewDate360(year, month, day, hour, minute int) Date360 {
	return fromMinutes(Date360{Year: year, Month: month, Day: day, Hour: hour, Minute: minute}.minutes())
}

func (d Date360) minutes() int64 {
	days := int64(d.Year)*daysPerYear + int64(d.Month-1)*daysPerMonth + int64(d.Day-1)
	return days*minutesPerDay + int64(d.Hour)*minutesPerHour + int64(d.Minute)
}

func fromMinutes(m int64) Date360 {
	days := floorDiv(m, minutesPerDay)
	rem := m - days*minutesPerDay
	year := floorDiv(days, daysPerYear)
	doy := days - year*daysPerYear
	return Date360{
		Year:   int(year),
		Month:  int(doy/daysPerMonth) + 1,
		Day:    int(doy%daysPerMonth) + 1,
		Hour:   int(rem / minutesPerHour),
		Minute: int(rem % minutesPerHour),
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Compare returns -1, 0 or +1 as d is before, equal to or after o.
func (d Date360) Compare(o Date360) int {
	a, b := d.minutes(), o.minutes()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether d is strictly before o.
func (d Date360) Before(o Date360) bool { return d.Compare(o) < 0 }

// After reports whether d is strictly after o.
func (d Date360) After(o Date360) bool { return d.Compare(o) > 0 }

// Date truncates d to midnight.
func (d Date360) Date() Date360 {
	return Date360{Year: d.Year, Month: d.Month, Day: d.Day}
}

// AddMinutes returns d shifted by n minutes.
func (d Date360) AddMinutes(n int64) Date360 { return fromMinutes(d.minutes() + n) }

// InMonth reports whether d falls in the given year and month.
func (d Date360) InMonth(year, month int) bool { return d.Year == year && d.Month == month }

// String formats d as "YYYY-MM-DD HH:MM".
func (d Date360) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute)
}

// PreviousMonth returns the year and month before (year, month).
func PreviousMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, monthsPerYear
	}
	return year, month - 1
}

// DecodeTimes converts CF-style time offsets ("hours since 1970-01-01 00:00:00")
// on the 360_day calendar into Date360 values. Offsets are rounded to the
// nearest minute.
func DecodeTimes(units, calendar string, offsets []float64) ([]Date360, error) {
	switch strings.ToLower(strings.TrimSpace(calendar)) {
	case "360_day", "360":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCalendar, calendar)
	}

	scale, base, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}

	out := make([]Date360, len(offsets))
	origin := base.minutes()
	for i, v := range offsets {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("time offset %d is not finite", i)
		}
		out[i] = fromMinutes(origin + int64(math.Round(v*scale)))
	}
	return out, nil
}

// parseTimeUnits splits "<unit> since <reference>" into minutes-per-unit and
// the reference date.
func parseTimeUnits(units string) (float64, Date360, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, Date360{}, fmt.Errorf("parse time units %q: missing \"since\"", units)
	}

	var scale float64
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "days", "day", "d":
		scale = minutesPerDay
	case "hours", "hour", "hrs", "h":
		scale = minutesPerHour
	case "minutes", "minute", "mins", "min":
		scale = 1
	case "seconds", "second", "secs", "sec", "s":
		scale = 1.0 / 60
	default:
		return 0, Date360{}, fmt.Errorf("parse time units %q: unknown unit %q", units, parts[0])
	}

	ref, err := parseReference(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, Date360{}, fmt.Errorf("parse time units %q: %w", units, err)
	}
	return scale, ref, nil
}

// parseReference reads a reference date such as "1970-01-01", "1970-01-01 00:00:00"
// or "1970-01-01T00:00:00Z". Day 30 is accepted for every month, so time.Parse
// is only used for the clock part.
func parseReference(s string) (Date360, error) {
	s = strings.TrimSuffix(strings.Replace(s, "T", " ", 1), "Z")
	datePart, clockPart, _ := strings.Cut(s, " ")

	var d Date360
	if _, err := fmt.Sscanf(datePart, "%d-%d-%d", &d.Year, &d.Month, &d.Day); err != nil {
		return Date360{}, fmt.Errorf("reference date %q: %w", datePart, err)
	}
	if d.Month < 1 || d.Month > monthsPerYear || d.Day < 1 || d.Day > daysPerMonth {
		return Date360{}, fmt.Errorf("reference date %q out of range", datePart)
	}

	clockPart = strings.TrimSpace(clockPart)
	if clockPart == "" {
		return d, nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, clockPart); err == nil {
			d.Hour, d.Minute = t.Hour(), t.Minute()
			return d, nil
		}
	}
	return Date360{}, fmt.Errorf("reference time %q not recognised", clockPart)
}
