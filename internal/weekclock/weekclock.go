// Package weekclock encodes positions inside a recurring 7-day week and the
// elapsed time between them.
//
// A Reading is stored as the decimal concatenation day*10000 + hour*100 + minute,
// so Sunday 00:00 is 0 and Saturday 23:59 is 62359. A Duration uses the same
// digit layout (days, hours, minutes) with hours < 24 and minutes < 60, which
// keeps durations comparable with the ordinary integer operators.
package weekclock

import (
	"errors"
	"fmt"
	"time"
)

const (
	DaysPerWeek     = 7
	MinutesPerDay   = 24 * 60
	MinutesPerWeek  = DaysPerWeek * MinutesPerDay
	dayFactor       = 10000
	hourFactor      = 100
	weekOffset      = DaysPerWeek * dayFactor
	maxEncodedValue = 6*dayFactor + 23*hourFactor + 59
)

// ErrInvalidReading is returned by Parse for values outside the week layout.
var ErrInvalidReading = errors.New("invalid weekly reading")

// Reading is a (day, hour, minute) position inside the week. Day 0 is Sunday,
// matching time.Weekday.
type Reading int

// Duration is the forward distance between two readings in day/hour/minute digits.
type Duration int

var (
	WeekMin = Encode(0, 0, 0)
	WeekMax = Encode(6, 23, 59)

	// FullWeek is seven whole days. ElapsedForward never returns it.
	FullWeek = Duration(weekOffset)
)

// Encode packs a reading. Out-of-range fields are a programming error and panic.
func Encode(day, hour, minute int) Reading {
	if err := checkFields(day, hour, minute); err != nil {
		panic(err)
	}
	return Reading(day*dayFactor + hour*hourFactor + minute)
}

// Parse validates an already encoded value coming from storage or a request.
func Parse(v int) (Reading, error) {
	if v < 0 || v > maxEncodedValue {
		return 0, fmt.Errorf("%w: %d", ErrInvalidReading, v)
	}
	r := Reading(v)
	if err := checkFields(r.Day(), r.Hour(), r.Minute()); err != nil {
		return 0, err
	}
	return r, nil
}

// New is the error-returning variant of Encode for untrusted input.
func New(day, hour, minute int) (Reading, error) {
	if err := checkFields(day, hour, minute); err != nil {
		return 0, err
	}
	return Reading(day*dayFactor + hour*hourFactor + minute), nil
}

func checkFields(day, hour, minute int) error {
	switch {
	case day < 0 || day >= DaysPerWeek:
		return fmt.Errorf("%w: day %d out of range 0-6", ErrInvalidReading, day)
	case hour < 0 || hour > 23:
		return fmt.Errorf("%w: hour %d out of range 0-23", ErrInvalidReading, hour)
	case minute < 0 || minute > 59:
		return fmt.Errorf("%w: minute %d out of range 0-59", ErrInvalidReading, minute)
	}
	return nil
}

// At returns the local weekly reading of t in loc. A nil loc means UTC.
func At(t time.Time, loc *time.Location) Reading {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Encode(int(local.Weekday()), local.Hour(), local.Minute())
}

func (r Reading) Day() int    { return int(r) / dayFactor }
func (r Reading) Hour() int   { return int(r) / hourFactor % 100 }
func (r Reading) Minute() int { return int(r) % hourFactor }

// Weekday returns the day field as a time.Weekday.
func (r Reading) Weekday() time.Weekday { return time.Weekday(r.Day()) }

// Minutes returns the number of minutes since Sunday 00:00.
func (r Reading) Minutes() int {
	return r.Day()*MinutesPerDay + r.Hour()*60 + r.Minute()
}

func (r Reading) String() string {
	return fmt.Sprintf("%s %02d:%02d", r.Weekday().String()[:3], r.Hour(), r.Minute())
}

// ElapsedForward walks from a to b, crossing the end of the week at most once.
// The subtraction is done per digit group with borrows so the result stays in
// the normalized day/hour/minute layout.
func ElapsedForward(a, b Reading) Duration {
	from, to := int(a), int(b)
	if to < from {
		to += weekOffset
	}

	days := to/dayFactor - from/dayFactor
	hours := to/hourFactor%100 - from/hourFactor%100
	minutes := to%hourFactor - from%hourFactor

	if minutes < 0 {
		minutes += 60
		hours--
	}
	if hours < 0 {
		hours += 24
		days--
	}
	return Duration(days*dayFactor + hours*hourFactor + minutes)
}

// DurationOf re-expresses a minute count in the digit layout. Negative input panics.
func DurationOf(minutes int) Duration {
	if minutes < 0 {
		panic(fmt.Sprintf("weekclock: negative duration %d", minutes))
	}
	days := minutes / MinutesPerDay
	rest := minutes % MinutesPerDay
	return Duration(days*dayFactor + rest/60*hourFactor + rest%60)
}

func (d Duration) Days() int    { return int(d) / dayFactor }
func (d Duration) Hours() int   { return int(d) / hourFactor % 100 }
func (d Duration) Minutes() int { return int(d) % hourFactor }

// TotalMinutes converts the duration back to plain minutes.
func (d Duration) TotalMinutes() int {
	return d.Days()*MinutesPerDay + d.Hours()*60 + d.Minutes()
}

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d.TotalMinutes()) * time.Minute
}

func (d Duration) String() string {
	return fmt.Sprintf("%dd%02dh%02dm", d.Days(), d.Hours(), d.Minutes())
}
