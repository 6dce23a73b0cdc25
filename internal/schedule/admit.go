package schedule

import (
	"errors"
	"fmt"
	"time"

	"slotkeeper/internal/weekclock"
)

// ErrOutsideBusinessHours is returned for bookings the schedule does not admit.
var ErrOutsideBusinessHours = errors.New("booking is not within business hours")

// RejectReason says which constraint turned a booking away.
type RejectReason string

const (
	ReasonNone RejectReason = ""
	// ReasonNoHours means the tenant has no blocks and is not non-stop.
	ReasonNoHours RejectReason = "no_hours"
	// ReasonExceedsBlock means a block contains the start but is shorter than the booking.
	ReasonExceedsBlock RejectReason = "exceeds_block"
	// ReasonOutsideHours means no block contains the start.
	ReasonOutsideHours RejectReason = "outside_hours"
)

// Decision is the outcome of Admit.
type Decision struct {
	Admitted bool
	Reason   RejectReason
	// Start and End are the local readings the decision was made on.
	Start, End weekclock.Reading
	Duration   weekclock.Duration
}

// Err converts a rejection into an error wrapping ErrOutsideBusinessHours.
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	return &RejectionError{Reason: d.Reason, Start: d.Start, End: d.End}
}

// RejectionError carries the reason for an out-of-hours booking.
type RejectionError struct {
	Reason     RejectReason
	Start, End weekclock.Reading
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%v (%s - %s): %s", ErrOutsideBusinessHours, e.Start, e.End, e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrOutsideBusinessHours }

// Admit decides whether a booking from start to end fits the schedule in the
// tenant's location.
func Admit(start, end time.Time, loc *time.Location, s Schedule) Decision {
	if s.NonStop {
		return Decision{Admitted: true}
	}
	return AdmitReadings(weekclock.At(start, loc), weekclock.At(end, loc), s)
}

// AdmitReadings is Admit on already converted local readings.
//
// Only the start reading is tested for containment. A booking that starts
// inside a block and fits its capacity is admitted even when it runs past the
// block's end.
func AdmitReadings(localStart, localEnd weekclock.Reading, s Schedule) Decision {
	d := Decision{
		Start:    localStart,
		End:      localEnd,
		Duration: weekclock.ElapsedForward(localStart, localEnd),
	}
	if s.NonStop {
		d.Admitted = true
		return d
	}
	if len(s.Blocks) == 0 {
		d.Reason = ReasonNoHours
		return d
	}

	d.Reason = ReasonOutsideHours
	for _, b := range s.Blocks {
		inside := b.admitsStart(localStart)
		if d.Duration > b.Capacity() {
			if inside {
				d.Reason = ReasonExceedsBlock
			}
			continue
		}
		if inside {
			d.Admitted = true
			d.Reason = ReasonNone
			return d
		}
	}
	return d
}

// admitsStart is half-open at the block end: a booking may not start at closing time.
func (b Block) admitsStart(r weekclock.Reading) bool {
	if !b.Wraps() {
		return r >= b.Start && r < b.End
	}
	return (r >= b.Start && r <= weekclock.WeekMax) ||
		(r >= weekclock.WeekMin && r < b.End)
}
