// Package schedule holds a tenant's recurring weekly business hours and the
// rules for validating them and admitting bookings against them.
package schedule

import (
	"errors"
	"fmt"
	"sort"

	"slotkeeper/internal/weekclock"
)

var (
	// ErrValidation is the umbrella for every rejected schedule write.
	ErrValidation = errors.New("schedule validation failed")
	// ErrMalformedBlock marks a block whose start equals its end.
	ErrMalformedBlock = errors.New("block start and end cannot be the same")
)

// Block is one contiguous weekly interval. When End is not after Start the
// block wraps past Saturday 23:59 into Sunday 00:00.
type Block struct {
	Start weekclock.Reading `json:"start"`
	End   weekclock.Reading `json:"end"`
}

// NewBlock builds a block from day/hour/minute fields, rejecting out-of-range
// fields and zero-length blocks.
func NewBlock(startDay, startHour, startMinute, endDay, endHour, endMinute int) (Block, error) {
	start, err := weekclock.New(startDay, startHour, startMinute)
	if err != nil {
		return Block{}, fmt.Errorf("%w: start: %w", ErrValidation, err)
	}
	end, err := weekclock.New(endDay, endHour, endMinute)
	if err != nil {
		return Block{}, fmt.Errorf("%w: end: %w", ErrValidation, err)
	}
	b := Block{Start: start, End: end}
	if err := b.check(); err != nil {
		return Block{}, err
	}
	return b, nil
}

func (b Block) check() error {
	if b.Start == b.End {
		return fmt.Errorf("%w: %w", ErrValidation, ErrMalformedBlock)
	}
	return nil
}

// Wraps reports whether the block crosses the end of the week.
func (b Block) Wraps() bool {
	return b.End <= b.Start
}

// Capacity is the forward length of the block.
func (b Block) Capacity() weekclock.Duration {
	return weekclock.ElapsedForward(b.Start, b.End)
}

// covers tests a reading against the block with both ends inclusive. A
// wrapping block is split into [Start, WeekMax] and [WeekMin, End].
func (b Block) covers(r weekclock.Reading) bool {
	if !b.Wraps() {
		return r >= b.Start && r <= b.End
	}
	return (r >= b.Start && r <= weekclock.WeekMax) ||
		(r >= weekclock.WeekMin && r <= b.End)
}

func (b Block) String() string {
	return fmt.Sprintf("%s-%s", b.Start, b.End)
}

// Overlaps reports whether either block has an endpoint inside the other.
// Touching endpoints count as overlapping.
func Overlaps(x, y Block) bool {
	return x.covers(y.Start) || x.covers(y.End) ||
		y.covers(x.Start) || y.covers(x.End)
}

// OverlapError identifies the first pair of overlapping blocks by index.
type OverlapError struct {
	I, J int
	A, B Block
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("blocks[%d] (%s) overlaps with blocks[%d] (%s)", e.I, e.A, e.J, e.B)
}

func (e *OverlapError) Unwrap() error { return ErrValidation }

// BlockError identifies a malformed block by index.
type BlockError struct {
	Index int
	Err   error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("blocks[%d]: %v", e.Index, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

// Validate checks every block and every ordered pair (i, j), i != j. The first
// violation found is returned.
func Validate(blocks []Block) error {
	for i, b := range blocks {
		if err := b.check(); err != nil {
			return &BlockError{Index: i, Err: err}
		}
	}
	for i := range blocks {
		for j := range blocks {
			if i == j {
				continue
			}
			if Overlaps(blocks[i], blocks[j]) {
				return &OverlapError{I: i, J: j, A: blocks[i], B: blocks[j]}
			}
		}
	}
	return nil
}

// Schedule is a tenant's set of weekly blocks. NonStop makes the blocks irrelevant.
type Schedule struct {
	NonStop bool    `json:"operates_non_stop"`
	Blocks  []Block `json:"blocks"`
}

// Replace validates the new set and swaps it in whole. On error the schedule
// is left untouched.
func (s *Schedule) Replace(blocks []Block) error {
	if err := Validate(blocks); err != nil {
		return err
	}
	s.Blocks = append([]Block(nil), blocks...)
	return nil
}

// Ordered returns the blocks sorted by starting weekday with Sunday last,
// the order tenants see them in.
func (s Schedule) Ordered() []Block {
	out := append([]Block(nil), s.Blocks...)
	rank := func(b Block) int {
		day := b.Start.Day()
		if day == 0 {
			day = weekclock.DaysPerWeek
		}
		return day
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i].Start < out[j].Start
	})
	return out
}
