package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/weekclock"
)

const (
	sun = 0
	mon = 1
	tue = 2
	fri = 5
	sat = 6
)

func block(sd, sh, sm, ed, eh, em int) Block {
	return Block{Start: weekclock.Encode(sd, sh, sm), End: weekclock.Encode(ed, eh, em)}
}

func TestNewBlock(t *testing.T) {
	b, err := NewBlock(mon, 8, 0, mon, 19, 0)
	require.NoError(t, err)
	assert.False(t, b.Wraps())
	assert.Equal(t, 11*60, b.Capacity().TotalMinutes())

	_, err = NewBlock(mon, 8, 0, mon, 8, 0)
	assert.ErrorIs(t, err, ErrMalformedBlock)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewBlock(mon, 25, 0, mon, 8, 0)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, weekclock.ErrInvalidReading)
}

func TestBlock_WrappingCapacity(t *testing.T) {
	// Friday 22:00 through the weekend to Monday 06:00.
	b := block(fri, 22, 0, mon, 6, 0)
	assert.True(t, b.Wraps())
	assert.Equal(t, (2*24+8)*60, b.Capacity().TotalMinutes())

	// Saturday night into Sunday morning.
	night := block(sat, 22, 0, sun, 2, 0)
	assert.True(t, night.Wraps())
	assert.Equal(t, weekclock.Duration(400), night.Capacity())
}

func TestOverlaps(t *testing.T) {
	monDay := block(mon, 8, 0, mon, 19, 0)

	tests := []struct {
		name string
		a, b Block
		want bool
	}{
		{"late monday into tuesday midnight", monDay, block(mon, 22, 0, tue, 0, 0), false},
		{"touching at close", monDay, block(mon, 19, 0, mon, 23, 0), true},
		{"touching at open", monDay, block(mon, 6, 0, mon, 8, 0), true},
		{"one minute gap", monDay, block(mon, 19, 1, mon, 23, 0), false},
		{"contained", monDay, block(mon, 10, 0, mon, 11, 0), true},
		{"containing", monDay, block(mon, 7, 0, mon, 20, 0), true},
		{"other day", monDay, block(tue, 8, 0, tue, 19, 0), false},
		{"wrapping vs sunday morning", block(sat, 22, 0, sun, 2, 0), block(sun, 1, 0, sun, 5, 0), true},
		{"wrapping vs saturday evening", block(sat, 22, 0, sun, 2, 0), block(sat, 18, 0, sat, 21, 59), false},
		{"wrapping vs late saturday", block(sat, 22, 0, sun, 2, 0), block(sat, 23, 0, sat, 23, 30), true},
		{"wrapping vs monday", block(fri, 22, 0, mon, 6, 0), block(mon, 8, 0, mon, 19, 0), false},
		{"wrapping vs sunday", block(fri, 22, 0, mon, 6, 0), block(sun, 10, 0, sun, 12, 0), true},
		{"two wrapping blocks", block(sat, 20, 0, sun, 1, 0), block(sat, 23, 0, sun, 3, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, Overlaps(tt.b, tt.a), "overlap must be symmetric")
		})
	}
}

func TestOverlaps_Symmetric(t *testing.T) {
	var blocks []Block
	for _, start := range []weekclock.Reading{0, 10800, 11900, 31200, 52200, 62300} {
		for _, end := range []weekclock.Reading{100, 11900, 12300, 40000, 62359} {
			if start != end {
				blocks = append(blocks, Block{Start: start, End: end})
			}
		}
	}
	for _, a := range blocks {
		for _, b := range blocks {
			require.Equal(t, Overlaps(a, b), Overlaps(b, a), "%s vs %s", a, b)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Run("disjoint week", func(t *testing.T) {
		blocks := []Block{
			block(mon, 8, 0, mon, 19, 0),
			block(tue, 8, 0, tue, 19, 0),
			block(fri, 22, 0, sat, 4, 0),
		}
		assert.NoError(t, Validate(blocks))
	})

	t.Run("empty", func(t *testing.T) {
		assert.NoError(t, Validate(nil))
	})

	t.Run("reports first overlapping pair", func(t *testing.T) {
		blocks := []Block{
			block(mon, 8, 0, mon, 19, 0),
			block(tue, 8, 0, tue, 19, 0),
			block(mon, 18, 0, mon, 21, 0),
		}
		err := Validate(blocks)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)

		var overlap *OverlapError
		require.True(t, errors.As(err, &overlap))
		assert.Equal(t, 0, overlap.I)
		assert.Equal(t, 2, overlap.J)
	})

	t.Run("identical blocks at different positions", func(t *testing.T) {
		b := block(mon, 8, 0, mon, 19, 0)
		var overlap *OverlapError
		require.True(t, errors.As(Validate([]Block{b, b}), &overlap))
		assert.Equal(t, [2]int{0, 1}, [2]int{overlap.I, overlap.J})
	})

	t.Run("malformed block", func(t *testing.T) {
		blocks := []Block{block(mon, 8, 0, mon, 19, 0), block(tue, 9, 0, tue, 9, 0)}
		err := Validate(blocks)
		var blockErr *BlockError
		require.True(t, errors.As(err, &blockErr))
		assert.Equal(t, 1, blockErr.Index)
		assert.ErrorIs(t, err, ErrMalformedBlock)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestSchedule_Replace(t *testing.T) {
	original := []Block{block(mon, 8, 0, mon, 19, 0)}
	s := Schedule{Blocks: original}

	bad := []Block{block(tue, 8, 0, tue, 12, 0), block(tue, 11, 0, tue, 15, 0)}
	require.Error(t, s.Replace(bad))
	assert.Equal(t, original, s.Blocks, "failed replace must not touch the set")

	good := []Block{block(tue, 8, 0, tue, 12, 0), block(tue, 13, 0, tue, 15, 0)}
	require.NoError(t, s.Replace(good))
	assert.Equal(t, good, s.Blocks)

	good[0] = block(sat, 1, 0, sat, 2, 0)
	assert.Equal(t, block(tue, 8, 0, tue, 12, 0), s.Blocks[0], "replace keeps its own copy")
}

func TestSchedule_Ordered(t *testing.T) {
	s := Schedule{Blocks: []Block{
		block(sun, 10, 0, sun, 14, 0),
		block(tue, 8, 0, tue, 19, 0),
		block(mon, 13, 0, mon, 19, 0),
		block(mon, 8, 0, mon, 12, 0),
	}}
	ordered := s.Ordered()
	assert.Equal(t, []Block{
		block(mon, 8, 0, mon, 12, 0),
		block(mon, 13, 0, mon, 19, 0),
		block(tue, 8, 0, tue, 19, 0),
		block(sun, 10, 0, sun, 14, 0),
	}, ordered)
	assert.Equal(t, block(sun, 10, 0, sun, 14, 0), s.Blocks[0], "ordering must not mutate the schedule")
}

func TestAdmitReadings(t *testing.T) {
	monDay := Schedule{Blocks: []Block{block(mon, 8, 0, mon, 19, 0)}}
	weekend := Schedule{Blocks: []Block{block(fri, 22, 0, mon, 6, 0)}}

	tests := []struct {
		name       string
		sched      Schedule
		start, end weekclock.Reading
		admitted   bool
		reason     RejectReason
	}{
		{"inside", monDay, weekclock.Encode(mon, 9, 0), weekclock.Encode(mon, 10, 0), true, ReasonNone},
		// Only the start is checked: a booking crossing closing time is admitted.
		{"crosses close", monDay, weekclock.Encode(mon, 18, 30), weekclock.Encode(mon, 19, 30), true, ReasonNone},
		{"starts at open", monDay, weekclock.Encode(mon, 8, 0), weekclock.Encode(mon, 9, 0), true, ReasonNone},
		{"starts at close", monDay, weekclock.Encode(mon, 19, 0), weekclock.Encode(mon, 20, 0), false, ReasonOutsideHours},
		{"before open", monDay, weekclock.Encode(mon, 7, 0), weekclock.Encode(mon, 8, 0), false, ReasonOutsideHours},
		{"other day", monDay, weekclock.Encode(tue, 9, 0), weekclock.Encode(tue, 10, 0), false, ReasonOutsideHours},
		{"longer than block", monDay, weekclock.Encode(mon, 8, 0), weekclock.Encode(mon, 20, 0), false, ReasonExceedsBlock},
		{"wrapping block saturday", weekend, weekclock.Encode(sat, 23, 0), weekclock.Encode(sun, 1, 0), true, ReasonNone},
		{"wrapping block sunday", weekend, weekclock.Encode(sun, 10, 0), weekclock.Encode(sun, 12, 0), true, ReasonNone},
		{"wrapping block monday early", weekend, weekclock.Encode(mon, 5, 0), weekclock.Encode(mon, 5, 30), true, ReasonNone},
		{"wrapping block at its end", weekend, weekclock.Encode(mon, 6, 0), weekclock.Encode(mon, 7, 0), false, ReasonOutsideHours},
		{"wrapping block thursday", weekend, weekclock.Encode(4, 12, 0), weekclock.Encode(4, 13, 0), false, ReasonOutsideHours},
		{"no blocks", Schedule{}, weekclock.Encode(mon, 9, 0), weekclock.Encode(mon, 10, 0), false, ReasonNoHours},
		{"non stop", Schedule{NonStop: true}, weekclock.Encode(mon, 3, 0), weekclock.Encode(mon, 4, 0), true, ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := AdmitReadings(tt.start, tt.end, tt.sched)
			assert.Equal(t, tt.admitted, d.Admitted)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.admitted {
				assert.NoError(t, d.Err())
			} else {
				assert.ErrorIs(t, d.Err(), ErrOutsideBusinessHours)
			}
		})
	}
}

func TestAdmit_ConvertsToLocalTime(t *testing.T) {
	s := Schedule{Blocks: []Block{block(mon, 8, 0, mon, 19, 0)}}
	loc := time.FixedZone("UTC-5", -5*60*60)

	// Monday 14:00 UTC is Monday 09:00 local.
	start := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	d := Admit(start, start.Add(time.Hour), loc, s)
	assert.True(t, d.Admitted)
	assert.Equal(t, weekclock.Encode(mon, 9, 0), d.Start)
	assert.Equal(t, 60, d.Duration.TotalMinutes())

	// Monday 09:00 UTC is Monday 04:00 local: closed.
	early := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	assert.False(t, Admit(early, early.Add(time.Hour), loc, s).Admitted)

	// Non-stop ignores the blocks.
	assert.True(t, Admit(early, early.Add(time.Hour), loc, Schedule{NonStop: true}).Admitted)
}
