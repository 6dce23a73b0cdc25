package weekclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minutesFormula is the reference definition ElapsedForward must agree with.
func minutesFormula(a, b Reading) Duration {
	return DurationOf((b.Minutes() - a.Minutes() + MinutesPerWeek) % MinutesPerWeek)
}

// sampleReadings covers every day with a spread of hours and minutes,
// including both ends of the week.
func sampleReadings() []Reading {
	var out []Reading
	for day := 0; day < DaysPerWeek; day++ {
		for _, hour := range []int{0, 1, 7, 12, 18, 22, 23} {
			for _, minute := range []int{0, 1, 29, 30, 59} {
				out = append(out, Encode(day, hour, minute))
			}
		}
	}
	return out
}

func TestEncode(t *testing.T) {
	assert.Equal(t, Reading(0), Encode(0, 0, 0))
	assert.Equal(t, Reading(62359), Encode(6, 23, 59))
	assert.Equal(t, Reading(10800), Encode(1, 8, 0))
	assert.Equal(t, WeekMin, Encode(0, 0, 0))
	assert.Equal(t, WeekMax, Encode(6, 23, 59))
}

func TestEncode_PanicsOnOutOfRange(t *testing.T) {
	tests := []struct {
		name              string
		day, hour, minute int
	}{
		{"day too large", 7, 0, 0},
		{"negative day", -1, 0, 0},
		{"hour too large", 0, 24, 0},
		{"minute too large", 0, 0, 60},
		{"negative minute", 3, 10, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { Encode(tt.day, tt.hour, tt.minute) })

			_, err := New(tt.day, tt.hour, tt.minute)
			assert.ErrorIs(t, err, ErrInvalidReading)
		})
	}
}

func TestParse(t *testing.T) {
	r, err := Parse(11930)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Day())
	assert.Equal(t, 19, r.Hour())
	assert.Equal(t, 30, r.Minute())

	for _, bad := range []int{-1, 62360, 70000, 12460, 12400, 2500} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidReading, "value %d", bad)
	}
}

func TestElapsedForward_Fixture(t *testing.T) {
	a := Encode(6, 23, 30)
	b := Encode(0, 1, 30)

	ab := ElapsedForward(a, b)
	assert.Equal(t, Duration(200), ab)
	assert.Equal(t, 120, ab.TotalMinutes())

	ba := ElapsedForward(b, a)
	assert.Equal(t, MinutesPerWeek-120, ba.TotalMinutes())
	assert.Equal(t, Duration(62200), ba)
}

func TestElapsedForward_SameReadingIsZero(t *testing.T) {
	for _, r := range sampleReadings() {
		assert.Equal(t, Duration(0), ElapsedForward(r, r), "reading %s", r)
	}
}

func TestElapsedForward_MatchesMinutesFormula(t *testing.T) {
	readings := sampleReadings()
	for _, a := range readings {
		for _, b := range readings {
			got := ElapsedForward(a, b)
			require.Equal(t, minutesFormula(a, b), got, "from %s to %s", a, b)
			require.Less(t, got.Hours(), 24)
			require.Less(t, got.Minutes(), 60)
		}
	}
}

func TestElapsedForward_WalksPartitionTheWeek(t *testing.T) {
	readings := sampleReadings()
	for _, a := range readings {
		for _, b := range readings {
			if a == b {
				continue
			}
			sum := ElapsedForward(a, b).TotalMinutes() + ElapsedForward(b, a).TotalMinutes()
			require.Equal(t, FullWeek.TotalMinutes(), sum, "from %s to %s", a, b)
		}
	}
}

func TestDurationOrderingMatchesMinutes(t *testing.T) {
	durations := []int{0, 1, 59, 60, 61, 1439, 1440, 1441, 2 * MinutesPerDay, MinutesPerWeek - 1}
	for i := 1; i < len(durations); i++ {
		assert.Less(t, DurationOf(durations[i-1]), DurationOf(durations[i]))
	}
	assert.Equal(t, Duration(10000), DurationOf(MinutesPerDay))
	assert.Equal(t, 90*time.Minute, DurationOf(90).Std())
}

func TestAt(t *testing.T) {
	// 2026-01-05 is a Monday.
	utc := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	assert.Equal(t, Encode(1, 9, 15), At(utc, time.UTC))
	assert.Equal(t, Encode(1, 9, 15), At(utc, nil))

	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Equal(t, Encode(1, 18, 15), At(utc, tokyo))

	// Crossing midnight backwards into Sunday.
	early := time.Date(2026, 1, 5, 2, 0, 0, 0, time.UTC)
	west := time.FixedZone("UTC-6", -6*60*60)
	assert.Equal(t, Encode(0, 20, 0), At(early, west))
}

func TestReadingString(t *testing.T) {
	assert.Equal(t, "Mon 08:05", Encode(1, 8, 5).String())
	assert.Equal(t, "Sat 23:59", WeekMax.String())
	assert.Equal(t, "0d02h00m", Duration(200).String())
}
