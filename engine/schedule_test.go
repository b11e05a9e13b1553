package engine_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/dose-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func fixedMed(start engine.Day, days int) engine.Medication {
	return engine.Medication{
		ID:           "med-1",
		Name:         "Amoxicillin",
		Dosage:       "500mg",
		Schedule:     []engine.LocalTime{engine.MustParseLocalTime("09:00"), engine.MustParseLocalTime("21:00")},
		StartDate:    start,
		DurationDays: days,
		TotalSupply:  14,
	}
}

// =============================================================================
// IS ACTIVE ON
// =============================================================================

func TestIsActiveOn_FixedWindow_InclusiveEnd(t *testing.T) {
	// GIVEN: A 7 day treatment starting 2024-01-01
	// WHEN: Checking the days around the window
	// THEN: 2024-01-01 through 2024-01-08 are active, the day before and
	//       2024-01-09 are not

	med := fixedMed(engine.NewDay(2024, time.January, 1), 7)

	assert.False(t, engine.IsActiveOn(med, engine.NewDay(2023, time.December, 31)))
	assert.True(t, engine.IsActiveOn(med, engine.NewDay(2024, time.January, 1)))
	assert.True(t, engine.IsActiveOn(med, engine.NewDay(2024, time.January, 4)))
	assert.True(t, engine.IsActiveOn(med, engine.NewDay(2024, time.January, 8)))
	assert.False(t, engine.IsActiveOn(med, engine.NewDay(2024, time.January, 9)))
}

func TestIsActiveOn_Ongoing(t *testing.T) {
	// GIVEN: An ongoing treatment
	// WHEN: Checking far in the future
	// THEN: Active from start on, never before

	med := fixedMed(engine.NewDay(2024, time.January, 1), engine.Ongoing)

	assert.True(t, med.IsOngoing())
	assert.False(t, engine.IsActiveOn(med, engine.NewDay(2023, time.December, 31)))
	assert.True(t, engine.IsActiveOn(med, engine.NewDay(2024, time.January, 1)))
	assert.True(t, engine.IsActiveOn(med, engine.NewDay(2031, time.June, 15)))

	_, ok := med.EndDate()
	assert.False(t, ok)
}

func TestIsActiveOn_AcrossDaylightSavingShift(t *testing.T) {
	// GIVEN: A treatment spanning the 2024 US spring-forward (March 10)
	// WHEN: Resolving the local day of late-evening instants
	// THEN: The window still counts calendar days, not 24h blocks

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	med := fixedMed(engine.NewDay(2024, time.March, 5), 7)
	end, ok := med.EndDate()
	require.True(t, ok)
	assert.Equal(t, "2024-03-12", end.String())

	lastEvening := time.Date(2024, time.March, 12, 23, 30, 0, 0, ny)
	assert.True(t, engine.IsActiveOn(med, engine.DayOf(lastEvening, ny)))

	nextMorning := time.Date(2024, time.March, 13, 0, 15, 0, 0, ny)
	assert.False(t, engine.IsActiveOn(med, engine.DayOf(nextMorning, ny)))
}

// =============================================================================
// NEXT DOSE TIME
// =============================================================================

func TestNextDoseTime(t *testing.T) {
	med := fixedMed(engine.NewDay(2024, time.January, 1), 7)
	med.Schedule = []engine.LocalTime{
		engine.MustParseLocalTime("21:00"),
		engine.MustParseLocalTime("09:00"),
	}

	tests := []struct {
		name   string
		now    string
		want   string
		wantOK bool
	}{
		{"early morning", "06:00", "09:00", true},
		{"exactly at dose time", "09:00", "09:00", true},
		{"midday", "12:30", "21:00", true},
		{"after last dose", "22:00", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := engine.NextDoseTime(med, engine.MustParseLocalTime(tt.now))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, next.String())
			}
		})
	}
}

func TestNextDoseTime_AsNeeded(t *testing.T) {
	med := fixedMed(engine.NewDay(2024, time.January, 1), 7)
	med.Schedule = nil

	_, ok := engine.NextDoseTime(med, engine.MustParseLocalTime("00:00"))
	assert.False(t, ok)
}

// =============================================================================
// DAYS AND TIMES
// =============================================================================

func TestDay_MonthBounds(t *testing.T) {
	assert.Equal(t, "2024-02-29", engine.EndOfMonth(2024, time.February).String())
	assert.Equal(t, "2023-02-28", engine.EndOfMonth(2023, time.February).String())
	assert.Equal(t, "2024-12-31", engine.EndOfMonth(2024, time.December).String())
	assert.Equal(t, "2024-12-01", engine.StartOfMonth(2024, time.December).String())
}

func TestDayOf_UsesZone(t *testing.T) {
	// GIVEN: 03:30 UTC on March 10
	// WHEN: Viewed from New York
	// THEN: It is still March 9 locally

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	instant := time.Date(2024, time.March, 10, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-09", engine.DayOf(instant, ny).String())
	assert.Equal(t, "2024-03-10", engine.DayOf(instant, time.UTC).String())
}

func TestParseDay_And_DaysBetween(t *testing.T) {
	from, err := engine.ParseDay("2024-03-05")
	require.NoError(t, err)
	to, err := engine.ParseDay("2024-03-12")
	require.NoError(t, err)

	assert.Equal(t, 7, engine.DaysBetween(from, to))
	assert.True(t, from.Before(to))
	assert.True(t, to.AfterOrEqual(to))

	_, err = engine.ParseDay("03/05/2024")
	assert.Error(t, err)
}

func TestLocalTime_Parse(t *testing.T) {
	lt, err := engine.ParseLocalTime("07:05")
	require.NoError(t, err)
	assert.Equal(t, engine.LocalTime{Hour: 7, Minute: 5}, lt)
	assert.Equal(t, "07:05", lt.String())

	for _, bad := range []string{"", "25:00", "7pm", "12:60"} {
		_, err := engine.ParseLocalTime(bad)
		assert.Error(t, err, bad)
	}
}
