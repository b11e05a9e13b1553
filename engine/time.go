package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Civil calendar date (this IS a calendar-day system)
// =============================================================================

// Day is a calendar date with no time of day and no zone. Time is always
// midnight UTC so day arithmetic never crosses a daylight-saving shift.
type Day struct {
	Time time.Time
}

const dayLayout = "2006-01-02"

// Constructors
func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar day instant t falls on in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	return NewDay(lt.Year(), lt.Month(), lt.Day())
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
	}
	return NewDay(t.Year(), t.Month(), t.Day()), nil
}

// Comparison
func (d Day) Before(other Day) bool        { return d.Time.Before(other.Time) }
func (d Day) Equal(other Day) bool         { return d.Time.Equal(other.Time) }
func (d Day) After(other Day) bool         { return d.Time.After(other.Time) }
func (d Day) BeforeOrEqual(other Day) bool { return !d.After(other) }
func (d Day) AfterOrEqual(other Day) bool  { return !d.Before(other) }

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Day) Year() int          { return d.Time.Year() }
func (d Day) Month() time.Month  { return d.Time.Month() }
func (d Day) DayOfMonth() int    { return d.Time.Day() }
func (d Day) IsZero() bool       { return d.Time.IsZero() }
func (d Day) String() string     { return d.Time.Format(dayLayout) }

// Contains reports whether instant t falls on day d in loc.
func (d Day) Contains(t time.Time, loc *time.Location) bool { return DayOf(t, loc).Equal(d) }

func (d Day) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween counts whole calendar days from -> to.
func DaysBetween(from, to Day) int { return int(to.Time.Sub(from.Time).Hours() / 24) }

func StartOfMonth(year int, month time.Month) Day { return NewDay(year, month, 1) }
func EndOfMonth(year int, month time.Month) Day {
	return Day{Time: time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "now". Tests pin it with ClockFunc.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
