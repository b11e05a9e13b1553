/*
Package engine provides the medication dose and supply lifecycle core.

PURPOSE:
  This package contains the persistence-agnostic types and algorithms that
  decide which medications are active on a day, keep an event log of doses,
  and keep the running supply counter inside its bounds. Screens, push
  notifications and the key-value storage primitives live outside and are
  consumed through narrow interfaces (Store, and reminder.Scheduler in the
  reminder package).

KEY CONCEPTS IN THIS FILE (types.go):
  - Medication: A treatment with a schedule, a window and a supply counter
  - DoseEvent: An immutable ledger entry recording a take/skip action
  - LocalTime: A time of day ("09:00") a reminder fires at
  - IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Explicit inputs: Functions take collections as parameters, no globals
  2. Bounded supply: 0 <= CurrentSupply <= TotalSupply after every write
  3. Type Safety: Distinct ID types prevent mixing medication/dose IDs
  4. Calendar days: Dates are civil days in the user's zone, never instants

USAGE:
  med := engine.Medication{
      Name:         "Amoxicillin",
      Dosage:       "500mg",
      Schedule:     []engine.LocalTime{engine.MustParseLocalTime("09:00")},
      StartDate:    engine.NewDay(2024, time.January, 1),
      DurationDays: 7,
      TotalSupply:  14,
  }
  active := engine.IsActiveOn(med, engine.NewDay(2024, time.January, 8))

SEE ALSO:
  - schedule.go: Schedule Resolver
  - ledger.go: Dose Ledger
  - store.go: Persistence capability
*/
package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MedicationID string
type DoseEventID string

// =============================================================================
// MEDICATION
// =============================================================================

// Ongoing is the DurationDays sentinel for a treatment without an end date.
const Ongoing = -1

type Medication struct {
	ID       MedicationID `json:"id"`
	Name     string       `json:"name"`
	Dosage   string       `json:"dosage"`
	Schedule []LocalTime  `json:"schedule"`
	Notes    string       `json:"notes,omitempty"`
	Color    string       `json:"color,omitempty"`

	StartDate    Day `json:"start_date"`
	DurationDays int `json:"duration_days"`

	CurrentSupply   int `json:"current_supply"`
	TotalSupply     int `json:"total_supply"`
	RefillThreshold int `json:"refill_threshold"` // percentage of TotalSupply

	ReminderEnabled       bool       `json:"reminder_enabled"`
	RefillReminderEnabled bool       `json:"refill_reminder_enabled"`
	LastRefillDate        *time.Time `json:"last_refill_date,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Medication) EntityID() string { return string(m.ID) }

// IsOngoing reports whether the treatment has no fixed end date.
func (m Medication) IsOngoing() bool { return m.DurationDays == Ongoing }

// EndDate returns the last active day. ok is false for ongoing treatments.
func (m Medication) EndDate() (end Day, ok bool) {
	if m.IsOngoing() {
		return Day{}, false
	}
	return m.StartDate.AddDays(m.DurationDays), true
}

// ClampSupply returns the supply bounded to [0, TotalSupply].
func (m Medication) ClampSupply(supply int) int {
	if supply < 0 {
		return 0
	}
	if supply > m.TotalSupply {
		return m.TotalSupply
	}
	return supply
}

// Clone returns a copy that shares no slices or pointers with m.
func (m Medication) Clone() Medication {
	c := m
	if m.Schedule != nil {
		c.Schedule = append([]LocalTime(nil), m.Schedule...)
	}
	if m.LastRefillDate != nil {
		t := *m.LastRefillDate
		c.LastRefillDate = &t
	}
	return c
}

// =============================================================================
// DOSE EVENT - Ledger entry
// =============================================================================

type DoseEvent struct {
	ID           DoseEventID  `json:"id"`
	MedicationID MedicationID `json:"medication_id"`
	Timestamp    time.Time    `json:"timestamp"`
	Taken        bool         `json:"taken"`

	// Floored marks a take recorded at zero supply. No unit was consumed,
	// so undoing it gives none back.
	Floored bool `json:"floored,omitempty"`
}

func (e DoseEvent) EntityID() string { return string(e.ID) }

// =============================================================================
// LOCAL TIME - Time of day
// =============================================================================

// LocalTime is a wall-clock time of day in the user's zone.
type LocalTime struct {
	Hour   int
	Minute int
}

func ParseLocalTime(s string) (LocalTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return LocalTime{}, fmt.Errorf("invalid time of day %q (use HH:MM)", s)
	}
	return LocalTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func MustParseLocalTime(s string) LocalTime {
	lt, err := ParseLocalTime(s)
	if err != nil {
		panic(err)
	}
	return lt
}

func (lt LocalTime) Valid() bool {
	return lt.Hour >= 0 && lt.Hour < 24 && lt.Minute >= 0 && lt.Minute < 60
}

func (lt LocalTime) String() string { return fmt.Sprintf("%02d:%02d", lt.Hour, lt.Minute) }

func (lt LocalTime) Before(other LocalTime) bool {
	return lt.Hour < other.Hour || (lt.Hour == other.Hour && lt.Minute < other.Minute)
}

// On returns the instant this time of day falls at on day d in loc.
func (lt LocalTime) On(d Day, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.DayOfMonth(), lt.Hour, lt.Minute, 0, 0, loc)
}

func (lt LocalTime) MarshalText() ([]byte, error) { return []byte(lt.String()), nil }

func (lt *LocalTime) UnmarshalText(b []byte) error {
	parsed, err := ParseLocalTime(string(b))
	if err != nil {
		return err
	}
	*lt = parsed
	return nil
}
