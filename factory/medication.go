/*
Package factory provides JSON to Go medication conversion.

PURPOSE:
  Converts the add-medication form, as JSON, into an engine.Medication. The
  form speaks in presets ("Twice daily", "30 days", "Ongoing"); the engine
  speaks in times of day and a day count. This is the only place the two
  meet.

JSON SCHEMA:
  {
    "name": "Amoxicillin",
    "dosage": "500mg",
    "frequency": "Twice daily",          // or "times": ["08:00", "20:00"]
    "duration": "7 days",                // or "duration_days": 7, or "Ongoing"
    "start_date": "2024-01-01",          // defaults to today
    "reminder_enabled": true,            // defaults to true
    "refill_reminder": true,
    "current_supply": 30,
    "refill_at": 20                      // percent of supply
  }

KEY FEATURES:
  - Resolves frequency presets to times of day
  - Resolves duration labels, including the "Ongoing" sentinel
  - Collects every problem into one engine.ValidationError
  - Leaves the final invariant checks to engine.ValidateMedication

USAGE:
  f := factory.NewMedicationFactory(time.Local, engine.SystemClock{})
  med, err := f.ParseMedication(body)
  med, err = tracker.AddMedication(ctx, med)

SEE ALSO:
  - engine/validate.go: Invariant checks
  - tracker/tracker.go: AddMedication
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warp/dose-engine/engine"
)

// =============================================================================
// PRESETS
// =============================================================================

type Frequency struct {
	Label string
	Times []string
}

// Frequencies are the schedule presets offered by the add form.
var Frequencies = []Frequency{
	{Label: "Once daily", Times: []string{"09:00"}},
	{Label: "Twice daily", Times: []string{"09:00", "21:00"}},
	{Label: "Three times daily", Times: []string{"09:00", "15:00", "21:00"}},
	{Label: "Four times daily", Times: []string{"09:00", "13:00", "17:00", "21:00"}},
	{Label: "As needed", Times: []string{}},
}

type Duration struct {
	Label string
	Days  int
}

// Durations are the treatment length presets offered by the add form.
var Durations = []Duration{
	{Label: "7 days", Days: 7},
	{Label: "14 days", Days: 14},
	{Label: "30 days", Days: 30},
	{Label: "90 days", Days: 90},
	{Label: "Ongoing", Days: engine.Ongoing},
}

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// MedicationJSON is the JSON representation of the add-medication form.
type MedicationJSON struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name"`
	Dosage         string   `json:"dosage"`
	Frequency      string   `json:"frequency,omitempty"`
	Times          []string `json:"times,omitempty"`
	Duration       string   `json:"duration,omitempty"`
	DurationDays   *int     `json:"duration_days,omitempty"`
	StartDate      string   `json:"start_date,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	Color          string   `json:"color,omitempty"`
	ReminderOn     *bool    `json:"reminder_enabled,omitempty"`
	RefillReminder bool     `json:"refill_reminder,omitempty"`
	CurrentSupply  int      `json:"current_supply,omitempty"`
	TotalSupply    int      `json:"total_supply,omitempty"`
	RefillAt       int      `json:"refill_at,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

type MedicationFactory struct {
	Location *time.Location
	Clock    engine.Clock
}

func NewMedicationFactory(loc *time.Location, clock engine.Clock) *MedicationFactory {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = engine.SystemClock{}
	}
	return &MedicationFactory{Location: loc, Clock: clock}
}

// ParseMedication decodes and converts a JSON form.
func (f *MedicationFactory) ParseMedication(jsonStr string) (engine.Medication, error) {
	var mj MedicationJSON
	if err := json.Unmarshal([]byte(jsonStr), &mj); err != nil {
		return engine.Medication{}, &engine.ValidationError{
			Fields: map[string]string{"body": fmt.Sprintf("invalid JSON: %v", err)},
		}
	}
	return f.FromJSON(mj)
}

// FromJSON converts a decoded form. Problems found here are returned
// together; invariant checks run afterwards in engine.ValidateMedication.
func (f *MedicationFactory) FromJSON(mj MedicationJSON) (engine.Medication, error) {
	fields := map[string]string{}

	times, err := resolveTimes(mj)
	if err != nil {
		fields["schedule"] = err.Error()
	}

	days, err := resolveDuration(mj)
	if err != nil {
		fields["duration_days"] = err.Error()
	}

	start := engine.DayOf(f.Clock.Now(), f.Location)
	if strings.TrimSpace(mj.StartDate) != "" {
		start, err = engine.ParseDay(strings.TrimSpace(mj.StartDate))
		if err != nil {
			fields["start_date"] = err.Error()
		}
	}

	if len(fields) > 0 {
		return engine.Medication{}, &engine.ValidationError{Fields: fields}
	}

	reminderOn := true
	if mj.ReminderOn != nil {
		reminderOn = *mj.ReminderOn
	}
	total := mj.TotalSupply
	if total == 0 {
		total = mj.CurrentSupply
	}

	med := engine.Medication{
		ID:                    engine.MedicationID(strings.TrimSpace(mj.ID)),
		Name:                  strings.TrimSpace(mj.Name),
		Dosage:                strings.TrimSpace(mj.Dosage),
		Schedule:              times,
		Notes:                 mj.Notes,
		Color:                 mj.Color,
		StartDate:             start,
		DurationDays:          days,
		CurrentSupply:         mj.CurrentSupply,
		TotalSupply:           total,
		RefillThreshold:       mj.RefillAt,
		ReminderEnabled:       reminderOn,
		RefillReminderEnabled: mj.RefillReminder,
	}

	if err := engine.ValidateMedication(med); err != nil {
		return engine.Medication{}, err
	}
	return med, nil
}

// =============================================================================
// RESOLVERS
// =============================================================================

func resolveTimes(mj MedicationJSON) ([]engine.LocalTime, error) {
	raw := mj.Times
	if len(raw) == 0 {
		if strings.TrimSpace(mj.Frequency) == "" {
			return nil, errors.New("Frequency is required")
		}
		preset, ok := FrequencyByLabel(mj.Frequency)
		if !ok {
			return nil, fmt.Errorf("unknown frequency %q", mj.Frequency)
		}
		raw = preset.Times
	}

	times := make([]engine.LocalTime, 0, len(raw))
	for _, s := range raw {
		lt, err := engine.ParseLocalTime(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		times = append(times, lt)
	}
	return times, nil
}

func resolveDuration(mj MedicationJSON) (int, error) {
	if mj.DurationDays != nil {
		return *mj.DurationDays, nil
	}
	if strings.TrimSpace(mj.Duration) == "" {
		return 0, errors.New("Duration is required")
	}
	return ParseDuration(mj.Duration)
}

// ParseDuration turns "7 days", "1 day", "14" or "Ongoing" into a day
// count, engine.Ongoing for ongoing treatments.
func ParseDuration(label string) (int, error) {
	label = strings.TrimSpace(label)
	if strings.EqualFold(label, "ongoing") {
		return engine.Ongoing, nil
	}

	num := strings.Fields(label)
	if len(num) == 0 || len(num) > 2 {
		return 0, fmt.Errorf("invalid duration %q", label)
	}
	if len(num) == 2 && !strings.EqualFold(num[1], "days") && !strings.EqualFold(num[1], "day") {
		return 0, fmt.Errorf("invalid duration %q", label)
	}

	n, err := strconv.Atoi(num[0])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", label)
	}
	if n == engine.Ongoing {
		return n, nil
	}
	if n <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %d", n)
	}
	return n, nil
}

func FrequencyByLabel(label string) (Frequency, bool) {
	for _, f := range Frequencies {
		if strings.EqualFold(f.Label, strings.TrimSpace(label)) {
			return f, true
		}
	}
	return Frequency{}, false
}
