/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures the host UI talks to. These types decouple
  the engine's model from the API contract:
  - Dates are "YYYY-MM-DD", instants RFC3339, times of day "HH:MM"
  - Percentages are plain numbers (decimals converted at the edge)
  - Tiers are strings

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Medication:  MedicationDTO (create body is factory.MedicationJSON)
  Today:       DashboardDTO, TodayMedicationDTO, ProgressDTO
  Refills:     RefillDTO
  Calendar:    CalendarDTO, CalendarEntryDTO
  Doses:       DoseEventDTO

SEE ALSO:
  - handlers.go: Uses these types
  - factory/medication.go: MedicationJSON type
*/
package api

import (
	"time"

	"github.com/warp/dose-engine/engine"
	"github.com/warp/dose-engine/tracker"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// MedicationDTO represents a medication in API responses.
type MedicationDTO struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Dosage                string   `json:"dosage"`
	Schedule              []string `json:"schedule"`
	Notes                 string   `json:"notes,omitempty"`
	Color                 string   `json:"color,omitempty"`
	StartDate             string   `json:"start_date"`
	DurationDays          int      `json:"duration_days"`
	Ongoing               bool     `json:"ongoing"`
	EndDate               string   `json:"end_date,omitempty"`
	CurrentSupply         int      `json:"current_supply"`
	TotalSupply           int      `json:"total_supply"`
	RefillThreshold       int      `json:"refill_threshold"`
	ReminderEnabled       bool     `json:"reminder_enabled"`
	RefillReminderEnabled bool     `json:"refill_reminder_enabled"`
	LastRefillDate        *string  `json:"last_refill_date,omitempty"`
	SupplyTier            string   `json:"supply_tier"`
	SupplyPercent         float64  `json:"supply_percent"`
	Version               int64    `json:"version"`
}

// UpdateScheduleRequest replaces a medication's times of day.
type UpdateScheduleRequest struct {
	Times []string `json:"times"`
}

// TodayMedicationDTO is one row of the home screen.
type TodayMedicationDTO struct {
	MedicationDTO
	Taken    bool    `json:"taken"`
	NextDose *string `json:"next_dose,omitempty"`
}

// ProgressDTO is the daily completion ring.
type ProgressDTO struct {
	Completed  int     `json:"completed"`
	Expected   int     `json:"expected"`
	Percentage float64 `json:"percentage"`
}

// DashboardDTO is the home screen payload.
type DashboardDTO struct {
	Date        string               `json:"date"`
	Medications []TodayMedicationDTO `json:"medications"`
	Progress    ProgressDTO          `json:"progress"`
}

// RefillDTO is one row of the refill tracker.
type RefillDTO struct {
	MedicationDTO
	NeedsRefill bool `json:"needs_refill"`
}

// CalendarEntryDTO is a medication's status on the selected day.
type CalendarEntryDTO struct {
	MedicationID string `json:"medication_id"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Active       bool   `json:"active"`
	Taken        bool   `json:"taken"`
}

// CalendarDTO is the calendar screen payload.
type CalendarDTO struct {
	Year          int                `json:"year"`
	Month         int                `json:"month"`
	DaysWithDoses []string           `json:"days_with_doses"`
	Selected      string             `json:"selected"`
	Entries       []CalendarEntryDTO `json:"entries"`
}

// DoseEventDTO represents a ledger entry.
type DoseEventDTO struct {
	ID           string `json:"id"`
	MedicationID string `json:"medication_id"`
	Timestamp    string `json:"timestamp"`
	Taken        bool   `json:"taken"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details any               `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toMedicationDTO(med engine.Medication) MedicationDTO {
	schedule := make([]string, len(med.Schedule))
	for i, t := range med.Schedule {
		schedule[i] = t.String()
	}
	pct, _ := tracker.SupplyPercentage(med)

	dto := MedicationDTO{
		ID:                    string(med.ID),
		Name:                  med.Name,
		Dosage:                med.Dosage,
		Schedule:              schedule,
		Notes:                 med.Notes,
		Color:                 med.Color,
		StartDate:             med.StartDate.String(),
		DurationDays:          med.DurationDays,
		Ongoing:               med.IsOngoing(),
		CurrentSupply:         med.CurrentSupply,
		TotalSupply:           med.TotalSupply,
		RefillThreshold:       med.RefillThreshold,
		ReminderEnabled:       med.ReminderEnabled,
		RefillReminderEnabled: med.RefillReminderEnabled,
		SupplyTier:            tracker.SupplyTierOf(med).String(),
		SupplyPercent:         pct.Round(1).InexactFloat64(),
		Version:               med.Version,
	}
	if end, ok := med.EndDate(); ok {
		dto.EndDate = end.String()
	}
	if med.LastRefillDate != nil {
		s := med.LastRefillDate.Format(time.RFC3339)
		dto.LastRefillDate = &s
	}
	return dto
}

func toMedicationDTOs(meds []engine.Medication) []MedicationDTO {
	dtos := make([]MedicationDTO, len(meds))
	for i, m := range meds {
		dtos[i] = toMedicationDTO(m)
	}
	return dtos
}

func toDashboardDTO(d tracker.Dashboard) DashboardDTO {
	rows := make([]TodayMedicationDTO, len(d.Medications))
	for i, row := range d.Medications {
		rows[i] = TodayMedicationDTO{
			MedicationDTO: toMedicationDTO(row.Medication),
			Taken:         row.Taken,
		}
		if row.NextDose != nil {
			s := row.NextDose.String()
			rows[i].NextDose = &s
		}
	}
	return DashboardDTO{
		Date:        d.Day.String(),
		Medications: rows,
		Progress: ProgressDTO{
			Completed:  d.Progress.Completed,
			Expected:   d.Progress.Expected,
			Percentage: d.Progress.Percentage.InexactFloat64(),
		},
	}
}

func toCalendarDTO(c tracker.CalendarMonth) CalendarDTO {
	days := make([]string, len(c.DaysWithDoses))
	for i, d := range c.DaysWithDoses {
		days[i] = d.String()
	}
	entries := make([]CalendarEntryDTO, len(c.Entries))
	for i, e := range c.Entries {
		entries[i] = CalendarEntryDTO{
			MedicationID: string(e.Medication.ID),
			Name:         e.Medication.Name,
			Dosage:       e.Medication.Dosage,
			Active:       e.Active,
			Taken:        e.Taken,
		}
	}
	return CalendarDTO{
		Year:          c.Year,
		Month:         int(c.Month),
		DaysWithDoses: days,
		Selected:      c.Selected.String(),
		Entries:       entries,
	}
}

func toDoseEventDTOs(events []engine.DoseEvent) []DoseEventDTO {
	dtos := make([]DoseEventDTO, len(events))
	for i, ev := range events {
		dtos[i] = DoseEventDTO{
			ID:           string(ev.ID),
			MedicationID: string(ev.MedicationID),
			Timestamp:    ev.Timestamp.Format(time.RFC3339),
			Taken:        ev.Taken,
		}
	}
	return dtos
}
