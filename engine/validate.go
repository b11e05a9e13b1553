package engine

import "strings"

// ValidateMedication checks a medication before it is created or updated.
// All problems are reported at once in a *ValidationError.
func ValidateMedication(m Medication) error {
	verr := &ValidationError{}

	if strings.TrimSpace(m.Name) == "" {
		verr.add("name", "Medication name is required")
	}
	if strings.TrimSpace(m.Dosage) == "" {
		verr.add("dosage", "Dosage is required")
	}
	if m.StartDate.IsZero() {
		verr.add("start_date", "Start date is required")
	}
	if m.DurationDays != Ongoing && m.DurationDays <= 0 {
		verr.add("duration_days", "Duration must be a positive number of days or ongoing")
	}
	checkSchedule(verr, m.Schedule)

	if m.CurrentSupply < 0 || m.TotalSupply < 0 {
		verr.add("current_supply", "Supply cannot be negative")
	} else if m.CurrentSupply > m.TotalSupply {
		verr.add("current_supply", "Current supply cannot exceed total supply")
	}
	if m.RefillThreshold < 0 || m.RefillThreshold > 100 {
		verr.add("refill_threshold", "Refill threshold must be a percentage between 0 and 100")
	}

	if m.RefillReminderEnabled {
		if m.CurrentSupply <= 0 {
			verr.add("current_supply", "Current supply is required for refill tracking")
		}
		if m.RefillThreshold >= m.CurrentSupply {
			verr.add("refill_threshold", "Refill alert must be less than current supply")
		}
	}

	return verr.orNil()
}

// ValidateSchedule rejects out-of-range or repeated times of day.
func ValidateSchedule(times []LocalTime) error {
	verr := &ValidationError{}
	checkSchedule(verr, times)
	return verr.orNil()
}

func checkSchedule(verr *ValidationError, times []LocalTime) {
	seen := make(map[LocalTime]bool, len(times))
	for _, t := range times {
		if !t.Valid() {
			verr.add("schedule", "Invalid time of day "+t.String())
			continue
		}
		if seen[t] {
			verr.add("schedule", "Duplicate time of day "+t.String())
		}
		seen[t] = true
	}
}
