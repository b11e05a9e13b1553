package engine

// =============================================================================
// SCHEDULE RESOLVER
// =============================================================================

// IsActiveOn reports whether the medication's treatment window includes day.
//
// Ongoing treatments are active on every day from StartDate on. Fixed
// treatments are active on [StartDate, StartDate+DurationDays], both ends
// inclusive, counted in calendar days.
func IsActiveOn(med Medication, day Day) bool {
	if day.Before(med.StartDate) {
		return false
	}
	end, ok := med.EndDate()
	if !ok {
		return true
	}
	return day.BeforeOrEqual(end)
}

// NextDoseTime returns the first scheduled time at or after now on its
// calendar day. ok is false for as-needed medications or when every time
// has already passed.
func NextDoseTime(med Medication, now LocalTime) (next LocalTime, ok bool) {
	for _, t := range med.Schedule {
		if t.Before(now) {
			continue
		}
		if !ok || t.Before(next) {
			next, ok = t, true
		}
	}
	return next, ok
}
