package tracker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/dose-engine/engine"
)

// =============================================================================
// LOAD / RECOMPUTE
// =============================================================================
// Screens call Load when they gain focus and feed the result to Recompute.
// Nothing here caches state between calls.

// Snapshot is what a screen reads from the store.
type Snapshot struct {
	Medications []engine.Medication
	Events      []engine.DoseEvent
}

// Load reads medications and the dose history concurrently.
func (t *Tracker) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		meds, err := t.Medications.All(ctx)
		snap.Medications = meds
		return err
	})
	g.Go(func() error {
		events, err := t.Ledger.Events(ctx)
		snap.Events = events
		return err
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// MedicationStatus is one row of the home screen.
type MedicationStatus struct {
	Medication    engine.Medication
	Taken         bool
	NextDose      *engine.LocalTime
	Tier          SupplyTier
	SupplyPercent decimal.Decimal
}

// Dashboard is the home screen view-model.
type Dashboard struct {
	Day         engine.Day
	Medications []MedicationStatus
	Progress    Progress
}

// Recompute derives the dashboard for the calendar day of now in loc.
func Recompute(snap Snapshot, now time.Time, loc *time.Location, dosesPerDay int) Dashboard {
	today := engine.DayOf(now, loc)
	lnow := now.In(loc)
	clock := engine.LocalTime{Hour: lnow.Hour(), Minute: lnow.Minute()}

	active := TodaysMedications(snap.Medications, today)
	events := engine.FilterByDay(snap.Events, today, loc)

	rows := make([]MedicationStatus, 0, len(active))
	for _, med := range active {
		pct, _ := SupplyPercentage(med)
		row := MedicationStatus{
			Medication:    med,
			Taken:         IsTaken(med.ID, events),
			Tier:          SupplyTierOf(med),
			SupplyPercent: pct,
		}
		if next, ok := engine.NextDoseTime(med, clock); ok {
			row.NextDose = &next
		}
		rows = append(rows, row)
	}

	return Dashboard{
		Day:         today,
		Medications: rows,
		Progress:    DailyProgress(active, events, dosesPerDay),
	}
}

// Dashboard loads and recomputes for the tracker's current time.
func (t *Tracker) Dashboard(ctx context.Context) (Dashboard, error) {
	snap, err := t.Load(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Recompute(snap, t.clock.Now(), t.location, t.dosesPerDay), nil
}

// =============================================================================
// CALENDAR
// =============================================================================

// DayEntry is a medication's status on a selected calendar day.
type DayEntry struct {
	Medication engine.Medication
	Active     bool
	Taken      bool
}

// CalendarMonth marks which days of a month have any dose recorded, plus
// the per-medication detail of one selected day.
type CalendarMonth struct {
	Year          int
	Month         time.Month
	DaysWithDoses []engine.Day
	Selected      engine.Day
	Entries       []DayEntry
}

// Calendar builds the month view. selected is usually today or a day the
// user tapped; it does not have to fall inside the month.
func (t *Tracker) Calendar(ctx context.Context, year int, month time.Month, selected engine.Day) (CalendarMonth, error) {
	days, err := t.Ledger.DaysWithDoses(ctx, engine.StartOfMonth(year, month), engine.EndOfMonth(year, month))
	if err != nil {
		return CalendarMonth{}, err
	}

	meds, err := t.Medications.All(ctx)
	if err != nil {
		return CalendarMonth{}, err
	}
	events, err := t.Ledger.EventsOnAllMedications(ctx, selected)
	if err != nil {
		return CalendarMonth{}, err
	}

	entries := make([]DayEntry, 0, len(meds))
	for _, med := range meds {
		entries = append(entries, DayEntry{
			Medication: med,
			Active:     engine.IsActiveOn(med, selected),
			Taken:      IsTaken(med.ID, events),
		})
	}

	return CalendarMonth{
		Year:          year,
		Month:         month,
		DaysWithDoses: days,
		Selected:      selected,
		Entries:       entries,
	}, nil
}
