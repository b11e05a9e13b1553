/*
ledger.go - Dose event log

PURPOSE:
  The Ledger records every take/skip action for a medication and answers
  "what happened on this calendar day". Taken status and daily progress are
  always derived from these events; the medication record only carries the
  supply counter.

INVARIANTS:
  1. APPEND: Record never deduplicates. The tracker checks status first.
  2. NO EDITS: Events are never modified after they are written.
  3. UNDO REMOVES: UndoLast deletes the single most recent taken=true event
     of a medication, on any day. It does not write a compensating entry.
     Limiting undo to today is the tracker's job.
  4. LOCAL DAYS: Day queries use the user's zone, not UTC.

EXAMPLE FLOW:
  1. 08:55 take:  Record(med-1, true)  -> [e1]
  2. 08:56 oops:  UndoLast(med-1)      -> []   (e1 returned)
  3. 09:02 take:  Record(med-1, true)  -> [e3]

SEE ALSO:
  - store.go: Persistence capability
  - tracker/tracker.go: Sequences ledger writes with supply writes
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER - Dose event log
// =============================================================================

type Ledger interface {
	// Record appends ev, assigning an ID when it has none. No duplicate
	// check.
	Record(ctx context.Context, ev DoseEvent) (DoseEvent, error)

	// UndoLast deletes and returns the most recent taken event of medID.
	// Returns ErrDoseNotFound when there is none.
	UndoLast(ctx context.Context, medID MedicationID) (DoseEvent, error)

	// EventsOn returns medID's events on day, in insertion order.
	EventsOn(ctx context.Context, medID MedicationID, day Day) ([]DoseEvent, error)

	// EventsOnAllMedications returns every event on day, in insertion order.
	EventsOnAllMedications(ctx context.Context, day Day) ([]DoseEvent, error)

	// Events returns the full history in insertion order.
	Events(ctx context.Context) ([]DoseEvent, error)

	// DaysWithDoses returns the days in [from, to] that have at least one
	// event, ascending.
	DaysWithDoses(ctx context.Context, from, to Day) ([]Day, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Doses    *Collection[DoseEvent]
	Location *time.Location
	NewID    func() string
}

func NewLedger(store Store, loc *time.Location) *DefaultLedger {
	if loc == nil {
		loc = time.Local
	}
	return &DefaultLedger{
		Doses:    NewCollection[DoseEvent](store, CollectionDoses),
		Location: loc,
		NewID:    uuid.NewString,
	}
}

func (l *DefaultLedger) Record(ctx context.Context, ev DoseEvent) (DoseEvent, error) {
	if ev.ID == "" {
		ev.ID = DoseEventID(l.NewID())
	}
	if err := l.Doses.Put(ctx, ev); err != nil {
		return DoseEvent{}, err
	}
	return ev, nil
}

func (l *DefaultLedger) UndoLast(ctx context.Context, medID MedicationID) (DoseEvent, error) {
	events, err := l.Doses.All(ctx)
	if err != nil {
		return DoseEvent{}, err
	}

	var (
		latest DoseEvent
		found  bool
	)
	for _, ev := range events {
		if ev.MedicationID != medID || !ev.Taken {
			continue
		}
		// Ties go to the later insertion.
		if !found || !ev.Timestamp.Before(latest.Timestamp) {
			latest, found = ev, true
		}
	}
	if !found {
		return DoseEvent{}, ErrDoseNotFound
	}

	if err := l.Doses.Remove(ctx, latest.EntityID()); err != nil {
		return DoseEvent{}, err
	}
	return latest, nil
}

func (l *DefaultLedger) EventsOn(ctx context.Context, medID MedicationID, day Day) ([]DoseEvent, error) {
	events, err := l.EventsOnAllMedications(ctx, day)
	if err != nil {
		return nil, err
	}
	return FilterByMedication(events, medID), nil
}

func (l *DefaultLedger) EventsOnAllMedications(ctx context.Context, day Day) ([]DoseEvent, error) {
	events, err := l.Doses.All(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByDay(events, day, l.Location), nil
}

func (l *DefaultLedger) Events(ctx context.Context) ([]DoseEvent, error) {
	return l.Doses.All(ctx)
}

func (l *DefaultLedger) DaysWithDoses(ctx context.Context, from, to Day) ([]Day, error) {
	events, err := l.Doses.All(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, ev := range events {
		seen[DayOf(ev.Timestamp, l.Location).String()] = true
	}

	var days []Day
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if seen[d.String()] {
			days = append(days, d)
		}
	}
	return days, nil
}

// =============================================================================
// EVENT FILTERS
// =============================================================================

// FilterByDay keeps events whose timestamp falls on day in loc.
func FilterByDay(events []DoseEvent, day Day, loc *time.Location) []DoseEvent {
	var out []DoseEvent
	for _, ev := range events {
		if day.Contains(ev.Timestamp, loc) {
			out = append(out, ev)
		}
	}
	return out
}

func FilterByMedication(events []DoseEvent, medID MedicationID) []DoseEvent {
	var out []DoseEvent
	for _, ev := range events {
		if ev.MedicationID == medID {
			out = append(out, ev)
		}
	}
	return out
}
