package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/dose-engine/engine"
	"github.com/warp/dose-engine/metrics"
	"github.com/warp/dose-engine/reminder"
)

// =============================================================================
// TRACKER - Sequenced writes over ledger + medications
// =============================================================================

// Config holds the tracker's collaborators. Zero values get defaults.
type Config struct {
	Location    *time.Location
	DosesPerDay int
	Clock       engine.Clock
	Reminders   reminder.Scheduler
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	NewID       func() string
}

// Tracker performs dose, refill and medication writes.
//
// Every mutation re-reads the medication and the ledger immediately before
// writing, under a per-medication lock, and checks the stored Version before
// persisting. A stale in-memory copy can therefore never overwrite supply.
//
// Write order for dose actions is ledger first, supply second. A crash in
// between leaves an extra dose record and a supply that is off by one in the
// patient's favour, never a lost dose record.
type Tracker struct {
	Medications *engine.Collection[engine.Medication]
	Ledger      engine.Ledger

	location    *time.Location
	dosesPerDay int
	clock       engine.Clock
	reminders   reminder.Scheduler
	logger      *zap.Logger
	metrics     *metrics.Metrics
	newID       func() string

	mu    sync.Mutex
	locks map[engine.MedicationID]*medLock
}

// medLock is dropped from Tracker.locks once no caller holds or waits on it.
type medLock struct {
	mu   sync.Mutex
	refs int
}

func New(store engine.Store, cfg Config) *Tracker {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.DosesPerDay <= 0 {
		cfg.DosesPerDay = DefaultDosesPerDay
	}
	if cfg.Clock == nil {
		cfg.Clock = engine.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Reminders == nil {
		cfg.Reminders = reminder.NewLogging(cfg.Logger)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	ledger := engine.NewLedger(store, cfg.Location)
	ledger.NewID = cfg.NewID

	return &Tracker{
		Medications: engine.NewCollection[engine.Medication](store, engine.CollectionMedications),
		Ledger:      ledger,
		location:    cfg.Location,
		dosesPerDay: cfg.DosesPerDay,
		clock:       cfg.Clock,
		reminders:   cfg.Reminders,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		newID:       cfg.NewID,
		locks:       make(map[engine.MedicationID]*medLock),
	}
}

func (t *Tracker) Location() *time.Location { return t.location }
func (t *Tracker) DosesPerDay() int         { return t.dosesPerDay }

// Today returns the current calendar day in the tracker's zone.
func (t *Tracker) Today() engine.Day { return engine.DayOf(t.clock.Now(), t.location) }

// =============================================================================
// DOSE ACTIONS
// =============================================================================

// TakeDose records a taken dose for today and decrements supply, floored
// at zero. A take at zero supply is still recorded, marked Floored. Fails
// with engine.ErrAlreadyTaken when today's dose is already recorded;
// nothing is written in that case.
func (t *Tracker) TakeDose(ctx context.Context, id engine.MedicationID) (engine.Medication, error) {
	unlock := t.lock(id)
	defer unlock()

	med, err := t.get(ctx, id)
	if err != nil {
		return engine.Medication{}, err
	}

	now := t.clock.Now()
	events, err := t.Ledger.EventsOn(ctx, id, engine.DayOf(now, t.location))
	if err != nil {
		return engine.Medication{}, err
	}
	if IsTaken(id, events) {
		t.metrics.DoseConflicts.WithLabelValues("already_taken").Inc()
		return engine.Medication{}, fmt.Errorf("%w: %s", engine.ErrAlreadyTaken, med.Name)
	}

	ev, err := t.Ledger.Record(ctx, engine.DoseEvent{
		MedicationID: id,
		Timestamp:    now,
		Taken:        true,
		Floored:      med.CurrentSupply <= 0,
	})
	if err != nil {
		return engine.Medication{}, err
	}

	updated := med.Clone()
	updated.CurrentSupply = med.ClampSupply(med.CurrentSupply - 1)
	saved, err := t.save(ctx, med, updated)
	if err != nil {
		t.logger.Error("dose recorded but supply not updated",
			zap.String("medication_id", string(id)),
			zap.String("dose_id", string(ev.ID)),
			zap.Error(err))
		return engine.Medication{}, err
	}

	t.metrics.DosesTaken.Inc()
	t.logger.Info("dose taken",
		zap.String("medication_id", string(id)),
		zap.String("dose_id", string(ev.ID)),
		zap.Int("current_supply", saved.CurrentSupply))
	return saved, nil
}

// UndoDose removes today's taken dose and gives back the unit it consumed,
// capped at TotalSupply. Fails with engine.ErrNothingToUndo when the dose
// is not taken today; earlier days are never rewritten.
func (t *Tracker) UndoDose(ctx context.Context, id engine.MedicationID) (engine.Medication, error) {
	unlock := t.lock(id)
	defer unlock()

	med, err := t.get(ctx, id)
	if err != nil {
		return engine.Medication{}, err
	}

	events, err := t.Ledger.EventsOn(ctx, id, t.Today())
	if err != nil {
		return engine.Medication{}, err
	}
	if !IsTaken(id, events) {
		t.metrics.DoseConflicts.WithLabelValues("nothing_to_undo").Inc()
		return engine.Medication{}, fmt.Errorf("%w: %s", engine.ErrNothingToUndo, med.Name)
	}

	ev, err := t.Ledger.UndoLast(ctx, id)
	if errors.Is(err, engine.ErrDoseNotFound) {
		t.metrics.DoseConflicts.WithLabelValues("nothing_to_undo").Inc()
		return engine.Medication{}, fmt.Errorf("%w: %s", engine.ErrNothingToUndo, med.Name)
	}
	if err != nil {
		return engine.Medication{}, err
	}

	updated := med.Clone()
	if !ev.Floored {
		updated.CurrentSupply = med.ClampSupply(med.CurrentSupply + 1)
	}
	saved, err := t.save(ctx, med, updated)
	if err != nil {
		t.logger.Error("dose removed but supply not restored",
			zap.String("medication_id", string(id)),
			zap.String("dose_id", string(ev.ID)),
			zap.Error(err))
		return engine.Medication{}, err
	}

	t.metrics.DosesUndone.Inc()
	t.logger.Info("dose undone",
		zap.String("medication_id", string(id)),
		zap.String("dose_id", string(ev.ID)),
		zap.Int("current_supply", saved.CurrentSupply))
	return saved, nil
}

// Refill resets supply to TotalSupply and stamps LastRefillDate. The
// ledger is not touched.
func (t *Tracker) Refill(ctx context.Context, id engine.MedicationID) (engine.Medication, error) {
	unlock := t.lock(id)
	defer unlock()

	med, err := t.get(ctx, id)
	if err != nil {
		return engine.Medication{}, err
	}

	now := t.clock.Now()
	updated := med.Clone()
	updated.CurrentSupply = med.TotalSupply
	updated.LastRefillDate = &now

	saved, err := t.save(ctx, med, updated)
	if err != nil {
		return engine.Medication{}, err
	}

	t.metrics.Refills.Inc()
	t.logger.Info("medication refilled",
		zap.String("medication_id", string(id)),
		zap.Int("total_supply", saved.TotalSupply))
	return saved, nil
}

// =============================================================================
// MEDICATION LIFECYCLE
// =============================================================================

// AddMedication validates and stores a new medication, then schedules its
// reminders. A missing TotalSupply defaults to CurrentSupply. Reminder
// failures are logged and counted but do not fail the call.
func (t *Tracker) AddMedication(ctx context.Context, med engine.Medication) (engine.Medication, error) {
	med = med.Clone()
	if med.ID == "" {
		med.ID = engine.MedicationID(t.newID())
	}
	if med.TotalSupply == 0 {
		med.TotalSupply = med.CurrentSupply
	}
	med.CreatedAt = t.clock.Now()
	med.Version = 1
	med.LastRefillDate = nil

	if err := engine.ValidateMedication(med); err != nil {
		return engine.Medication{}, err
	}

	unlock := t.lock(med.ID)
	defer unlock()

	_, exists, err := t.Medications.Get(ctx, string(med.ID))
	if err != nil {
		return engine.Medication{}, err
	}
	if exists {
		return engine.Medication{}, &engine.ValidationError{
			Fields: map[string]string{"id": "A medication with this id already exists"},
		}
	}

	if err := t.Medications.Put(ctx, med); err != nil {
		return engine.Medication{}, err
	}

	t.metrics.MedicationsAdded.Inc()
	t.logger.Info("medication added",
		zap.String("medication_id", string(med.ID)),
		zap.String("name", med.Name),
		zap.Int("schedule_times", len(med.Schedule)))

	t.scheduleReminders(ctx, med)
	return med, nil
}

// UpdateSchedule replaces the times of day and reschedules reminders.
func (t *Tracker) UpdateSchedule(ctx context.Context, id engine.MedicationID, times []engine.LocalTime) (engine.Medication, error) {
	if err := engine.ValidateSchedule(times); err != nil {
		return engine.Medication{}, err
	}

	unlock := t.lock(id)
	defer unlock()

	med, err := t.get(ctx, id)
	if err != nil {
		return engine.Medication{}, err
	}

	updated := med.Clone()
	updated.Schedule = append([]engine.LocalTime(nil), times...)
	saved, err := t.save(ctx, med, updated)
	if err != nil {
		return engine.Medication{}, err
	}

	t.scheduleReminders(ctx, saved)
	return saved, nil
}

// DeleteMedication removes the medication. Its dose events stay in the
// ledger as orphans.
func (t *Tracker) DeleteMedication(ctx context.Context, id engine.MedicationID) error {
	unlock := t.lock(id)
	defer unlock()

	if _, err := t.get(ctx, id); err != nil {
		return err
	}
	if err := t.Medications.Remove(ctx, string(id)); err != nil {
		return err
	}

	t.logger.Info("medication deleted", zap.String("medication_id", string(id)))
	return nil
}

func (t *Tracker) Medication(ctx context.Context, id engine.MedicationID) (engine.Medication, error) {
	return t.get(ctx, id)
}

func (t *Tracker) AllMedications(ctx context.Context) ([]engine.Medication, error) {
	return t.Medications.All(ctx)
}

// LowSupply returns the Low-tier medications that have refill reminders
// enabled, and refreshes the low supply gauge.
func (t *Tracker) LowSupply(ctx context.Context) ([]engine.Medication, error) {
	meds, err := t.Medications.All(ctx)
	if err != nil {
		return nil, err
	}

	var (
		low   []engine.Medication
		count int
	)
	for _, med := range meds {
		if SupplyTierOf(med) != TierLow {
			continue
		}
		count++
		if med.RefillReminderEnabled {
			low = append(low, med)
		}
	}
	t.metrics.LowSupply.Set(float64(count))
	return low, nil
}

// RemindRefill asks the platform for a refill reminder. Failures are
// logged and counted, never returned.
func (t *Tracker) RemindRefill(ctx context.Context, med engine.Medication) {
	if _, err := t.reminders.ScheduleRefillReminder(ctx, med.ID); err != nil {
		t.metrics.ReminderFailures.Inc()
		t.logger.Warn("failed to schedule refill reminder",
			zap.String("medication_id", string(med.ID)),
			zap.Error(err))
	}
}

// =============================================================================
// INTERNALS
// =============================================================================

func (t *Tracker) scheduleReminders(ctx context.Context, med engine.Medication) {
	res := reminder.ScheduleMedication(ctx, t.reminders, med, t.logger)
	if n := len(res.Errors); n > 0 {
		t.metrics.ReminderFailures.Add(float64(n))
	}
}

func (t *Tracker) get(ctx context.Context, id engine.MedicationID) (engine.Medication, error) {
	med, ok, err := t.Medications.Get(ctx, string(id))
	if err != nil {
		return engine.Medication{}, err
	}
	if !ok {
		return engine.Medication{}, fmt.Errorf("%w: %s", engine.ErrMedicationNotFound, id)
	}
	return med, nil
}

// save persists updated if the stored version still matches read. Supply
// is clamped before it reaches the store.
func (t *Tracker) save(ctx context.Context, read, updated engine.Medication) (engine.Medication, error) {
	current, err := t.get(ctx, read.ID)
	if err != nil {
		return engine.Medication{}, err
	}
	if current.Version != read.Version {
		return engine.Medication{}, fmt.Errorf("%w: %s (read v%d, stored v%d)",
			engine.ErrConcurrentModification, read.ID, read.Version, current.Version)
	}

	updated.Version = read.Version + 1
	updated.CurrentSupply = updated.ClampSupply(updated.CurrentSupply)
	if err := t.Medications.Put(ctx, updated); err != nil {
		return engine.Medication{}, err
	}
	return updated, nil
}

func (t *Tracker) lock(id engine.MedicationID) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &medLock{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(t.locks, id)
		}
		t.mu.Unlock()
	}
}
