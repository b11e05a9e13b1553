package reminder_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/dose-engine/engine"
	"github.com/warp/dose-engine/reminder"
)

// flakyScheduler fails every call while down is set.
type flakyScheduler struct {
	down  atomic.Bool
	calls atomic.Int32
}

func (f *flakyScheduler) ScheduleReminder(_ context.Context, _ engine.MedicationID, at engine.LocalTime) (reminder.Handle, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return "", errors.New("platform down")
	}
	return reminder.Handle("dose@" + at.String()), nil
}

func (f *flakyScheduler) ScheduleRefillReminder(_ context.Context, medID engine.MedicationID) (reminder.Handle, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return "", errors.New("platform down")
	}
	return reminder.Handle("refill@" + string(medID)), nil
}

func med(reminders, refill bool) engine.Medication {
	return engine.Medication{
		ID:                    "med-1",
		Schedule:              []engine.LocalTime{engine.MustParseLocalTime("09:00"), engine.MustParseLocalTime("21:00")},
		ReminderEnabled:       reminders,
		RefillReminderEnabled: refill,
	}
}

// =============================================================================
// FAN-OUT
// =============================================================================

func TestScheduleMedication_OnePerTimePlusRefill(t *testing.T) {
	s := &flakyScheduler{}

	res := reminder.ScheduleMedication(context.Background(), s, med(true, true), nil)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []reminder.Handle{"dose@09:00", "dose@21:00", "refill@med-1"}, res.Handles)
}

func TestScheduleMedication_RespectsFlags(t *testing.T) {
	s := &flakyScheduler{}

	res := reminder.ScheduleMedication(context.Background(), s, med(false, false), nil)
	assert.Empty(t, res.Handles)
	assert.Zero(t, s.calls.Load())

	res = reminder.ScheduleMedication(context.Background(), s, med(false, true), nil)
	assert.Equal(t, []reminder.Handle{"refill@med-1"}, res.Handles)
}

func TestScheduleMedication_FailuresCollectedAndLogged(t *testing.T) {
	// GIVEN: A platform that rejects every request
	// WHEN: Scheduling a two-time medication with refill reminders
	// THEN: Three errors wrap ErrNotificationScheduling and each is logged

	s := &flakyScheduler{}
	s.down.Store(true)
	core, logs := observer.New(zap.WarnLevel)

	res := reminder.ScheduleMedication(context.Background(), s, med(true, true), zap.New(core))
	require.Len(t, res.Errors, 3)
	for _, err := range res.Errors {
		assert.ErrorIs(t, err, engine.ErrNotificationScheduling)
	}
	assert.Equal(t, 3, logs.Len())
}

func TestLogging_Scheduler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := reminder.NewLogging(zap.New(core))

	h1, err := l.ScheduleReminder(context.Background(), "med-1", engine.MustParseLocalTime("08:00"))
	require.NoError(t, err)
	h2, err := l.ScheduleRefillReminder(context.Background(), "med-1")
	require.NoError(t, err)

	assert.NotEmpty(t, h1)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, logs.Len())
}

// =============================================================================
// CIRCUIT BREAKER
// =============================================================================

func TestGuarded_TripsOpenAndFailsFast(t *testing.T) {
	// GIVEN: A breaker tripping after 2 consecutive failures
	// WHEN: The platform fails twice, then a third call is made
	// THEN: The third call never reaches the platform

	s := &flakyScheduler{}
	s.down.Store(true)

	cfg := reminder.DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Hour
	g := reminder.NewGuarded(s, cfg, nil)

	for i := 0; i < 2; i++ {
		_, err := g.ScheduleRefillReminder(context.Background(), "med-1")
		assert.Error(t, err)
	}
	assert.Equal(t, "open", g.State())

	_, err := g.ScheduleReminder(context.Background(), "med-1", engine.MustParseLocalTime("09:00"))
	assert.ErrorIs(t, err, engine.ErrNotificationScheduling)
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestGuarded_PassesThroughWhenHealthy(t *testing.T) {
	s := &flakyScheduler{}
	g := reminder.NewGuarded(s, reminder.DefaultBreakerConfig(), zap.NewNop())

	h, err := g.ScheduleReminder(context.Background(), "med-1", engine.MustParseLocalTime("09:00"))
	require.NoError(t, err)
	assert.Equal(t, reminder.Handle("dose@09:00"), h)
	assert.Equal(t, "closed", g.State())
}
