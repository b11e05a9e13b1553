// Package reminder defines the notification capability the engine consumes
// and the local implementations of it.
//
// The engine asks for "remind about medication M at local time T" and for a
// refill reminder. How the platform delivers them is not its concern, and a
// failure is never allowed to block a medication or dose write.
package reminder

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/dose-engine/engine"
)

// Handle identifies a scheduled reminder on the platform side.
type Handle string

// Scheduler is the notification capability.
type Scheduler interface {
	ScheduleReminder(ctx context.Context, medID engine.MedicationID, at engine.LocalTime) (Handle, error)
	ScheduleRefillReminder(ctx context.Context, medID engine.MedicationID) (Handle, error)
}

// =============================================================================
// LOGGING SCHEDULER
// =============================================================================

// Logging accepts every request and writes it to the log. It stands in for
// the platform when the engine runs headless.
type Logging struct {
	logger *zap.Logger
}

func NewLogging(logger *zap.Logger) *Logging {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logging{logger: logger}
}

func (l *Logging) ScheduleReminder(_ context.Context, medID engine.MedicationID, at engine.LocalTime) (Handle, error) {
	h := Handle(uuid.NewString())
	l.logger.Info("dose reminder scheduled",
		zap.String("medication_id", string(medID)),
		zap.Stringer("at", at),
		zap.String("handle", string(h)))
	return h, nil
}

func (l *Logging) ScheduleRefillReminder(_ context.Context, medID engine.MedicationID) (Handle, error) {
	h := Handle(uuid.NewString())
	l.logger.Info("refill reminder scheduled",
		zap.String("medication_id", string(medID)),
		zap.String("handle", string(h)))
	return h, nil
}

// =============================================================================
// FAN-OUT
// =============================================================================

// Result reports what happened for one medication.
type Result struct {
	Handles []Handle
	Errors  []error
}

// ScheduleMedication schedules one reminder per schedule time when reminders
// are enabled, and a refill reminder when refill reminders are enabled.
// Failures are collected and logged; the caller decides whether to count
// them but never fails the surrounding write.
func ScheduleMedication(ctx context.Context, s Scheduler, med engine.Medication, logger *zap.Logger) Result {
	if logger == nil {
		logger = zap.NewNop()
	}
	var res Result

	if med.ReminderEnabled {
		for _, at := range med.Schedule {
			h, err := s.ScheduleReminder(ctx, med.ID, at)
			if err != nil {
				err = fmt.Errorf("%w: %s at %s: %w", engine.ErrNotificationScheduling, med.ID, at, err)
				logger.Warn("failed to schedule dose reminder",
					zap.String("medication_id", string(med.ID)),
					zap.Stringer("at", at),
					zap.Error(err))
				res.Errors = append(res.Errors, err)
				continue
			}
			res.Handles = append(res.Handles, h)
		}
	}

	if med.RefillReminderEnabled {
		h, err := s.ScheduleRefillReminder(ctx, med.ID)
		if err != nil {
			err = fmt.Errorf("%w: refill %s: %w", engine.ErrNotificationScheduling, med.ID, err)
			logger.Warn("failed to schedule refill reminder",
				zap.String("medication_id", string(med.ID)),
				zap.Error(err))
			res.Errors = append(res.Errors, err)
		} else {
			res.Handles = append(res.Handles, h)
		}
	}

	return res
}
