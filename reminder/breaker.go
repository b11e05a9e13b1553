package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/warp/dose-engine/engine"
)

// BreakerConfig holds circuit breaker configuration for a Scheduler.
type BreakerConfig struct {
	Name string
	// MaxRequests is max requests allowed in half-open state
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts in closed state
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker
	ConsecutiveFailures uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "reminders",
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Guarded wraps a Scheduler so a failing platform is not called while the
// breaker is open. Requests rejected by an open breaker fail fast with
// engine.ErrNotificationScheduling.
type Guarded struct {
	next   Scheduler
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

func NewGuarded(next Scheduler, cfg BreakerConfig, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}

	g := &Guarded{next: next, logger: logger}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("reminder breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return g
}

// State reports the breaker state ("closed", "open", "half-open").
func (g *Guarded) State() string { return g.cb.State().String() }

func (g *Guarded) ScheduleReminder(ctx context.Context, medID engine.MedicationID, at engine.LocalTime) (Handle, error) {
	return g.execute(func() (Handle, error) {
		return g.next.ScheduleReminder(ctx, medID, at)
	})
}

func (g *Guarded) ScheduleRefillReminder(ctx context.Context, medID engine.MedicationID) (Handle, error) {
	return g.execute(func() (Handle, error) {
		return g.next.ScheduleRefillReminder(ctx, medID)
	})
}

func (g *Guarded) execute(fn func() (Handle, error)) (Handle, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", fmt.Errorf("%w: %w", engine.ErrNotificationScheduling, err)
		}
		return "", err
	}
	return out.(Handle), nil
}
