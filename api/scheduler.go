/*
scheduler.go - Automated refill reminder scheduler

PURPOSE:
  Periodically checks for medications whose supply dropped into the Low
  tier and asks the reminder platform for a refill reminder.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Only medications with refill reminders enabled are considered
  - At most one refill reminder per medication per calendar day
  - Reminder failures are logged by the tracker and never stop the loop

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRefillScheduler(tracker, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - tracker/tracker.go: LowSupply, RemindRefill
  - reminder/breaker.go: Circuit breaker around the platform
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/dose-engine/engine"
	"github.com/warp/dose-engine/tracker"
)

// RefillScheduler sends refill reminders for low supply.
type RefillScheduler struct {
	Tracker       *tracker.Tracker
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger

	remindedMu sync.Mutex
	reminded   map[engine.MedicationID]engine.Day

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRefillScheduler creates a new scheduler.
func NewRefillScheduler(t *tracker.Tracker, logger *zap.Logger) *RefillScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefillScheduler{
		Tracker:       t,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logger.Named("refill-scheduler"),
		reminded:      make(map[engine.MedicationID]engine.Day),
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RefillScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.logger.Info("started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight check.
func (rs *RefillScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.logger.Info("stopped")
	}
}

func (rs *RefillScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.CheckOnce(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.CheckOnce(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// CheckOnce runs a single pass and returns how many reminders were sent.
func (rs *RefillScheduler) CheckOnce(ctx context.Context) int {
	low, err := rs.Tracker.LowSupply(ctx)
	if err != nil {
		rs.logger.Error("listing low supply failed", zap.Error(err))
		return 0
	}

	rs.forgetExcept(low)

	today := rs.Tracker.Today()
	sent := 0
	for _, med := range low {
		if last, ok := rs.lastReminded(med.ID); ok && last.Equal(today) {
			continue
		}
		rs.Tracker.RemindRefill(ctx, med)
		rs.markReminded(med.ID, today)
		sent++
	}

	if sent > 0 {
		rs.logger.Info("refill check completed",
			zap.Int("low_supply", len(low)),
			zap.Int("reminded", sent))
	}
	return sent
}

func (rs *RefillScheduler) lastReminded(id engine.MedicationID) (engine.Day, bool) {
	rs.remindedMu.Lock()
	defer rs.remindedMu.Unlock()
	d, ok := rs.reminded[id]
	return d, ok
}

func (rs *RefillScheduler) markReminded(id engine.MedicationID, day engine.Day) {
	rs.remindedMu.Lock()
	defer rs.remindedMu.Unlock()
	rs.reminded[id] = day
}

// forgetExcept drops medications that are no longer low, including deleted
// ones, so a later drop back to low is reminded again.
func (rs *RefillScheduler) forgetExcept(low []engine.Medication) {
	keep := make(map[engine.MedicationID]bool, len(low))
	for _, med := range low {
		keep[med.ID] = true
	}

	rs.remindedMu.Lock()
	defer rs.remindedMu.Unlock()
	for id := range rs.reminded {
		if !keep[id] {
			delete(rs.reminded, id)
		}
	}
}
