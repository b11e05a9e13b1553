/*
Package tracker is the Supply & Progress Aggregator.

PURPOSE:
  Joins the Schedule Resolver and the Dose Ledger into the answers a host UI
  needs: which medications are due today, whether each was taken, how far
  the day is done, and how urgent a refill is. It also sequences the writes
  that touch both the ledger and a medication's supply counter.

KEY CONCEPTS IN THIS FILE (aggregate.go):
  - TodaysMedications: Active set for a day, input order preserved
  - IsTaken: Taken status from a day's events
  - DailyProgress: Completed / expected doses, clamped to [0, 1]
  - SupplyTier: Low / Medium / Good refill urgency

  Everything here is a pure function of its arguments. The stateful side
  (re-reading the store, writing the ledger then the supply) lives in
  tracker.go.

SEE ALSO:
  - tracker.go: TakeDose / UndoDose / Refill
  - view.go: Load + Recompute view-model
  - engine/schedule.go: IsActiveOn
*/
package tracker

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/dose-engine/engine"
)

// DefaultDosesPerDay is the expected number of doses per active medication
// per day used by DailyProgress.
const DefaultDosesPerDay = 2

var hundred = decimal.NewFromInt(100)

// =============================================================================
// ACTIVE SET & STATUS
// =============================================================================

// TodaysMedications returns the medications active on today, in input order.
func TodaysMedications(all []engine.Medication, today engine.Day) []engine.Medication {
	var active []engine.Medication
	for _, med := range all {
		if engine.IsActiveOn(med, today) {
			active = append(active, med)
		}
	}
	return active
}

// IsTaken reports whether events holds a taken=true event for medID.
// Callers pass the events of the day in question.
func IsTaken(medID engine.MedicationID, events []engine.DoseEvent) bool {
	for _, ev := range events {
		if ev.MedicationID == medID && ev.Taken {
			return true
		}
	}
	return false
}

// =============================================================================
// DAILY PROGRESS
// =============================================================================

type Progress struct {
	Completed  int
	Expected   int
	Percentage decimal.Decimal // in [0, 1]
}

// DailyProgress counts taken events of the active medications against
// len(active) * dosesPerDay. Percentage is 0 when nothing is expected.
func DailyProgress(active []engine.Medication, events []engine.DoseEvent, dosesPerDay int) Progress {
	ids := make(map[engine.MedicationID]bool, len(active))
	for _, med := range active {
		ids[med.ID] = true
	}

	completed := 0
	for _, ev := range events {
		if ev.Taken && ids[ev.MedicationID] {
			completed++
		}
	}

	p := Progress{
		Completed:  completed,
		Expected:   len(active) * dosesPerDay,
		Percentage: decimal.Zero,
	}
	if p.Expected <= 0 {
		return p
	}

	pct := decimal.NewFromInt(int64(p.Completed)).Div(decimal.NewFromInt(int64(p.Expected)))
	switch {
	case pct.IsNegative():
		pct = decimal.Zero
	case pct.GreaterThan(decimal.NewFromInt(1)):
		pct = decimal.NewFromInt(1)
	}
	p.Percentage = pct
	return p
}

// =============================================================================
// SUPPLY TIER
// =============================================================================

// SupplyTier is the refill urgency. Tiers order Low < Medium < Good.
type SupplyTier int

const (
	TierLow SupplyTier = iota
	TierMedium
	TierGood
)

func (t SupplyTier) String() string {
	switch t {
	case TierLow:
		return "Low"
	case TierMedium:
		return "Medium"
	case TierGood:
		return "Good"
	default:
		return fmt.Sprintf("SupplyTier(%d)", int(t))
	}
}

func (t SupplyTier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// SupplyPercentage returns CurrentSupply / TotalSupply * 100. ok is false
// when TotalSupply is zero.
func SupplyPercentage(med engine.Medication) (pct decimal.Decimal, ok bool) {
	if med.TotalSupply <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(int64(med.CurrentSupply)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(med.TotalSupply))), true
}

// SupplyTierOf classifies the remaining supply. Boundaries are inclusive on
// the low side: exactly RefillThreshold percent is Low, exactly 50 is Medium.
func SupplyTierOf(med engine.Medication) SupplyTier {
	pct, ok := SupplyPercentage(med)
	if !ok {
		return TierLow
	}
	switch {
	case pct.LessThanOrEqual(decimal.NewFromInt(int64(med.RefillThreshold))):
		return TierLow
	case pct.LessThanOrEqual(decimal.NewFromInt(50)):
		return TierMedium
	default:
		return TierGood
	}
}

// RefillStatus is one row of the refill overview.
type RefillStatus struct {
	Medication engine.Medication
	Tier       SupplyTier
	Percentage decimal.Decimal
}

// RefillOverview classifies every medication, in input order.
func RefillOverview(meds []engine.Medication) []RefillStatus {
	out := make([]RefillStatus, 0, len(meds))
	for _, med := range meds {
		pct, _ := SupplyPercentage(med)
		out = append(out, RefillStatus{
			Medication: med,
			Tier:       SupplyTierOf(med),
			Percentage: pct,
		})
	}
	return out
}
