// Package metrics provides Prometheus metrics for the dose engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	DosesTaken       prometheus.Counter
	DosesUndone      prometheus.Counter
	DoseConflicts    *prometheus.CounterVec
	Refills          prometheus.Counter
	MedicationsAdded prometheus.Counter
	ReminderFailures prometheus.Counter
	LowSupply        prometheus.Gauge
}

// New creates the metrics and registers them on reg. A nil reg leaves them
// unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DosesTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doses_taken_total",
			Help: "Total doses recorded as taken",
		}),
		DosesUndone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doses_undone_total",
			Help: "Total taken doses reversed",
		}),
		DoseConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dose_conflicts_total",
			Help: "Dose actions refused (already taken, nothing to undo)",
		}, []string{"reason"}),
		Refills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refills_total",
			Help: "Total refills recorded",
		}),
		MedicationsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medications_added_total",
			Help: "Total medications created",
		}),
		ReminderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_failures_total",
			Help: "Reminder scheduling calls that failed",
		}),
		LowSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "medications_low_supply",
			Help: "Medications currently in the low supply tier",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.DosesTaken,
			m.DosesUndone,
			m.DoseConflicts,
			m.Refills,
			m.MedicationsAdded,
			m.ReminderFailures,
			m.LowSupply,
		)
	}

	return m
}

// Handler returns the Prometheus HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
