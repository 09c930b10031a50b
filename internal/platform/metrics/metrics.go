package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the scheduling core. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Booking outcomes: created, conflict, validation, not_found, unreachable, canceled, error
	Bookings *prometheus.CounterVec

	// Directory lookups by entity kind and result
	Verifications *prometheus.CounterVec

	VerificationLatency *prometheus.HistogramVec

	// Cancel/delete outcomes
	Transitions *prometheus.CounterVec
}

// New registers the scheduling metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appointments_bookings_total",
			Help: "Total booking attempts by outcome",
		}, []string{"outcome"}),

		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appointments_verifications_total",
			Help: "Directory existence checks by entity kind and status",
		}, []string{"kind", "status"}),

		VerificationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appointments_verification_seconds",
			Help:    "Duration of directory existence checks",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appointments_transitions_total",
			Help: "Cancel and delete operations by outcome",
		}, []string{"operation", "outcome"}),
	}
}

func (m *Metrics) IncBooking(outcome string) {
	if m != nil {
		m.Bookings.WithLabelValues(outcome).Inc()
	}
}

// ObserveVerification records a single directory lookup.
func (m *Metrics) ObserveVerification(kind, status string, d time.Duration) {
	if m != nil {
		m.Verifications.WithLabelValues(kind, status).Inc()
		m.VerificationLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) IncTransition(operation, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(operation, outcome).Inc()
	}
}
