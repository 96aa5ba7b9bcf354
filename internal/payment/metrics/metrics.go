package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification outcomes.
const (
	OutcomeSuccess          = "success"
	OutcomeReplayed         = "replayed"
	OutcomeSignatureInvalid = "signature_invalid"
	OutcomeDuplicate        = "duplicate_capture"
	OutcomeError            = "error"
)

// Metrics holds payment-core Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	OrdersCreated      *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	VerifyDuration     prometheus.Histogram
	SideEffectFailures *prometheus.CounterVec
	ApplicationsRepair prometheus.Counter
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrdersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admissions_payment_orders_total",
			Help: "Payment orders requested, by outcome",
		}, []string{"outcome"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admissions_payment_verifications_total",
			Help: "Payment callback verifications, by outcome",
		}, []string{"outcome"}),
		VerifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "admissions_payment_verify_duration_seconds",
			Help:    "Time from callback receipt to committed payment state",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "admissions_payment_side_effect_failures_total",
			Help: "Post-commit side effects that failed, by task",
		}, []string{"task"}),
		ApplicationsRepair: factory.NewCounter(prometheus.CounterOpts{
			Name: "admissions_payment_applications_repaired_total",
			Help: "Applications whose payment status was realigned by the repair sweep",
		}),
	}
}

func (m *Metrics) ObserveOrder(outcome string) {
	if m == nil {
		return
	}
	m.OrdersCreated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVerification(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
	m.VerifyDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) IncrementSideEffectFailure(task string) {
	if m == nil {
		return
	}
	m.SideEffectFailures.WithLabelValues(task).Inc()
}

func (m *Metrics) IncrementRepaired() {
	if m == nil {
		return
	}
	m.ApplicationsRepair.Inc()
}
