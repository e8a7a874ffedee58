package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the reconciliation core.
type Metrics struct {
	// Per-attribute outcomes by status code
	AttributeOutcome *prometheus.CounterVec

	// Attributes that aborted with a structural fault, by error code
	AttributeFault *prometheus.CounterVec

	// Whole change requests that reconciled to a no-op
	NoOpRequests prometheus.Counter

	// Duration of a full Apply over a change request
	ApplyLatency prometheus.Histogram
}

// New creates a Metrics instance with all reconciliation metrics registered.
func New() *Metrics {
	return &Metrics{
		AttributeOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_reconcile_attribute_outcomes_total",
			Help: "Total per-attribute reconciliation outcomes by status code",
		}, []string{"status"}),

		AttributeFault: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_reconcile_attribute_faults_total",
			Help: "Total attributes aborted by structural faults, by error code",
		}, []string{"code"}),

		NoOpRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_reconcile_noop_requests_total",
			Help: "Total change requests that reconciled to no state change",
		}),

		ApplyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civreg_reconcile_apply_duration_seconds",
			Help:    "Duration of applying a full change request",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),
	}
}

// IncrementOutcome records one per-attribute outcome.
func (m *Metrics) IncrementOutcome(status string) {
	if m != nil {
		m.AttributeOutcome.WithLabelValues(status).Inc()
	}
}

// IncrementFault records one structurally-failed attribute.
func (m *Metrics) IncrementFault(code string) {
	if m != nil {
		m.AttributeFault.WithLabelValues(code).Inc()
	}
}

// IncrementNoOp records a whole-request no-op.
func (m *Metrics) IncrementNoOp() {
	if m != nil {
		m.NoOpRequests.Inc()
	}
}

// ObserveApplyLatency records the duration of one Apply call.
func (m *Metrics) ObserveApplyLatency(d time.Duration) {
	if m != nil {
		m.ApplyLatency.Observe(d.Seconds())
	}
}
