// Package metrics defines Prometheus instruments for the identity service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the identity service instruments. All methods are nil-safe so
// callers can run without metrics in tests.
type Metrics struct {
	identitiesCreated prometheus.Counter
	updateRequests    *prometheus.CounterVec
	updateDuration    prometheus.Histogram
	readsFiltered     prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

// Update request result labels.
const (
	ResultChanged = "changed"
	ResultNoOp    = "noop"
	ResultError   = "error"
)

func New() *Metrics {
	return &Metrics{
		identitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_identities_created_total",
			Help: "Number of identity records created.",
		}),
		updateRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_identity_update_requests_total",
			Help: "Attribute update requests by overall result.",
		}, []string{"result"}),
		updateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civreg_identity_update_duration_seconds",
			Help:    "End-to-end latency of attribute update requests.",
			Buckets: prometheus.DefBuckets,
		}),
		readsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_identity_attributes_filtered_total",
			Help: "Attributes withheld from read responses for lack of a read grant.",
		}),
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_identity_cache_hits_total",
			Help: "Identity snapshot reads served from the Redis cache.",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_identity_cache_misses_total",
			Help: "Identity snapshot reads that fell through to the store.",
		}),
	}
}

func (m *Metrics) IdentityCreated() {
	if m == nil {
		return
	}
	m.identitiesCreated.Inc()
}

func (m *Metrics) UpdateRequest(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.updateRequests.WithLabelValues(result).Inc()
	m.updateDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) AttributesFiltered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.readsFiltered.Add(float64(n))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
