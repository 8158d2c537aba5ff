// Package metric defines the Prometheus metrics exported by the dictionary.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultHit     = "hit"
	ResultMiss    = "miss"
)

// Metrics holds the dictionary collectors. All methods are safe on a nil receiver.
type Metrics struct {
	BuildsTotal     *prometheus.CounterVec
	BuildDuration   *prometheus.HistogramVec
	Models          *prometheus.GaugeVec
	CacheLookups    *prometheus.CounterVec
	ModelOperations *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semdict",
				Subsystem: "dictionary",
				Name:      "builds_total",
				Help:      "Total number of tenant dictionary builds",
			},
			[]string{"tenant", "result"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "semdict",
				Subsystem: "dictionary",
				Name:      "build_duration_seconds",
				Help:      "Duration of tenant dictionary builds in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tenant"},
		),
		Models: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "semdict",
				Subsystem: "dictionary",
				Name:      "models",
				Help:      "Number of models published for a tenant",
			},
			[]string{"tenant"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semdict",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Registry cache lookups by result",
			},
			[]string{"result"},
		),
		ModelOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semdict",
				Subsystem: "model",
				Name:      "operations_total",
				Help:      "Model admin operations by operation and result",
			},
			[]string{"operation", "result"},
		),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.BuildsTotal, m.BuildDuration, m.Models, m.CacheLookups, m.ModelOperations,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveBuild records one build attempt.
func (m *Metrics) ObserveBuild(tenant string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(tenant, result(err)).Inc()
	if err == nil {
		m.BuildDuration.WithLabelValues(tenant).Observe(d.Seconds())
	}
}

// SetModels records the number of models published for tenant.
func (m *Metrics) SetModels(tenant string, n int) {
	if m == nil {
		return
	}
	m.Models.WithLabelValues(tenant).Set(float64(n))
}

// ObserveCache records a registry cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues(ResultHit).Inc()
		return
	}
	m.CacheLookups.WithLabelValues(ResultMiss).Inc()
}

// ObserveOperation records an admin operation such as "put" or "remove".
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	m.ModelOperations.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
