package service

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/msomdec/locomotiva-cache/internal/policy"
)

const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultStale   = "stale"
	resultSuspect = "suspect"
	resultEmpty   = "empty"
	resultError   = "error"

	opSave       = "save"
	opInvalidate = "invalidate"
	opClear      = "clear"
	opPurge      = "purge"
)

// Metrics holds the cache's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	lookups *prometheus.CounterVec
	writes  *prometheus.CounterVec
}

// NewMetrics creates the cache collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "locomotiva",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by collection and result.",
		}, []string{"collection", "result"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "locomotiva",
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Cache writes by collection, operation and result.",
		}, []string{"collection", "op", "result"}),
	}
	reg.MustRegister(m.lookups, m.writes)
	return m
}

// Lookups returns the lookup counter for collection and result.
func (m *Metrics) Lookups(collection, result string) prometheus.Counter {
	return m.lookups.WithLabelValues(collection, result)
}

// Writes returns the write counter for collection, op and result.
func (m *Metrics) Writes(collection, op, result string) prometheus.Counter {
	return m.writes.WithLabelValues(collection, op, result)
}

func (m *Metrics) lookup(collection, result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(collection, result).Inc()
}

func (m *Metrics) write(collection, op string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = resultError
	}
	m.writes.WithLabelValues(collection, op, result).Inc()
}

func verdictResult(v policy.Verdict) string {
	switch v {
	case policy.Fresh:
		return resultHit
	case policy.Stale:
		return resultStale
	case policy.Suspect:
		return resultSuspect
	case policy.Empty:
		return resultEmpty
	default:
		return resultError
	}
}
