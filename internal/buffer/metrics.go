package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "minirel"
	metricsSubsystem = "buffer_pool"
)

type Metrics struct {
	hits       *prometheus.CounterVec
	misses     *prometheus.CounterVec
	evictions  *prometheus.CounterVec
	writeBacks *prometheus.CounterVec
	occupied   *prometheus.GaugeVec
}

// NewMetrics creates the buffer pool collectors and registers them when a
// registerer is given.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "hits_total",
			Help:      "Fetches served by an already resident page.",
		}, []string{"pool"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "misses_total",
			Help:      "Fetches that had to load the page from the store.",
		}, []string{"pool"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "evictions_total",
			Help:      "Pages evicted to make room for another page.",
		}, []string{"pool"}),
		writeBacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "write_backs_total",
			Help:      "Dirty pages written back to the store.",
		}, []string{"pool"}),
		occupied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "occupied_slots",
			Help:      "Number of occupied slots.",
		}, []string{"pool"}),
	}

	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.evictions, m.writeBacks, m.occupied)
	}

	return m
}
