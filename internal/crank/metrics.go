package crank

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the crank's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	SettleAttempts *prometheus.CounterVec
	PendingOrders  *prometheus.GaugeVec
	FreeFunds      *prometheus.GaugeVec
	TickDuration   prometheus.Histogram
	TickErrors     prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry, so several services can
// coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.SettleAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalpool",
			Subsystem: "crank",
			Name:      "settle_attempts_total",
			Help:      "SettleFunds attempts by pool and outcome",
		},
		[]string{"pool", "result"},
	)
	m.PendingOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "signalpool",
			Subsystem: "pool",
			Name:      "pending_orders",
			Help:      "Pending order count in the pool status byte",
		},
		[]string{"pool"},
	)
	m.FreeFunds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "signalpool",
			Subsystem: "pool",
			Name:      "free_funds",
			Help:      "Settleable native amount per open orders leg",
		},
		[]string{"pool", "open_orders", "leg"},
	)
	m.TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signalpool",
			Subsystem: "crank",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one crank tick",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	m.TickErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signalpool",
			Subsystem: "crank",
			Name:      "tick_errors_total",
			Help:      "Pools whose tick failed before any settlement was sent",
		},
	)

	m.registry.MustRegister(m.SettleAttempts)
	m.registry.MustRegister(m.PendingOrders)
	m.registry.MustRegister(m.FreeFunds)
	m.registry.MustRegister(m.TickDuration)
	m.registry.MustRegister(m.TickErrors)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
