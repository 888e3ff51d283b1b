// Package metrics provides Prometheus metrics for idbstore
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	TransactionsTotal *prometheus.CounterVec
	LockWaitsTotal    prometheus.Counter
	BlockedTotal      *prometheus.CounterVec

	OpenConnections prometheus.Gauge
	Databases       prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idbstore_requests_total",
			Help: "Total number of executed requests",
		},
		[]string{"op", "status"},
	)

	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "idbstore_request_duration_seconds",
			Help:    "Execution time of requests in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"op"},
	)

	m.TransactionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idbstore_transactions_total",
			Help: "Total number of finished transactions",
		},
		[]string{"mode", "outcome"},
	)

	m.LockWaitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "idbstore_lock_waits_total",
			Help: "Transactions that had to wait for a scope lock",
		},
	)

	m.BlockedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idbstore_blocked_total",
			Help: "Open or delete requests blocked by open connections",
		},
		[]string{"kind"},
	)

	m.OpenConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "idbstore_open_connections",
			Help: "Currently open connections",
		},
	)

	m.Databases = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "idbstore_databases",
			Help: "Databases in the catalog",
		},
	)

	return m
}

// RecordRequest records one executed request
func (m *Metrics) RecordRequest(op string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(op, status).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordTransaction records a finished transaction
func (m *Metrics) RecordTransaction(mode string, outcome string) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) RecordLockWait() {
	if m == nil {
		return
	}
	m.LockWaitsTotal.Inc()
}

// RecordBlocked records a blocked open or delete; kind is "open" or "delete"
func (m *Metrics) RecordBlocked(kind string) {
	if m == nil {
		return
	}
	m.BlockedTotal.WithLabelValues(kind).Inc()
}

// AddConnections adjusts the open connection gauge
func (m *Metrics) AddConnections(delta int) {
	if m == nil {
		return
	}
	m.OpenConnections.Add(float64(delta))
}

// SetDatabases sets the catalog size gauge
func (m *Metrics) SetDatabases(n int) {
	if m == nil {
		return
	}
	m.Databases.Set(float64(n))
}
