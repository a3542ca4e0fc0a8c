// Package metrics exposes Prometheus collectors for walletd.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletd"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Balance metrics
	BalanceQueries   *prometheus.CounterVec
	SnapshotDuration prometheus.Histogram

	// Price metrics
	PriceLookups *prometheus.CounterVec

	// Session metrics
	ActiveSessions prometheus.Gauge
	AccountEvents  *prometheus.CounterVec

	// Approval metrics
	Approvals *prometheus.CounterVec

	// Notifier metrics
	NotificationsDropped prometheus.Counter
	SinkErrors           *prometheus.CounterVec
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BalanceQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "queries_total",
			Help:      "Balance queries by chain and outcome",
		}, []string{"chain_id", "outcome"}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "snapshot_duration_seconds",
			Help:      "Time to build a priced balance snapshot",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),

		PriceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "lookups_total",
			Help:      "Price lookups by outcome (stable, cache, source, error)",
		}, []string{"outcome"}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Open wallet sessions",
		}),
		AccountEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "account_events_total",
			Help:      "Debounced account events by outcome",
		}, []string{"outcome"}),

		Approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "items_total",
			Help:      "Approval items by final outcome",
		}, []string{"outcome"}),

		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Events dropped because the queue was full",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sink_errors_total",
			Help:      "Sink delivery failures by sink",
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BalanceQueries,
		m.SnapshotDuration,
		m.PriceLookups,
		m.ActiveSessions,
		m.AccountEvents,
		m.Approvals,
		m.NotificationsDropped,
		m.SinkErrors,
	)
	return m
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordBalanceQuery counts one (chain, token) balance read.
func (m *Metrics) RecordBalanceQuery(chainID uint64, outcome string) {
	if m == nil {
		return
	}
	m.BalanceQueries.WithLabelValues(strconv.FormatUint(chainID, 10), outcome).Inc()
}

// RecordSnapshot records the time taken to build a snapshot.
func (m *Metrics) RecordSnapshot(d time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotDuration.Observe(d.Seconds())
}

// RecordPriceLookup counts a price lookup.
func (m *Metrics) RecordPriceLookup(outcome string) {
	if m == nil {
		return
	}
	m.PriceLookups.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// RecordAccountEvent counts a debounced account event.
func (m *Metrics) RecordAccountEvent(outcome string) {
	if m == nil {
		return
	}
	m.AccountEvents.WithLabelValues(outcome).Inc()
}

// RecordApproval counts an approval item outcome.
func (m *Metrics) RecordApproval(outcome string) {
	if m == nil {
		return
	}
	m.Approvals.WithLabelValues(outcome).Inc()
}

// RecordDropped counts a notification dropped on a full queue.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

// RecordSinkError counts a failed sink delivery.
func (m *Metrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}
