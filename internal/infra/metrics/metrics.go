// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockdesk"

type Metrics struct {
	TransactionsCreated  *prometheus.CounterVec
	TransactionsDecided  *prometheus.CounterVec
	StockMutations       *prometheus.CounterVec
	StocktakingCompleted *prometheus.CounterVec
	NotificationsFailed  prometheus.Counter
	NotificationsDropped prometheus.Counter
	HTTPDuration         *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransactionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_created_total",
			Help:      "Inventory transactions submitted, by type.",
		}, []string{"type"}),
		TransactionsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_decided_total",
			Help:      "Inventory transactions approved or rejected.",
		}, []string{"action"}),
		StockMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_mutations_total",
			Help:      "Committed stock changes, by history change type.",
		}, []string{"change_type"}),
		StocktakingCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stocktaking_completed_total",
			Help:      "Completed stocktaking tasks.",
		}, []string{"update_stock"}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Notifications a sink failed to deliver.",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the queue was full.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TransactionsCreated,
			m.TransactionsDecided,
			m.StockMutations,
			m.StocktakingCompleted,
			m.NotificationsFailed,
			m.NotificationsDropped,
			m.HTTPDuration,
		)
	}
	return m
}

// Nop returns unregistered collectors, for callers that do not export metrics.
func Nop() *Metrics { return New(nil) }

func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	m.HTTPDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}
