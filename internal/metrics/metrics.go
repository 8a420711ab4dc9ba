package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "foods"

type Metrics struct {
	CheckoutResults  *prometheus.CounterVec
	CheckoutAttempts prometheus.Counter
	CheckoutConflict prometheus.Counter
	CheckoutLatency  prometheus.Histogram

	ReconcileTicks   *prometheus.CounterVec
	ReconcileDrained *prometheus.CounterVec
	ReconcileRows    prometheus.Counter

	NotifyEvents *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "checkout", Name: "results_total",
			Help: "Checkout outcomes by result.",
		}, []string{"result"}),
		CheckoutAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "checkout", Name: "attempts_total",
			Help: "Transaction attempts, including retries.",
		}),
		CheckoutConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "checkout", Name: "optimistic_conflicts_total",
			Help: "Attempts aborted by a stale stock version.",
		}),
		CheckoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "checkout", Name: "duration_ms",
			Help:    "End-to-end checkout latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		ReconcileTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconciler", Name: "ticks_total",
			Help: "Reconciler ticks by result (applied, empty, skipped, error).",
		}, []string{"result"}),
		ReconcileDrained: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconciler", Name: "drained_keys_total",
			Help: "Counter keys drained from the fast store.",
		}, []string{"metric"}),
		ReconcileRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconciler", Name: "applied_rows_total",
			Help: "Food rows updated by batched counter merges.",
		}),
		NotifyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "events_total",
			Help: "Post-commit events by sink and result.",
		}, []string{"sink", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_ms",
			Help:    "HTTP request latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
	}
	reg.MustRegister(
		m.CheckoutResults, m.CheckoutAttempts, m.CheckoutConflict, m.CheckoutLatency,
		m.ReconcileTicks, m.ReconcileDrained, m.ReconcileRows,
		m.NotifyEvents,
		m.HTTPRequests, m.HTTPLatency,
	)
	return m
}

// NewNop returns collectors bound to a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
