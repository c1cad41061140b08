// Package metrics provides Prometheus metrics collection for billgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for billgate.
type Collector struct {
	// Billing run metrics
	BillingRunsTotal      prometheus.Counter
	BillingRunDuration    prometheus.Histogram
	SubscriptionsBilled   prometheus.Counter
	SubscriptionErrors    prometheus.Counter
	WindowsBilled         *prometheus.CounterVec
	AmountBilled          *prometheus.CounterVec

	// Document metrics
	DocumentsGenerated *prometheus.CounterVec
	DocumentsIssued    *prometheus.CounterVec
	DocumentsPaid      *prometheus.CounterVec

	// Transaction metrics
	TransactionsCreated *prometheus.CounterVec
	TransactionsSettled *prometheus.CounterVec
	TransactionsFailed  *prometheus.CounterVec
	TransactionRetries  *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector with all metrics registered.
func New() *Collector {
	return &Collector{
		// Billing run metrics
		BillingRunsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "billing_runs_total",
				Help:      "Total number of billing runs executed",
			},
		),
		BillingRunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "billgate",
				Name:      "billing_run_duration_seconds",
				Help:      "Billing run duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		SubscriptionsBilled: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "subscriptions_billed_total",
				Help:      "Total subscriptions processed by billing runs",
			},
		),
		SubscriptionErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "subscription_errors_total",
				Help:      "Total subscriptions skipped by billing runs due to errors",
			},
		),
		WindowsBilled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "windows_billed_total",
				Help:      "Total billing windows charged",
			},
			[]string{"kind"},
		),
		AmountBilled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "amount_billed_total",
				Help:      "Total amount billed before tax",
			},
			[]string{"currency"},
		),

		// Document metrics
		DocumentsGenerated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "documents_generated_total",
				Help:      "Total billing documents generated",
			},
			[]string{"kind"},
		),
		DocumentsIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "documents_issued_total",
				Help:      "Total billing documents issued",
			},
			[]string{"kind"},
		),
		DocumentsPaid: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "documents_paid_total",
				Help:      "Total billing documents paid",
			},
			[]string{"kind"},
		),

		// Transaction metrics
		TransactionsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "transactions_created_total",
				Help:      "Total payment transactions created",
			},
			[]string{"processor"},
		),
		TransactionsSettled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "transactions_settled_total",
				Help:      "Total payment transactions settled",
			},
			[]string{"processor"},
		),
		TransactionsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "transactions_failed_total",
				Help:      "Total payment transactions failed",
			},
			[]string{"processor"},
		),
		TransactionRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "transaction_retries_total",
				Help:      "Total transaction retries created",
			},
			[]string{"trigger"},
		),

		// Config metrics
		ConfigReloads: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "config_reloads_total",
				Help:      "Total number of config reloads",
			},
		),
		ConfigReloadErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "billgate",
				Name:      "config_reload_errors_total",
				Help:      "Total number of failed config reloads",
			},
		),
		ConfigLastReload: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "billgate",
				Name:      "config_last_reload_timestamp_seconds",
				Help:      "Unix timestamp of the last successful config reload",
			},
		),
	}
}
