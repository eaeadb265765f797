package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for StableVault.
type Metrics struct {
	// --- Engine operations ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Solvency ---
	HealthCheckFailures  *prometheus.CounterVec
	LiquidationsApplied  prometheus.Counter
	LiquidationsRejected *prometheus.CounterVec

	// --- Price feed ---
	PriceUpdates       *prometheus.CounterVec
	PriceParseFailures prometheus.Counter

	// --- Persistence ---
	JournalRowsWritten prometheus.Counter
	JournalErrors      prometheus.Counter
	JournalBatchSize   prometheus.Histogram
	JournalChanSize    prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_applied_total",
			Help: "Committed engine operations",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_rejected_total",
			Help: "Rejected engine operations",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_op_duration_seconds",
			Help:    "Time to apply a single engine operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		HealthCheckFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_health_check_failures_total",
			Help: "Operations aborted by the minimum health factor check",
		}, []string{"op"}),

		LiquidationsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_liquidations_applied_total",
			Help: "Completed liquidations",
		}),

		LiquidationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_liquidations_rejected_total",
			Help: "Rejected liquidation attempts",
		}, []string{"reason"}),

		PriceUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_price_updates_total",
			Help: "Price feed updates applied to the oracle cache",
		}, []string{"feed"}),

		PriceParseFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_price_parse_failures_total",
			Help: "Price feed messages that failed to parse",
		}),

		JournalRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_journal_rows_written_total",
			Help: "Operation journal rows written to Postgres",
		}),

		JournalErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vault_journal_errors_total",
			Help: "Operation journal write errors",
		}),

		JournalBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_journal_batch_size",
			Help:    "Rows per journal batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		JournalChanSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vault_journal_chan_size",
			Help: "Current items queued for the journal worker",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_query_requests_total",
			Help: "HTTP query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_query_duration_seconds",
			Help:    "HTTP query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"endpoint"}),
	}
}
