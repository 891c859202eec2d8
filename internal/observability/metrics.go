package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the lending pool.
type Metrics struct {
	// --- Pool operations ---
	OperationsApplied  *prometheus.CounterVec
	OperationsRejected *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	AccrualDuration    prometheus.Histogram

	// --- Reserve state ---
	ReserveLiquidity   *prometheus.GaugeVec
	ReserveBorrowed    *prometheus.GaugeVec
	ReserveUtilization *prometheus.GaugeVec

	// --- UTXO lock ---
	LockAcquired   prometheus.Counter
	LockRetries    prometheus.Counter
	LockContention prometheus.Counter
	LockExpired    prometheus.Counter

	// --- Liquidation ---
	LiquidationsTotal    *prometheus.CounterVec
	CollateralSeized     *prometheus.CounterVec
	LiquidatablePosCount prometheus.Gauge
	SweepDuration        prometheus.Histogram

	// --- Oracle ---
	OracleLookups *prometheus.CounterVec

	// --- Settlement broadcast ---
	BroadcastSubmitted *prometheus.CounterVec
	BroadcastFailures  *prometheus.CounterVec

	// --- Persistence ---
	StoreErrors *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.00001, 0.00005, 0.0001, 0.00025, 0.0005,
		0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
	}

	return &Metrics{
		OperationsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_operations_applied_total",
			Help: "Pool operations applied successfully",
		}, []string{"operation", "asset"}),

		OperationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_operations_rejected_total",
			Help: "Pool operations rejected, by error kind",
		}, []string{"operation", "kind"}),

		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lend_operation_duration_seconds",
			Help:    "Time to apply a single pool operation",
			Buckets: opBuckets,
		}, []string{"operation"}),

		AccrualDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lend_accrual_duration_seconds",
			Help:    "Time to advance reserve indices",
			Buckets: opBuckets,
		}),

		ReserveLiquidity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_reserve_liquidity",
			Help: "Total liquidity per reserve (satoshis)",
		}, []string{"asset"}),

		ReserveBorrowed: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_reserve_borrowed",
			Help: "Total borrowed per reserve (satoshis)",
		}, []string{"asset"}),

		ReserveUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lend_reserve_utilization",
			Help: "Borrowed / liquidity per reserve (0.0-1.0)",
		}, []string{"asset"}),

		LockAcquired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_utxo_lock_acquired_total",
			Help: "UTXO locks acquired",
		}),

		LockRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_utxo_lock_retries_total",
			Help: "Lock acquisitions that needed the backoff retry",
		}),

		LockContention: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_utxo_lock_contention_total",
			Help: "Lock acquisitions that failed after retry",
		}),

		LockExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_utxo_lock_expired_total",
			Help: "Stale locks swept on acquire",
		}),

		LiquidationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_liquidations_total",
			Help: "Completed liquidations (full/partial)",
		}, []string{"asset", "outcome"}),

		CollateralSeized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_collateral_seized_total",
			Help: "Collateral seized by liquidators (satoshis)",
		}, []string{"asset"}),

		LiquidatablePosCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lend_liquidatable_positions",
			Help: "Positions below the health threshold at last sweep",
		}),

		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lend_liquidation_sweep_duration_seconds",
			Help:    "Time to scan all debt positions for liquidation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		OracleLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_oracle_lookups_total",
			Help: "Oracle price lookups by result (ok/stale/missing)",
		}, []string{"asset", "status"}),

		BroadcastSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_broadcast_submitted_total",
			Help: "Settlement transactions submitted",
		}, []string{"operation"}),

		BroadcastFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_broadcast_failures_total",
			Help: "Settlement broadcasts that failed after state commit",
		}, []string{"operation"}),

		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_store_errors_total",
			Help: "Persistence write errors",
		}, []string{"entity"}),
	}
}

// SetReserveGauges updates the per-reserve gauges after a mutation.
func (m *Metrics) SetReserveGauges(asset string, totalLiquidity, totalBorrowed int64) {
	m.ReserveLiquidity.WithLabelValues(asset).Set(float64(totalLiquidity))
	m.ReserveBorrowed.WithLabelValues(asset).Set(float64(totalBorrowed))
	if totalLiquidity > 0 {
		m.ReserveUtilization.WithLabelValues(asset).Set(float64(totalBorrowed) / float64(totalLiquidity))
	} else {
		m.ReserveUtilization.WithLabelValues(asset).Set(0)
	}
}
