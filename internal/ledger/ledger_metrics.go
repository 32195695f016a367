package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LedgerOpsTotal counts balance movements by entry type: deposit and
	// withdrawal for player funds, lock when a stake enters custody, payout when
	// a resolved bet releases it.
	LedgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socialbets",
			Name:      "ledger_operations_total",
			Help:      "Total ledger operations by type.",
		},
		[]string{"type"},
	)

	// LedgerOpDuration observes how long each movement takes to record, by entry type.
	LedgerOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "socialbets",
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"type"},
	)

	// LedgerCustodyEther is the ether locked for live bets plus fees not yet
	// withdrawn. Reconciliation sets it after comparing against the bet store.
	LedgerCustodyEther = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "socialbets",
			Name:      "ledger_custody_ether",
			Help:      "Funds held in custody for live bets and uncollected fees, in ether.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		LedgerOpsTotal,
		LedgerOpDuration,
		LedgerCustodyEther,
	)
}

// observeOp counts one movement of opType and returns a func that records its duration.
func observeOp(opType string) func() {
	LedgerOpsTotal.WithLabelValues(opType).Inc()
	start := time.Now()
	return func() {
		LedgerOpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}
