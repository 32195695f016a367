package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	// reconcileCustodyDiffEther is custody minus expected custody. Anything
	// but zero needs manual resolution.
	reconcileCustodyDiffEther = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "socialbets",
		Subsystem: "reconciliation",
		Name:      "custody_diff_ether",
		Help:      "Custody balance minus live stakes and uncollected fees, in ether.",
	})

	reconcileOverdueBets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "socialbets",
		Subsystem: "reconciliation",
		Name:      "overdue_bets",
		Help:      "Bets past their deadline that nobody has cranked yet.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "socialbets",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "socialbets",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileCustodyDiffEther,
		reconcileOverdueBets,
		reconcileDuration,
		reconcileErrors,
	)
}
