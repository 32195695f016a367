package keeper

import "github.com/prometheus/client_golang/prometheus"

// CrankCallsTotal counts timeout handler calls by handler and result (ok, skipped, error).
var CrankCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "socialbets",
		Name:      "crank_calls_total",
		Help:      "Timeout handler calls made by the keeper.",
	},
	[]string{"handler", "result"},
)

func init() {
	prometheus.MustRegister(CrankCallsTotal)
}
