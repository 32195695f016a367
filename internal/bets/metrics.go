package bets

import (
	"errors"
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OpsTotal counts state machine calls by operation.
	OpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socialbets",
			Name:      "bet_operations_total",
			Help:      "Total bet operations by type.",
		},
		[]string{"op"},
	)

	// OpDuration observes call latency, including time spent waiting for the call lock.
	OpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "socialbets",
			Name:      "bet_operation_duration_seconds",
			Help:      "Bet operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"op"},
	)

	// RejectionsTotal counts calls rejected by a guard.
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socialbets",
			Name:      "bet_rejections_total",
			Help:      "Bet operations rejected before any effect, by operation and reason.",
		},
		[]string{"op", "reason"},
	)

	BetsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socialbets",
			Name:      "bets_created_total",
			Help:      "Total bets created.",
		},
	)

	// BetsResolvedTotal counts terminal transitions by outcome (finished, cancelled) and reason.
	BetsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "socialbets",
			Name:      "bets_resolved_total",
			Help:      "Total bets resolved by outcome and reason.",
		},
		[]string{"outcome", "reason"},
	)

	BetsEscalatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socialbets",
			Name:      "bets_escalated_total",
			Help:      "Total bets handed to a mediator.",
		},
	)

	// FeeCollectedEther is approximate; the exact amount lives in Params.
	FeeCollectedEther = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "socialbets",
			Name:      "fee_collected_ether_total",
			Help:      "Platform fees booked at bet creation, in ether.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OpsTotal,
		OpDuration,
		RejectionsTotal,
		BetsCreatedTotal,
		BetsResolvedTotal,
		BetsEscalatedTotal,
		FeeCollectedEther,
	)
}

// observeOp increments the operation counter and returns a function to observe duration.
func observeOp(op string) func() {
	OpsTotal.WithLabelValues(op).Inc()
	start := time.Now()
	return func() {
		OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func observeRejection(op string, err error) {
	RejectionsTotal.WithLabelValues(op, rejectionReason(err)).Inc()
}

// rejectionReason keeps label cardinality bounded.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrBetNotFound):
		return "not_found"
	case errors.Is(err, ErrNoTimeout):
		return "no_timeout"
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotMediator),
		errors.Is(err, ErrNotParticipating), errors.Is(err, ErrPrivateBet),
		errors.Is(err, ErrFirstPartyOrMediator), errors.Is(err, ErrContractCaller):
		return "forbidden"
	case errors.Is(err, ErrAlreadyJoined), errors.Is(err, ErrNotWaitingForParty2),
		errors.Is(err, ErrNotWaitingForVotes), errors.Is(err, ErrNotWaitingForMediator),
		errors.Is(err, ErrCannotChangeAnswer), errors.Is(err, ErrBetExists), errors.Is(err, ErrPaused):
		return "conflict"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	}
	return "invalid"
}

var weiPerEther = new(big.Float).SetFloat64(1e18)

func observeEvents(events []Event, fee *big.Int) {
	for _, e := range events {
		switch e.Kind {
		case EventNewBetCreated:
			BetsCreatedTotal.Inc()
		case EventWaitingMediator:
			BetsEscalatedTotal.Inc()
		case EventFinished:
			BetsResolvedTotal.WithLabelValues("finished", e.Reason).Inc()
		case EventCancelled:
			BetsResolvedTotal.WithLabelValues("cancelled", e.Reason).Inc()
		}
	}
	if fee != nil && fee.Sign() > 0 {
		f, _ := new(big.Float).Quo(new(big.Float).SetInt(fee), weiPerEther).Float64()
		FeeCollectedEther.Add(f)
	}
}
