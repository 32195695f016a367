// Package keeper cranks bets whose deadline has passed. It holds no
// privileges: it calls the same public timeout handlers anyone can.
package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/retry"
)

const (
	DefaultInterval  = 30 * time.Second
	DefaultBatchSize = 100
)

// Cranker is the slice of bets.Service the keeper drives.
type Cranker interface {
	DueBets(ctx context.Context, limit int) ([]*bets.Bet, error)
	Party2TimeoutHandler(ctx context.Context, caller common.Address, id common.Hash) (*bets.Receipt, error)
	VotesTimeoutHandler(ctx context.Context, caller common.Address, id common.Hash) (*bets.Receipt, error)
	MediatorTimeoutHandler(ctx context.Context, caller common.Address, id common.Hash) (*bets.Receipt, error)
}

// Result summarizes one pass.
type Result struct {
	Due     int
	Cranked int
	// Skipped counts bets another caller resolved or moved first.
	Skipped int
	Failed  int
}

// Keeper periodically lists due bets and calls the matching timeout handler.
type Keeper struct {
	cranker   Cranker
	address   common.Address
	interval  time.Duration
	batchSize int
	policy    retry.Policy
	logger    *slog.Logger
	stop      chan struct{}
	running   atomic.Bool
}

// New creates a keeper acting as address.
func New(cranker Cranker, address common.Address, logger *slog.Logger) *Keeper {
	return &Keeper{
		cranker:   cranker,
		address:   address,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		policy: retry.Policy{
			Attempts:  3,
			Base:      500 * time.Millisecond,
			Max:       5 * time.Second,
			Permanent: isDomainError,
		},
		logger: logger,
		stop:   make(chan struct{}, 1),
	}
}

// WithInterval sets the time between passes.
func (k *Keeper) WithInterval(d time.Duration) *Keeper {
	if d > 0 {
		k.interval = d
	}
	return k
}

// WithRetryPolicy replaces the per-crank retry policy. The domain error
// classifier is kept when p has none.
func (k *Keeper) WithRetryPolicy(p retry.Policy) *Keeper {
	if p.Permanent == nil {
		p.Permanent = isDomainError
	}
	k.policy = p
	return k
}

// Address is the caller the keeper cranks as.
func (k *Keeper) Address() common.Address {
	return k.address
}

// Running reports whether the loop is active.
func (k *Keeper) Running() bool {
	return k.running.Load()
}

// Start runs passes until ctx is done or Stop is called. Call in a goroutine.
func (k *Keeper) Start(ctx context.Context) {
	k.running.Store(true)
	defer k.running.Store(false)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-k.stop:
			return
		case <-ticker.C:
			k.safeRun(ctx)
		}
	}
}

// Stop signals the loop to stop.
func (k *Keeper) Stop() {
	select {
	case k.stop <- struct{}{}:
	default:
	}
}

func (k *Keeper) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			k.logger.Error("panic in keeper", "panic", fmt.Sprint(r))
		}
	}()
	if _, err := k.RunOnce(ctx); err != nil {
		k.logger.Warn("keeper pass failed", "error", err)
	}
}

// RunOnce cranks every bet that is due now, up to the batch size.
func (k *Keeper) RunOnce(ctx context.Context) (Result, error) {
	due, err := k.cranker.DueBets(ctx, k.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list due bets: %w", err)
	}

	res := Result{Due: len(due)}
	for _, b := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		handler, fn := k.handlerFor(b.State)
		resolved := false
		err := k.policy.Do(ctx, func() error {
			r, err := fn(ctx, k.address, b.ID)
			if r != nil {
				// committed; a remaining error is a payout failure
				resolved = true
				return retry.Permanent(err)
			}
			return err
		})

		switch {
		case err == nil:
			res.Cranked++
			CrankCallsTotal.WithLabelValues(handler, "ok").Inc()
			k.logger.Info("cranked bet", "betId", b.ID.Hex(), "handler", handler, "state", b.State.String())
		case !resolved && isDomainError(err):
			res.Skipped++
			CrankCallsTotal.WithLabelValues(handler, "skipped").Inc()
			k.logger.Debug("bet no longer due", "betId", b.ID.Hex(), "handler", handler, "reason", err)
		default:
			res.Failed++
			CrankCallsTotal.WithLabelValues(handler, "error").Inc()
			k.logger.Warn("failed to crank bet", "betId", b.ID.Hex(), "handler", handler, "error", err)
		}
	}
	return res, nil
}

type crankFunc func(context.Context, common.Address, common.Hash) (*bets.Receipt, error)

func (k *Keeper) handlerFor(s bets.State) (string, crankFunc) {
	switch s {
	case bets.WaitingParty2:
		return "party2", k.cranker.Party2TimeoutHandler
	case bets.WaitingMediator:
		return "mediator", k.cranker.MediatorTimeoutHandler
	default:
		return "votes", k.cranker.VotesTimeoutHandler
	}
}

// isDomainError reports rejections that retrying cannot change, such as a
// bet already resolved by another caller.
func isDomainError(err error) bool {
	status, _ := bets.StatusFor(err)
	return status != http.StatusInternalServerError
}
