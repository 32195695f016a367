package bets

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Genesis holds the constructor parameters of a deployment.
type Genesis struct {
	Owner              common.Address
	FeePercentage      uint64
	MinBetValue        *big.Int
	DefaultMediatorFee uint64
	DefaultMediator    common.Address
	// MediationTimeLimit defaults to DefaultMediationTimeLimit when zero.
	MediationTimeLimit time.Duration
}

// Init validates g and stores it as the initial Params. When the store
// already holds Params the stored values win and g is ignored.
func (s *Service) Init(ctx context.Context, g Genesis) (*Params, error) {
	unlock, err := s.lock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.store.LoadParams(ctx)
	if err == nil {
		s.logger.Info("bets params loaded from store", "owner", existing.Owner.Hex())
		return existing, nil
	}
	if !errors.Is(err, ErrParamsNotFound) {
		return nil, err
	}

	if g.Owner == (common.Address{}) {
		return nil, ErrBadOwner
	}
	if g.FeePercentage > Divisor {
		return nil, ErrBadFee
	}
	if g.DefaultMediatorFee > Divisor {
		return nil, ErrBadMediatorFee
	}
	if g.DefaultMediator == (common.Address{}) {
		return nil, ErrBadMediator
	}
	if err := s.requireEOA(ctx, g.DefaultMediator, ErrBadMediator); err != nil {
		return nil, err
	}
	minBet := new(big.Int)
	if g.MinBetValue != nil {
		if g.MinBetValue.Sign() < 0 {
			return nil, ErrBadMinBetValue
		}
		minBet.Set(g.MinBetValue)
	}
	limit := g.MediationTimeLimit
	if limit == 0 {
		limit = DefaultMediationTimeLimit
	}
	if !validMediationTimeLimit(limit) {
		return nil, ErrBadMediationTimeLimit
	}

	p := &Params{
		Owner:              g.Owner,
		FeePercentage:      g.FeePercentage,
		MinBetValue:        minBet,
		DefaultMediatorFee: g.DefaultMediatorFee,
		DefaultMediator:    g.DefaultMediator,
		MediationTimeLimit: limit,
		CollectedFee:       new(big.Int),
	}
	if err := s.store.Commit(ctx, &Change{Params: p}); err != nil {
		return nil, err
	}
	s.logger.Info("bets params initialized",
		"owner", p.Owner.Hex(), "fee_percentage", p.FeePercentage,
		"default_mediator", p.DefaultMediator.Hex(), "mediation_time_limit", p.MediationTimeLimit)
	return p.Clone(), nil
}

// Params returns the current deployment parameters.
func (s *Service) Params(ctx context.Context) (*Params, error) {
	return s.loadParams(ctx)
}

// admin runs an owner-only parameter change.
func (s *Service) admin(ctx context.Context, op string, caller common.Address, mutate func(ctx context.Context, p *Params) error) error {
	_, err := s.run(ctx, op, caller, func(ctx context.Context, t *txn) error {
		if caller != t.params.Owner {
			return ErrNotOwner
		}
		np := t.params.Clone()
		if err := mutate(ctx, np); err != nil {
			return err
		}
		t.ref = op
		t.change.Params = np
		return nil
	})
	if err == nil {
		s.log(ctx).Info("bets params changed", "op", op, "by", caller.Hex())
	}
	return err
}

// SetFeePercentage sets the platform fee rate in basis points.
func (s *Service) SetFeePercentage(ctx context.Context, caller common.Address, fee uint64) error {
	return s.admin(ctx, "SetFeePercentage", caller, func(_ context.Context, p *Params) error {
		if fee > Divisor {
			return ErrBadFee
		}
		p.FeePercentage = fee
		return nil
	})
}

// SetMinBetValue sets the smallest stake either party may offer.
func (s *Service) SetMinBetValue(ctx context.Context, caller common.Address, value *big.Int) error {
	return s.admin(ctx, "SetMinBetValue", caller, func(_ context.Context, p *Params) error {
		if value == nil || value.Sign() < 0 {
			return ErrBadMinBetValue
		}
		p.MinBetValue = new(big.Int).Set(value)
		return nil
	})
}

// SetDefaultMediatorFee sets the fee used with the default mediator.
func (s *Service) SetDefaultMediatorFee(ctx context.Context, caller common.Address, fee uint64) error {
	return s.admin(ctx, "SetDefaultMediatorFee", caller, func(_ context.Context, p *Params) error {
		if fee > Divisor {
			return ErrBadMediatorFee
		}
		p.DefaultMediatorFee = fee
		return nil
	})
}

// SetDefaultMediator sets the mediator used when a bet names none.
func (s *Service) SetDefaultMediator(ctx context.Context, caller, mediator common.Address) error {
	return s.admin(ctx, "SetDefaultMediator", caller, func(ctx context.Context, p *Params) error {
		if mediator == (common.Address{}) {
			return ErrBadMediator
		}
		if err := s.requireEOA(ctx, mediator, ErrBadMediator); err != nil {
			return err
		}
		p.DefaultMediator = mediator
		return nil
	})
}

// validMediationTimeLimit reports whether d is a positive whole number of
// seconds, the resolution deadlines are stored at.
func validMediationTimeLimit(d time.Duration) bool {
	return d >= time.Second && d%time.Second == 0
}

// SetMediationTimeLimit sets how long mediators have after the result timeframe.
func (s *Service) SetMediationTimeLimit(ctx context.Context, caller common.Address, limit time.Duration) error {
	return s.admin(ctx, "SetMediationTimeLimit", caller, func(_ context.Context, p *Params) error {
		if !validMediationTimeLimit(limit) {
			return ErrBadMediationTimeLimit
		}
		p.MediationTimeLimit = limit
		return nil
	})
}

// Pause stops new bets from being created. Live bets are unaffected.
func (s *Service) Pause(ctx context.Context, caller common.Address) error {
	return s.admin(ctx, "Pause", caller, func(_ context.Context, p *Params) error {
		if p.Paused {
			return ErrPaused
		}
		p.Paused = true
		return nil
	})
}

// Unpause allows bet creation again.
func (s *Service) Unpause(ctx context.Context, caller common.Address) error {
	return s.admin(ctx, "Unpause", caller, func(_ context.Context, p *Params) error {
		if !p.Paused {
			return ErrNotPaused
		}
		p.Paused = false
		return nil
	})
}

// TransferOwnership hands the admin capability to newOwner.
func (s *Service) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return s.admin(ctx, "TransferOwnership", caller, func(_ context.Context, p *Params) error {
		if newOwner == (common.Address{}) {
			return ErrBadOwner
		}
		p.Owner = newOwner
		return nil
	})
}

// WithdrawFee pays every collected platform fee to the owner.
func (s *Service) WithdrawFee(ctx context.Context, caller common.Address) (*Receipt, error) {
	return s.run(ctx, "WithdrawFee", caller, func(_ context.Context, t *txn) error {
		if caller != t.params.Owner {
			return ErrNotOwner
		}
		if t.params.CollectedFee.Sign() == 0 {
			return ErrNoFeeToWithdraw
		}
		np := t.params.Clone()
		t.pay(caller, np.CollectedFee)
		np.CollectedFee = new(big.Int)
		t.ref = "fee-withdrawal"
		t.change.Params = np
		return nil
	})
}
