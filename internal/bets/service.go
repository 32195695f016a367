package bets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betdapp/socialbets-smartcontracts/internal/logging"
	"github.com/betdapp/socialbets-smartcontracts/internal/syncutil"
	"github.com/betdapp/socialbets-smartcontracts/internal/traces"
)

// Service implements the bet lifecycle. Every mutating call runs under one
// call lock: guards are evaluated first, then funds are locked, the change is
// committed, payouts are released and events are published, in that order.
type Service struct {
	store    Store
	ledger   LedgerService
	accounts AccountChecker
	events   EventSink
	logger   *slog.Logger
	now      func() time.Time
	lock     *syncutil.CallLock
}

// NewService creates a new bets service.
func NewService(store Store, ledger LedgerService, accounts AccountChecker) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		accounts: accounts,
		logger:   slog.Default(),
		now:      time.Now,
		lock:     syncutil.NewCallLock(),
	}
}

// WithEvents adds a sink for committed lifecycle events.
func (s *Service) WithEvents(sink EventSink) *Service {
	s.events = sink
	return s
}

// WithLogger sets the service logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// WithClock overrides the time source. Tests use it to cross deadlines.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// txn accumulates the effects of one call while guards run.
// Nothing in it touches the ledger or the store until apply.
type txn struct {
	params  *Params
	now     time.Time
	caller  common.Address
	betID   common.Hash
	ref     string
	lockIn  *big.Int
	change  Change
	payouts []Payout
	events  []Event
	fee     *big.Int
}

func (t *txn) emit(kind EventKind, b *Bet, opts ...func(*Event)) {
	e := Event{
		Kind:        kind,
		BetID:       b.ID,
		FirstParty:  b.FirstParty,
		SecondParty: b.SecondParty,
		Mediator:    b.Mediator,
		At:          t.now,
	}
	for _, o := range opts {
		o(&e)
	}
	t.events = append(t.events, e)
}

func withActor(addr common.Address, answer Answer) func(*Event) {
	return func(e *Event) {
		e.Actor = &addr
		e.Answer = answer
	}
}

func withReason(reason string) func(*Event) {
	return func(e *Event) { e.Reason = reason }
}

func (t *txn) pay(to common.Address, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	t.payouts = append(t.payouts, Payout{To: to, Amount: new(big.Int).Set(amount)})
}

func (t *txn) update(b *Bet) {
	b.UpdatedAt = t.now
	t.change.Put = b
}

func (t *txn) index(role Role, addr common.Address, id common.Hash, remove bool) {
	t.change.Index = append(t.change.Index, IndexOp{Role: role, Addr: addr, BetID: id, Remove: remove})
}

// complete deletes b and every index entry that points at it.
func (t *txn) complete(b *Bet) {
	id := b.ID
	t.change.Put = nil
	t.change.Delete = &id
	t.index(RoleFirstParty, b.FirstParty, id, true)
	if b.Joined() {
		t.index(RoleSecondParty, b.SecondParty, id, true)
	}
	if b.State == WaitingMediator {
		t.index(RoleMediator, b.Mediator, id, true)
	}
	t.emit(EventCompleted, b)
}

func (t *txn) finish(b *Bet, reason FinishReason) {
	t.emit(EventFinished, b, withReason(reason.String()))
	t.complete(b)
}

func (t *txn) cancel(b *Bet, reason CancelReason) {
	t.emit(EventCancelled, b, withReason(reason.String()))
	t.complete(b)
}

func (t *txn) refundStakes(b *Bet) {
	t.pay(b.FirstParty, b.FirstBetValue)
	t.pay(b.SecondParty, b.SecondBetValue)
}

func (t *txn) escalate(b *Bet) {
	b.State = WaitingMediator
	t.update(b)
	t.index(RoleMediator, b.Mediator, b.ID, false)
	t.emit(EventWaitingMediator, b)
}

// run executes fn under the call lock and applies what it staged.
func (s *Service) run(ctx context.Context, op string, caller common.Address, fn func(ctx context.Context, t *txn) error) (receipt *Receipt, err error) {
	ctx, span := traces.StartSpan(ctx, "bets."+op, traces.Caller(caller.Hex()))
	defer func() { traces.End(span, err) }()
	done := observeOp(op)
	defer done()

	unlock, err := s.lock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	params, err := s.loadParams(ctx)
	if err != nil {
		return nil, err
	}

	t := &txn{params: params, now: s.now(), caller: caller}
	if err = fn(ctx, t); err != nil {
		observeRejection(op, err)
		return nil, err
	}
	if t.ref == "" {
		t.ref = t.betID.Hex()
	}
	if t.betID != (common.Hash{}) {
		span.SetAttributes(traces.BetID(t.betID.Hex()))
		ctx = logging.WithBetID(ctx, t.betID.Hex())
	}
	return s.apply(ctx, t)
}

func (s *Service) apply(ctx context.Context, t *txn) (*Receipt, error) {
	locked := t.lockIn != nil && t.lockIn.Sign() > 0
	if locked {
		if err := s.ledger.Lock(ctx, t.caller, t.lockIn, t.ref); err != nil {
			return nil, fmt.Errorf("failed to lock bet funds: %w", err)
		}
	}

	if err := s.store.Commit(ctx, &t.change); err != nil {
		if locked {
			// Best-effort refund if store fails
			if perr := s.ledger.Payout(ctx, t.caller, t.lockIn, t.ref); perr != nil {
				s.log(ctx).Error("CRITICAL: bet funds locked but commit and refund both failed",
					"caller", t.caller.Hex(), "amount", t.lockIn.String(), "commit_error", err, "refund_error", perr)
			}
		}
		return nil, fmt.Errorf("failed to commit bet change: %w", err)
	}

	var payoutErr error
	for _, p := range t.payouts {
		if err := s.payout(ctx, p, t.ref); err != nil {
			payoutErr = err
		}
	}

	if s.events != nil && len(t.events) > 0 {
		s.events.Publish(ctx, t.events)
	}
	observeEvents(t.events, t.fee)

	receipt := &Receipt{BetID: t.betID, Events: t.events, Payouts: t.payouts}
	if payoutErr != nil {
		return receipt, fmt.Errorf("bet %s committed but payout failed (requires manual resolution): %w", t.ref, payoutErr)
	}
	return receipt, nil
}

// payout releases custody funds. The bet change is already committed, so a
// failure cannot be rolled back; retry once, then leave it for an operator.
func (s *Service) payout(ctx context.Context, p Payout, ref string) error {
	err := s.ledger.Payout(ctx, p.To, p.Amount, ref)
	if err == nil {
		return nil
	}
	if retryErr := s.ledger.Payout(ctx, p.To, p.Amount, ref); retryErr != nil {
		s.log(ctx).Error("CRITICAL: bet resolved but payout failed",
			"to", p.To.Hex(), "amount", p.Amount.String(), "error", retryErr)
		return retryErr
	}
	return nil
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	logger := s.logger
	if id := logging.RequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	if id := logging.BetID(ctx); id != "" {
		logger = logger.With("bet_id", id)
	}
	return logger
}

func (s *Service) loadParams(ctx context.Context) (*Params, error) {
	p, err := s.store.LoadParams(ctx)
	if errors.Is(err, ErrParamsNotFound) {
		return nil, ErrNotInitialized
	}
	return p, err
}

func (s *Service) requireEOA(ctx context.Context, addr common.Address, rejection error) error {
	if s.accounts == nil {
		return nil
	}
	isContract, err := s.accounts.IsContract(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to inspect account %s: %w", addr.Hex(), err)
	}
	if isContract {
		return rejection
	}
	return nil
}

func unixSeconds(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}

// CreateBet offers a new bet. value must equal the first stake plus the
// platform fee; it is moved into custody and the fee is booked as collected.
func (s *Service) CreateBet(ctx context.Context, caller common.Address, req CreateRequest, value *big.Int) (*Receipt, error) {
	return s.run(ctx, "CreateBet", caller, func(ctx context.Context, t *txn) error {
		p := t.params
		if p.Paused {
			return ErrPaused
		}
		if err := s.requireEOA(ctx, caller, ErrContractCaller); err != nil {
			return err
		}

		mediator, mediatorFee := req.Mediator, req.MediatorFee
		if mediator == (common.Address{}) {
			mediator, mediatorFee = p.DefaultMediator, p.DefaultMediatorFee
		}
		if req.SecondParty == mediator || req.SecondParty == caller || mediator == caller {
			return ErrBadMediatorOrSecondParty
		}
		if err := s.requireEOA(ctx, mediator, ErrBadMediator); err != nil {
			return err
		}
		if mediatorFee > Divisor {
			return ErrBadMediatorFee
		}
		if req.FirstBetValue == nil || req.SecondBetValue == nil ||
			req.FirstBetValue.Cmp(p.MinBetValue) < 0 || req.SecondBetValue.Cmp(p.MinBetValue) < 0 {
			return ErrBetValueTooSmall
		}

		fee := CalculateFee(req.FirstBetValue, req.SecondBetValue, p.FeePercentage)
		if value == nil || value.Cmp(new(big.Int).Add(req.FirstBetValue, fee)) != 0 {
			return ErrBadValue
		}

		spt, rt := unixSeconds(req.SecondPartyTimeframe), unixSeconds(req.ResultTimeframe)
		if !spt.After(t.now) {
			return ErrSecondPartyTimeframePassed
		}
		if !rt.After(t.now) {
			return ErrResultTimeframePassed
		}
		if !rt.After(spt) {
			return ErrResultBeforeSecondParty
		}

		id, err := CalculateBetID(req.Metadata, caller, req.FirstBetValue, req.SecondBetValue, spt, rt)
		if err != nil {
			return err
		}
		if _, err := s.store.Get(ctx, id); err == nil {
			return ErrBetExists
		} else if !errors.Is(err, ErrBetNotFound) {
			return err
		}

		b := &Bet{
			ID:                   id,
			Metadata:             req.Metadata,
			FirstParty:           caller,
			SecondParty:          req.SecondParty,
			Mediator:             mediator,
			FirstBetValue:        new(big.Int).Set(req.FirstBetValue),
			SecondBetValue:       new(big.Int).Set(req.SecondBetValue),
			MediatorFee:          mediatorFee,
			SecondPartyTimeframe: spt,
			ResultTimeframe:      rt,
			State:                WaitingParty2,
			CreatedAt:            t.now,
		}
		t.betID = id
		t.lockIn = new(big.Int).Set(value)
		t.fee = fee

		np := p.Clone()
		np.CollectedFee.Add(np.CollectedFee, fee)
		t.change.Params = np
		t.update(b)
		t.change.Create = true
		t.index(RoleFirstParty, caller, id, false)

		snapshot := b.Clone()
		t.emit(EventNewBetCreated, b, func(e *Event) { e.Bet = snapshot })
		return nil
	})
}

// Participate joins a bet as second party. After the second party
// timeframe it cancels the bet instead, refunding the first party, and
// reports false without taking value.
func (s *Service) Participate(ctx context.Context, caller common.Address, id common.Hash, value *big.Int) (bool, *Receipt, error) {
	joined := false
	receipt, err := s.run(ctx, "Participate", caller, func(ctx context.Context, t *txn) error {
		t.betID = id
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if b.State != WaitingParty2 {
			return ErrAlreadyJoined
		}
		if caller == b.FirstParty || caller == b.Mediator {
			return ErrFirstPartyOrMediator
		}
		if !b.Public() && caller != b.SecondParty {
			return ErrPrivateBet
		}
		if value == nil || value.Cmp(b.SecondBetValue) != 0 {
			return ErrBadValue
		}

		if t.now.After(b.SecondPartyTimeframe) {
			t.pay(b.FirstParty, b.FirstBetValue)
			t.cancel(b, CancelParty2Timeout)
			return nil
		}

		b.SecondParty = caller
		b.State = WaitingFirstVote
		t.lockIn = new(big.Int).Set(value)
		t.update(b)
		t.index(RoleSecondParty, caller, id, false)
		t.emit(EventSecondPartyParticipated, b, withActor(caller, Unset))
		joined = true
		return nil
	})
	return joined && err == nil, receipt, err
}

// Vote records a party's answer. A vote after the result timeframe records
// nothing and applies the votes timeout instead.
func (s *Service) Vote(ctx context.Context, caller common.Address, id common.Hash, answer Answer) (*Receipt, error) {
	return s.run(ctx, "Vote", caller, func(ctx context.Context, t *txn) error {
		t.betID = id
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !b.State.Voting() {
			return ErrNotWaitingForVotes
		}
		isFirst, isSecond := caller == b.FirstParty, caller == b.SecondParty
		if !isFirst && !isSecond {
			return ErrNotParticipating
		}
		if !answer.Valid() {
			return ErrWrongAnswer
		}

		if t.now.After(b.ResultTimeframe) {
			t.votesTimeout(b)
			return nil
		}

		if (isFirst && b.FirstPartyAnswer != Unset) || (isSecond && b.SecondPartyAnswer != Unset) {
			return ErrCannotChangeAnswer
		}
		if isFirst {
			b.FirstPartyAnswer = answer
		} else {
			b.SecondPartyAnswer = answer
		}
		t.emit(EventVoted, b, withActor(caller, answer))

		if b.State == WaitingFirstVote {
			b.State = WaitingSecondVote
			t.update(b)
			return nil
		}
		t.resolveVotes(b)
		return nil
	})
}

func (t *txn) resolveVotes(b *Bet) {
	if b.FirstPartyAnswer != b.SecondPartyAnswer {
		t.escalate(b)
		return
	}
	switch b.FirstPartyAnswer {
	case FirstPartyWins:
		t.pay(b.FirstParty, b.Pool())
		t.finish(b, FinishAnswersMatched)
	case SecondPartyWins:
		t.pay(b.SecondParty, b.Pool())
		t.finish(b, FinishAnswersMatched)
	case Tie:
		t.refundStakes(b)
		t.cancel(b, CancelTie)
	}
}

// votesTimeout cancels a bet nobody voted on and escalates one with a
// single vote.
func (t *txn) votesTimeout(b *Bet) {
	if b.State == WaitingFirstVote {
		t.refundStakes(b)
		t.cancel(b, CancelVotesTimeout)
		return
	}
	t.escalate(b)
}

// Mediate lets the mediator settle a disputed bet for its fee. After the
// mediation window it cancels the bet with full refunds instead.
func (s *Service) Mediate(ctx context.Context, caller common.Address, id common.Hash, answer Answer) (*Receipt, error) {
	return s.run(ctx, "Mediate", caller, func(ctx context.Context, t *txn) error {
		t.betID = id
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if b.State != WaitingMediator {
			return ErrNotWaitingForMediator
		}
		if caller != b.Mediator {
			return ErrNotMediator
		}
		if !answer.Valid() {
			return ErrWrongAnswer
		}

		if t.now.After(b.Deadline(t.params.MediationTimeLimit)) {
			t.refundStakes(b)
			t.cancel(b, CancelMediatorTimeout)
			return nil
		}

		fee := CalculateMediatorFee(b)
		switch answer {
		case FirstPartyWins, SecondPartyWins:
			winner := b.FirstParty
			if answer == SecondPartyWins {
				winner = b.SecondParty
			}
			t.pay(b.Mediator, fee)
			t.pay(winner, new(big.Int).Sub(b.Pool(), fee))
			t.finish(b, FinishMediatorFinished)
		case Tie:
			firstShare, secondShare := splitFee(fee)
			if firstShare.Cmp(b.FirstBetValue) > 0 || secondShare.Cmp(b.SecondBetValue) > 0 {
				return ErrMediatorFeeExceedsStake
			}
			t.pay(b.Mediator, fee)
			t.pay(b.FirstParty, new(big.Int).Sub(b.FirstBetValue, firstShare))
			t.pay(b.SecondParty, new(big.Int).Sub(b.SecondBetValue, secondShare))
			t.cancel(b, CancelMediatorCancelled)
		}
		return nil
	})
}

// Party2TimeoutHandler cancels a bet nobody joined in time. Anyone may call it.
func (s *Service) Party2TimeoutHandler(ctx context.Context, caller common.Address, id common.Hash) (*Receipt, error) {
	return s.run(ctx, "Party2TimeoutHandler", caller, func(ctx context.Context, t *txn) error {
		t.betID = id
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if b.State != WaitingParty2 {
			return ErrNotWaitingForParty2
		}
		if !t.now.After(b.SecondPartyTimeframe) {
			return ErrNoTimeout
		}
		t.pay(b.FirstParty, b.FirstBetValue)
		t.cancel(b, CancelParty2Timeout)
		return nil
	})
}

// VotesTimeoutHandler applies the votes timeout. Anyone may call it.
func (s *Service) VotesTimeoutHandler(ctx context.Context, caller common.Address, id common.Hash) (*Receipt, error) {
	return s.run(ctx, "VotesTimeoutHandler", caller, func(ctx context.Context, t *txn) error {
		t.betID = id
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !b.State.Voting() {
			return ErrNotWaitingForVotes
		}
		if !t.now.After(b.ResultTimeframe) {
			return ErrNoTimeout
		}
		t.votesTimeout(b)
		return nil
	})
}

// MediatorTimeoutHandler cancels a bet the mediator left undecided past the
// mediation window. Anyone may call it.
func (s *Service) MediatorTimeoutHandler(ctx context.Context, caller common.Address, id common.Hash) (*Receipt, error) {
	return s.run(ctx, "MediatorTimeoutHandler", caller, func(ctx context.Context, t *txn) error {
		t.betID = id
		b, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if b.State != WaitingMediator {
			return ErrNotWaitingForMediator
		}
		if !t.now.After(b.Deadline(t.params.MediationTimeLimit)) {
			return ErrNoTimeout
		}
		t.refundStakes(b)
		t.cancel(b, CancelMediatorTimeout)
		return nil
	})
}

// Bet returns a live bet by id.
func (s *Service) Bet(ctx context.Context, id common.Hash) (*Bet, error) {
	return s.store.Get(ctx, id)
}

// ActiveBets lists the live bets addr takes part in under role.
func (s *Service) ActiveBets(ctx context.Context, role Role, addr common.Address) ([]common.Hash, error) {
	return s.store.ActiveBets(ctx, role, addr)
}

// CalculateFee returns the platform fee for a pair of stakes at the current rate.
func (s *Service) CalculateFee(ctx context.Context, first, second *big.Int) (*big.Int, error) {
	p, err := s.loadParams(ctx)
	if err != nil {
		return nil, err
	}
	return CalculateFee(first, second, p.FeePercentage), nil
}

// CalculateMediatorFee returns what the mediator of a live bet would earn.
func (s *Service) CalculateMediatorFee(ctx context.Context, id common.Hash) (*big.Int, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return CalculateMediatorFee(b), nil
}

// DueBets lists bets whose current deadline has passed, oldest first.
func (s *Service) DueBets(ctx context.Context, limit int) ([]*Bet, error) {
	p, err := s.loadParams(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListDue(ctx, s.now(), p.MediationTimeLimit, limit)
}

// ExpectedCustody is what the ledger should hold on behalf of the service:
// every live stake plus the uncollected platform fee.
func (s *Service) ExpectedCustody(ctx context.Context) (*big.Int, error) {
	p, err := s.loadParams(ctx)
	if err != nil {
		return nil, err
	}
	live, err := s.store.ListLive(ctx)
	if err != nil {
		return nil, err
	}
	total := new(big.Int).Set(p.CollectedFee)
	for _, b := range live {
		total.Add(total, b.FirstBetValue)
		if b.Joined() {
			total.Add(total, b.SecondBetValue)
		}
	}
	return total, nil
}
