// Package bets implements two-party wagers with an optional mediator.
//
// Flow:
//  1. First party creates a bet → stake + platform fee moved: available → custody
//  2. Second party joins → stake moved: available → custody
//  3. Both parties vote → matching answers pay out immediately
//  4. Answers differ (or one party stays silent) → mediator decides for a fee
//  5. Any deadline passes → anyone may crank the matching timeout handler
//
// A resolved bet is deleted together with every index entry pointing at it,
// so identical terms can be offered again afterwards.
package bets

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrBetNotFound                = errors.New("bet doesn't exist")
	ErrBetExists                  = errors.New("bet already exists")
	ErrPaused                     = errors.New("paused")
	ErrNotPaused                  = errors.New("not paused")
	ErrContractCaller             = errors.New("contracts are prohibited")
	ErrBadMediatorOrSecondParty   = errors.New("bad mediator or second party")
	ErrBadMediator                = errors.New("bad mediator")
	ErrBadMediatorFee             = errors.New("bad mediator fee")
	ErrBadFee                     = errors.New("bad fee")
	ErrBadMediationTimeLimit      = errors.New("bad mediation time limit")
	ErrBadValue                   = errors.New("bad eth value")
	ErrBetValueTooSmall           = errors.New("too small bet value")
	ErrSecondPartyTimeframePassed = errors.New("2nd party timeframe < now")
	ErrResultTimeframePassed      = errors.New("result timeframe < now")
	ErrResultBeforeSecondParty    = errors.New("result < 2nd party timeframe")
	ErrPrivateBet                 = errors.New("private bet")
	ErrFirstPartyOrMediator       = errors.New("you are first party or mediator")
	ErrAlreadyJoined              = errors.New("party 2 already joined")
	ErrNotWaitingForParty2        = errors.New("bet isn't waiting for party 2")
	ErrNotWaitingForVotes         = errors.New("bet isn't waiting for votes")
	ErrNotWaitingForMediator      = errors.New("bet isn't waiting for mediator")
	ErrNoTimeout                  = errors.New("there is no timeout")
	ErrWrongAnswer                = errors.New("wrong answer")
	ErrNotParticipating           = errors.New("you aren't participating")
	ErrCannotChangeAnswer         = errors.New("you can't change your answer")
	ErrNotMediator                = errors.New("you can't mediate this bet")
	ErrMediatorFeeExceedsStake    = errors.New("mediator fee exceeds stake")
	ErrNoFeeToWithdraw            = errors.New("no fee to withdraw")
	ErrNotOwner                   = errors.New("caller is not the owner")
	ErrBadOwner                   = errors.New("new owner is the zero address")
	ErrNotInitialized             = errors.New("bets service is not initialized")
	ErrParamsNotFound             = errors.New("params not found")
	ErrBadMinBetValue             = errors.New("bad min bet value")
	ErrBadTerms                   = errors.New("bet terms cannot be encoded")
)

// State is the lifecycle position of a live bet.
type State uint8

const (
	WaitingParty2 State = iota
	WaitingFirstVote
	WaitingSecondVote
	WaitingMediator
)

func (s State) String() string {
	switch s {
	case WaitingParty2:
		return "waiting_party2"
	case WaitingFirstVote:
		return "waiting_first_vote"
	case WaitingSecondVote:
		return "waiting_second_vote"
	case WaitingMediator:
		return "waiting_mediator"
	}
	return "unknown"
}

// Voting reports whether the bet accepts party votes.
func (s State) Voting() bool {
	return s == WaitingFirstVote || s == WaitingSecondVote
}

// Answer is a party's or mediator's verdict.
type Answer uint8

const (
	Unset Answer = iota
	FirstPartyWins
	SecondPartyWins
	Tie
)

func (a Answer) String() string {
	switch a {
	case Unset:
		return "unset"
	case FirstPartyWins:
		return "first_party_wins"
	case SecondPartyWins:
		return "second_party_wins"
	case Tie:
		return "tie"
	}
	return "unknown"
}

// Valid reports whether a is a castable answer.
func (a Answer) Valid() bool {
	return a == FirstPartyWins || a == SecondPartyWins || a == Tie
}

// ParseAnswer accepts either the numeric or the named form.
func ParseAnswer(s string) (Answer, error) {
	switch s {
	case "1", "first_party_wins", "first":
		return FirstPartyWins, nil
	case "2", "second_party_wins", "second":
		return SecondPartyWins, nil
	case "3", "tie":
		return Tie, nil
	}
	return Unset, ErrWrongAnswer
}

// CancelReason explains why a bet was cancelled.
type CancelReason uint8

const (
	CancelParty2Timeout CancelReason = iota
	CancelVotesTimeout
	CancelTie
	CancelMediatorTimeout
	CancelMediatorCancelled
)

func (r CancelReason) String() string {
	switch r {
	case CancelParty2Timeout:
		return "party2_timeout"
	case CancelVotesTimeout:
		return "votes_timeout"
	case CancelTie:
		return "tie"
	case CancelMediatorTimeout:
		return "mediator_timeout"
	case CancelMediatorCancelled:
		return "mediator_cancelled"
	}
	return "unknown"
}

// FinishReason explains how a bet was won.
type FinishReason uint8

const (
	FinishAnswersMatched FinishReason = iota
	FinishMediatorFinished
)

func (r FinishReason) String() string {
	switch r {
	case FinishAnswersMatched:
		return "answers_matched"
	case FinishMediatorFinished:
		return "mediator_finished"
	}
	return "unknown"
}

// Bet is a live wager. Amounts are wei.
type Bet struct {
	ID                   common.Hash    `json:"id"`
	Metadata             string         `json:"metadata"`
	FirstParty           common.Address `json:"firstParty"`
	SecondParty          common.Address `json:"secondParty"`
	Mediator             common.Address `json:"mediator"`
	FirstBetValue        *big.Int       `json:"firstBetValue"`
	SecondBetValue       *big.Int       `json:"secondBetValue"`
	MediatorFee          uint64         `json:"mediatorFee"`
	SecondPartyTimeframe time.Time      `json:"secondPartyTimeframe"`
	ResultTimeframe      time.Time      `json:"resultTimeframe"`
	State                State          `json:"state"`
	FirstPartyAnswer     Answer         `json:"firstPartyAnswer"`
	SecondPartyAnswer    Answer         `json:"secondPartyAnswer"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
}

// Public reports whether anyone may join as second party.
// Only meaningful before someone has joined.
func (b *Bet) Public() bool {
	return b.SecondParty == (common.Address{})
}

// Joined reports whether the second party is locked in.
func (b *Bet) Joined() bool {
	return b.State != WaitingParty2
}

// Pool is the sum of both stakes.
func (b *Bet) Pool() *big.Int {
	return new(big.Int).Add(b.FirstBetValue, b.SecondBetValue)
}

// Clone returns a deep copy.
func (b *Bet) Clone() *Bet {
	cp := *b
	cp.FirstBetValue = new(big.Int).Set(b.FirstBetValue)
	cp.SecondBetValue = new(big.Int).Set(b.SecondBetValue)
	return &cp
}

// Params is the deployment-wide configuration owned by a single admin.
type Params struct {
	Owner              common.Address `json:"owner"`
	FeePercentage      uint64         `json:"feePercentage"`
	MinBetValue        *big.Int       `json:"minBetValue"`
	DefaultMediatorFee uint64         `json:"defaultMediatorFee"`
	DefaultMediator    common.Address `json:"defaultMediator"`
	MediationTimeLimit time.Duration  `json:"mediationTimeLimit"`
	Paused             bool           `json:"paused"`
	CollectedFee       *big.Int       `json:"collectedFee"`
}

// Clone returns a deep copy.
func (p *Params) Clone() *Params {
	cp := *p
	cp.MinBetValue = new(big.Int).Set(p.MinBetValue)
	cp.CollectedFee = new(big.Int).Set(p.CollectedFee)
	return &cp
}

// CreateRequest carries the terms offered by the first party.
type CreateRequest struct {
	Metadata             string
	SecondParty          common.Address
	Mediator             common.Address
	MediatorFee          uint64
	FirstBetValue        *big.Int
	SecondBetValue       *big.Int
	SecondPartyTimeframe time.Time
	ResultTimeframe      time.Time
}

// Role selects one of the three active-bet indices.
type Role uint8

const (
	RoleFirstParty Role = iota
	RoleSecondParty
	RoleMediator
)

func (r Role) String() string {
	switch r {
	case RoleFirstParty:
		return "first_party"
	case RoleSecondParty:
		return "second_party"
	case RoleMediator:
		return "mediator"
	}
	return "unknown"
}

// IndexOp adds or removes one index entry.
type IndexOp struct {
	Role   Role
	Addr   common.Address
	BetID  common.Hash
	Remove bool
}

// Change is everything one call mutates. A store applies it all or nothing.
// Create marks Put as a new record; the store fails with ErrBetExists if the
// id is already taken instead of overwriting it.
type Change struct {
	Put    *Bet
	Create bool
	Delete *common.Hash
	Index  []IndexOp
	Params *Params
}

// Store persists bets, the active-bet indices, and Params.
type Store interface {
	Get(ctx context.Context, id common.Hash) (*Bet, error)
	ActiveBets(ctx context.Context, role Role, addr common.Address) ([]common.Hash, error)
	// ListDue returns bets whose current deadline is before now.
	ListDue(ctx context.Context, now time.Time, mediationTimeLimit time.Duration, limit int) ([]*Bet, error)
	// ListLive returns every live bet, used for custody reconciliation.
	ListLive(ctx context.Context) ([]*Bet, error)
	LoadParams(ctx context.Context) (*Params, error)
	Commit(ctx context.Context, c *Change) error
}

// LedgerService is the custody a Service locks stakes into and pays out of.
type LedgerService interface {
	Lock(ctx context.Context, addr common.Address, amount *big.Int, reference string) error
	Payout(ctx context.Context, addr common.Address, amount *big.Int, reference string) error
}

// AccountChecker tells externally owned accounts from contracts.
type AccountChecker interface {
	IsContract(ctx context.Context, addr common.Address) (bool, error)
}

// Deadline is the moment after which the current waiting period can be cranked.
func (b *Bet) Deadline(mediationTimeLimit time.Duration) time.Time {
	switch b.State {
	case WaitingParty2:
		return b.SecondPartyTimeframe
	case WaitingMediator:
		return b.ResultTimeframe.Add(mediationTimeLimit)
	default:
		return b.ResultTimeframe
	}
}
