package bets

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a lifecycle notification.
type EventKind string

const (
	EventNewBetCreated           EventKind = "NewBetCreated"
	EventSecondPartyParticipated EventKind = "SecondPartyParticipated"
	EventVoted                   EventKind = "Voted"
	EventWaitingMediator         EventKind = "WaitingMediator"
	EventFinished                EventKind = "Finished"
	EventCancelled               EventKind = "Cancelled"
	EventCompleted               EventKind = "Completed"
)

// Event is emitted after a call commits. Actor is the joiner or voter,
// Answer the vote cast, Reason the cancel or finish reason.
type Event struct {
	Kind        EventKind       `json:"kind"`
	BetID       common.Hash     `json:"betId"`
	FirstParty  common.Address  `json:"firstParty"`
	SecondParty common.Address  `json:"secondParty"`
	Mediator    common.Address  `json:"mediator"`
	Actor       *common.Address `json:"actor,omitempty"`
	Answer      Answer          `json:"answer,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Bet         *Bet            `json:"bet,omitempty"`
	At          time.Time       `json:"at"`
}

// Involves reports whether addr is a party or the mediator of the event's bet.
func (e Event) Involves(addr common.Address) bool {
	return e.FirstParty == addr || e.SecondParty == addr || e.Mediator == addr
}

// Payout is a credit released from custody.
type Payout struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

// Receipt is what one committed call did.
type Receipt struct {
	BetID   common.Hash `json:"betId"`
	Events  []Event     `json:"events"`
	Payouts []Payout    `json:"payouts"`
}

// Find returns the first event of kind.
func (r *Receipt) Find(kind EventKind) (Event, bool) {
	for _, e := range r.Events {
		if e.Kind == kind {
			return e, true
		}
	}
	return Event{}, false
}

// Has reports whether an event of kind was emitted.
func (r *Receipt) Has(kind EventKind) bool {
	_, ok := r.Find(kind)
	return ok
}

// PaidTo sums the payouts credited to addr.
func (r *Receipt) PaidTo(addr common.Address) *big.Int {
	total := new(big.Int)
	for _, p := range r.Payouts {
		if p.To == addr {
			total.Add(total, p.Amount)
		}
	}
	return total
}

// EventSink receives committed events. Delivery is best effort; sinks
// log their own failures and never block a call for long.
type EventSink interface {
	Publish(ctx context.Context, events []Event)
}

// FanOut publishes to every sink in order.
type FanOut []EventSink

func (f FanOut) Publish(ctx context.Context, events []Event) {
	for _, s := range f {
		if s != nil {
			s.Publish(ctx, events)
		}
	}
}
