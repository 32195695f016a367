package socialbets

import (
	"fmt"

	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/ledger"
)

// Wire types shared with the server.
type (
	Bet                = bets.BetResponse
	Event              = bets.EventResponse
	Payout             = bets.PayoutResponse
	Receipt            = bets.ReceiptResponse
	Params             = bets.ParamsResponse
	CreateBetRequest   = bets.CreateBetRequest
	CalculateIDRequest = bets.CalculateIDRequest
	Balance            = ledger.BalanceResponse
)

// Roles accepted by ActiveBets.
const (
	RoleFirstParty  = "first-party"
	RoleSecondParty = "second-party"
	RoleMediator    = "mediator"
)

// Timeout kinds accepted by Timeout.
const (
	TimeoutParty2   = "party2"
	TimeoutVotes    = "votes"
	TimeoutMediator = "mediator"
)

// Answers accepted by Vote and Mediate.
const (
	AnswerFirstPartyWins  = "first_party_wins"
	AnswerSecondPartyWins = "second_party_wins"
	AnswerTie             = "tie"
)

// FeeQuote is the platform fee for a pair of stakes and the value the first
// party must send.
type FeeQuote struct {
	Fee      string `json:"fee"`
	FeeEther string `json:"feeEther"`
	Value    string `json:"value"`
}

// Withdrawal is a pending withdrawal recorded by the ledger.
type Withdrawal struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
	// Receipt is set when a bet resolved but a payout failed.
	Receipt *Receipt `json:"receipt,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Code)
}

// TimeoutKind returns the timeout handler that resolves b once its
// deadline has passed.
func TimeoutKind(b *Bet) string {
	switch bets.State(b.StateCode) {
	case bets.WaitingParty2:
		return TimeoutParty2
	case bets.WaitingMediator:
		return TimeoutMediator
	default:
		return TimeoutVotes
	}
}
