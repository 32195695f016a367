// Package admin provides operator endpoints for bets stuck past their deadline.
package admin

import (
	"time"

	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
)

// OverdueBet is a live bet whose current deadline has passed.
type OverdueBet struct {
	bets.BetResponse
	// Overdue is how far past the deadline the bet is, in seconds.
	Overdue int64 `json:"overdueSeconds"`
	// Handler names the timeout handler that resolves it.
	Handler string `json:"handler"`
}

// CrankReport summarizes an on-demand keeper pass.
type CrankReport struct {
	Due       int           `json:"due"`
	Cranked   int           `json:"cranked"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"durationMs"`
	Timestamp time.Time     `json:"timestamp"`
}

// HandlerFor returns the timeout kind that resolves a bet in state s.
func HandlerFor(s bets.State) string {
	switch s {
	case bets.WaitingParty2:
		return "party2"
	case bets.WaitingFirstVote, bets.WaitingSecondVote:
		return "votes"
	case bets.WaitingMediator:
		return "mediator"
	default:
		return ""
	}
}
