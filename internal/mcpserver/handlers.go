package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/ether"
	"github.com/betdapp/socialbets-smartcontracts/pkg/socialbets"
)

// API is the slice of the SocialBets client the tools use.
type API interface {
	Bet(ctx context.Context, id string) (*socialbets.Bet, error)
	ActiveBets(ctx context.Context, addr common.Address, role string) ([]string, error)
	DueBets(ctx context.Context, limit int) ([]socialbets.Bet, error)
	Fee(ctx context.Context, first, second *big.Int) (*socialbets.FeeQuote, error)
	Balance(ctx context.Context, addr common.Address) (*socialbets.Balance, error)
	Participate(ctx context.Context, id string, value *big.Int) (bool, *socialbets.Receipt, error)
	Vote(ctx context.Context, id, answer string) (*socialbets.Receipt, error)
	Mediate(ctx context.Context, id, answer string) (*socialbets.Receipt, error)
	Timeout(ctx context.Context, id, kind string) (*socialbets.Receipt, error)
}

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	api  API
	self common.Address
}

// NewHandlers creates a new Handlers instance. self is the signing address,
// used when a tool's address argument is omitted.
func NewHandlers(api API, self common.Address) *Handlers {
	return &Handlers{api: api, self: self}
}

// HandleGetBet shows a live bet.
func (h *Handlers) HandleGetBet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("bet_id", "")
	if id == "" {
		return mcp.NewToolResultError("bet_id is required"), nil
	}

	b, err := h.api.Bet(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get bet: %v", err)), nil
	}
	return mcp.NewToolResultText(formatBet(b)), nil
}

// HandleListActiveBets lists live bet ids for an address and role.
func (h *Handlers) HandleListActiveBets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	role := req.GetString("role", "")
	if role == "" {
		return mcp.NewToolResultError("role is required"), nil
	}
	addr, err := h.addressArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ids, err := h.api.ActiveBets(ctx, addr, role)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list bets: %v", err)), nil
	}
	if len(ids) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%s has no live bets as %s.", addr.Hex(), role)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s has %d live bet(s) as %s:\n", addr.Hex(), len(ids), role)
	for _, id := range ids {
		fmt.Fprintf(&sb, "- %s\n", id)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListDueBets lists bets ready to crank.
func (h *Handlers) HandleListDueBets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	due, err := h.api.DueBets(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list due bets: %v", err)), nil
	}
	if len(due) == 0 {
		return mcp.NewToolResultText("No bets are due."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d bet(s) due:\n\n", len(due))
	for i := range due {
		b := &due[i]
		fmt.Fprintf(&sb, "%d. %s\n   State: %s (crank with %s timeout)\n   Deadline: %s\n",
			i+1, b.ID, b.State, socialbets.TimeoutKind(b), unix(b.Deadline))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleQuoteFee quotes the platform fee for two stakes.
func (h *Handlers) HandleQuoteFee(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	first, err := ether.Parse(req.GetString("first_stake", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("first_stake: %v", err)), nil
	}
	second, err := ether.Parse(req.GetString("second_stake", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("second_stake: %v", err)), nil
	}

	q, err := h.api.Fee(ctx, first, second)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to quote fee: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Platform fee: %s ETH\nFirst party sends: %s ETH (%s wei)",
		q.FeeEther, weiToEther(q.Value), q.Value)), nil
}

// HandleCheckBalance returns an address's balance.
func (h *Handlers) HandleCheckBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addr, err := h.addressArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	bal, err := h.api.Balance(ctx, addr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check balance: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Balance for %s\n  Available: %s ETH\n  Deposited: %s ETH\n  Withdrawn: %s ETH",
		bal.Address, bal.AvailableEther, weiToEther(bal.TotalIn), weiToEther(bal.TotalOut))), nil
}

// HandleCalculateBetID computes a bet id locally.
func (h *Handlers) HandleCalculateBetID(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		first common.Address
		err   error
	)
	if s := req.GetString("first_party", ""); s != "" {
		if !common.IsHexAddress(s) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid first_party %q", s)), nil
		}
		first = common.HexToAddress(s)
	} else if first = h.self; first == (common.Address{}) {
		return mcp.NewToolResultError("first_party is required when no signing key is configured"), nil
	}

	firstStake, err := ether.Parse(req.GetString("first_stake", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("first_stake: %v", err)), nil
	}
	secondStake, err := ether.Parse(req.GetString("second_stake", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("second_stake: %v", err)), nil
	}
	join, err := parseDeadline(req.GetString("join_deadline", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("join_deadline: %v", err)), nil
	}
	result, err := parseDeadline(req.GetString("result_deadline", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("result_deadline: %v", err)), nil
	}

	id, err := bets.CalculateBetID(req.GetString("metadata", ""), first, firstStake, secondStake, join, result)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(id.Hex()), nil
}

// HandleJoinBet joins a bet with its second stake.
func (h *Handlers) HandleJoinBet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("bet_id", "")
	if id == "" {
		return mcp.NewToolResultError("bet_id is required"), nil
	}

	b, err := h.api.Bet(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get bet: %v", err)), nil
	}
	stake, ok := new(big.Int).SetString(b.SecondBetValue, 10)
	if !ok {
		return mcp.NewToolResultError("bet has an invalid second stake"), nil
	}

	joined, r, err := h.api.Participate(ctx, id, stake)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Join failed: %v", err)), nil
	}
	if !joined {
		return mcp.NewToolResultText("The join window had passed. The bet was cancelled and refunded.\n\n" + formatReceipt(r)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Joined bet %s with %s ETH.\n\n%s", id, ether.Format(stake), formatReceipt(r))), nil
}

// HandleVote records a vote.
func (h *Handlers) HandleVote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.answer(ctx, req, "Vote", h.api.Vote)
}

// HandleMediate records a mediator decision.
func (h *Handlers) HandleMediate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.answer(ctx, req, "Mediation", h.api.Mediate)
}

func (h *Handlers) answer(ctx context.Context, req mcp.CallToolRequest, what string,
	call func(context.Context, string, string) (*socialbets.Receipt, error)) (*mcp.CallToolResult, error) {
	id := req.GetString("bet_id", "")
	if id == "" {
		return mcp.NewToolResultError("bet_id is required"), nil
	}
	answer := req.GetString("answer", "")
	if answer == "" {
		return mcp.NewToolResultError("answer is required"), nil
	}

	r, err := call(ctx, id, answer)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", what, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s recorded for %s.\n\n%s", what, id, formatReceipt(r))), nil
}

// HandleCrankBet resolves a due bet through the handler its state needs.
func (h *Handlers) HandleCrankBet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("bet_id", "")
	if id == "" {
		return mcp.NewToolResultError("bet_id is required"), nil
	}

	b, err := h.api.Bet(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get bet: %v", err)), nil
	}
	kind := socialbets.TimeoutKind(b)

	r, err := h.api.Timeout(ctx, id, kind)
	var apiErr *socialbets.APIError
	if errors.As(err, &apiErr) && apiErr.Code == "no_timeout" {
		return mcp.NewToolResultText(fmt.Sprintf("Bet %s is not due yet. Deadline: %s", id, unix(b.Deadline))), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Crank failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cranked bet %s with the %s timeout.\n\n%s", id, kind, formatReceipt(r))), nil
}

func (h *Handlers) addressArg(req mcp.CallToolRequest) (common.Address, error) {
	s := req.GetString("address", "")
	if s == "" {
		if h.self == (common.Address{}) {
			return common.Address{}, errors.New("address is required when no signing key is configured")
		}
		return h.self, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// --- Formatting helpers ---

func formatBet(b *socialbets.Bet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Bet %s\n", b.ID)
	if b.Metadata != "" {
		fmt.Fprintf(&sb, "  Terms: %s\n", b.Metadata)
	}
	fmt.Fprintf(&sb, "  State: %s\n", b.State)
	fmt.Fprintf(&sb, "  First party: %s staking %s ETH\n", b.FirstParty, weiToEther(b.FirstBetValue))
	second := b.SecondParty
	if second == (common.Address{}).Hex() {
		second = "open to anyone"
	}
	fmt.Fprintf(&sb, "  Second party: %s staking %s ETH\n", second, weiToEther(b.SecondBetValue))
	fmt.Fprintf(&sb, "  Mediator: %s (fee %.2f%%)\n", b.Mediator, float64(b.MediatorFee)/100)
	if b.FirstPartyAnswer != "unset" || b.SecondPartyAnswer != "unset" {
		fmt.Fprintf(&sb, "  Votes: first=%s second=%s\n", b.FirstPartyAnswer, b.SecondPartyAnswer)
	}
	fmt.Fprintf(&sb, "  Next deadline: %s\n", unix(b.Deadline))
	return sb.String()
}

func formatReceipt(r *socialbets.Receipt) string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, e := range r.Events {
		fmt.Fprintf(&sb, "Event: %s", e.Kind)
		if e.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", e.Reason)
		}
		sb.WriteString("\n")
	}
	for _, p := range r.Payouts {
		fmt.Fprintf(&sb, "Paid %s ETH to %s\n", weiToEther(p.Amount), p.To)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func weiToEther(s string) string {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return s
	}
	return ether.Format(v)
}

// parseDeadline accepts RFC 3339 or unix seconds.
func parseDeadline(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("required")
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or unix seconds, got %q", s)
	}
	return t, nil
}

func unix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
