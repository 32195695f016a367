package bets

import (
	"context"
	"errors"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/betdapp/socialbets-smartcontracts/internal/auth"
	"github.com/betdapp/socialbets-smartcontracts/internal/ether"
	"github.com/betdapp/socialbets-smartcontracts/internal/ledger"
	"github.com/betdapp/socialbets-smartcontracts/internal/validation"
)

// Handler provides HTTP endpoints for bet operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new bets handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public (read-only) bet routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/bets/due", h.ListDue)
	r.POST("/bets/calculate-id", h.CalculateID)
	r.GET("/bets/:id", validation.BetIDParamMiddleware(), h.GetBet)
	r.GET("/bets/:id/mediator-fee", validation.BetIDParamMiddleware(), h.GetMediatorFee)
	r.GET("/addresses/:address/bets/:role", validation.AddressParamMiddleware(), h.ListActive)
	r.GET("/fees", h.GetFee)
	r.GET("/params", h.GetParams)
}

// RegisterProtectedRoutes sets up routes that act as the signed caller.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/bets", h.CreateBet)
	r.POST("/bets/:id/participate", validation.BetIDParamMiddleware(), h.Participate)
	r.POST("/bets/:id/vote", validation.BetIDParamMiddleware(), h.Vote)
	r.POST("/bets/:id/mediate", validation.BetIDParamMiddleware(), h.Mediate)
	r.POST("/bets/:id/timeouts/:kind", validation.BetIDParamMiddleware(), h.Timeout)
}

// RegisterAdminRoutes sets up owner-only routes. The service checks the
// owner again, so these are safe behind RequireAuth alone.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.PUT("/admin/params/fee-percentage", h.SetFeePercentage)
	r.PUT("/admin/params/min-bet-value", h.SetMinBetValue)
	r.PUT("/admin/params/default-mediator-fee", h.SetDefaultMediatorFee)
	r.PUT("/admin/params/default-mediator", h.SetDefaultMediator)
	r.PUT("/admin/params/mediation-time-limit", h.SetMediationTimeLimit)
	r.POST("/admin/pause", h.Pause)
	r.POST("/admin/unpause", h.Unpause)
	r.POST("/admin/withdraw-fee", h.WithdrawFee)
	r.POST("/admin/transfer-ownership", h.TransferOwnership)
}

// OwnerAddress returns the current owner, for auth.RequireOwner.
func (h *Handler) OwnerAddress(ctx context.Context) (common.Address, error) {
	p, err := h.service.Params(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return p.Owner, nil
}

// --- wire types ---

// BetResponse renders a Bet with wei strings and unix-second timeframes.
type BetResponse struct {
	ID                   string    `json:"id"`
	Metadata             string    `json:"metadata"`
	FirstParty           string    `json:"firstParty"`
	SecondParty          string    `json:"secondParty"`
	Mediator             string    `json:"mediator"`
	FirstBetValue        string    `json:"firstBetValue"`
	SecondBetValue       string    `json:"secondBetValue"`
	MediatorFee          uint64    `json:"mediatorFee"`
	SecondPartyTimeframe int64     `json:"secondPartyTimeframe"`
	ResultTimeframe      int64     `json:"resultTimeframe"`
	State                string    `json:"state"`
	StateCode            uint8     `json:"stateCode"`
	FirstPartyAnswer     string    `json:"firstPartyAnswer"`
	SecondPartyAnswer    string    `json:"secondPartyAnswer"`
	Deadline             int64     `json:"deadline"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// NewBetResponse converts b. limit is the current mediation time limit.
func NewBetResponse(b *Bet, limit time.Duration) BetResponse {
	return BetResponse{
		ID:                   b.ID.Hex(),
		Metadata:             b.Metadata,
		FirstParty:           b.FirstParty.Hex(),
		SecondParty:          b.SecondParty.Hex(),
		Mediator:             b.Mediator.Hex(),
		FirstBetValue:        b.FirstBetValue.String(),
		SecondBetValue:       b.SecondBetValue.String(),
		MediatorFee:          b.MediatorFee,
		SecondPartyTimeframe: b.SecondPartyTimeframe.Unix(),
		ResultTimeframe:      b.ResultTimeframe.Unix(),
		State:                b.State.String(),
		StateCode:            uint8(b.State),
		FirstPartyAnswer:     b.FirstPartyAnswer.String(),
		SecondPartyAnswer:    b.SecondPartyAnswer.String(),
		Deadline:             b.Deadline(limit).Unix(),
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

// EventResponse is the wire form of an Event, shared by HTTP, websocket
// and the event log.
type EventResponse struct {
	Kind        EventKind `json:"kind"`
	BetID       string    `json:"betId"`
	FirstParty  string    `json:"firstParty"`
	SecondParty string    `json:"secondParty"`
	Mediator    string    `json:"mediator"`
	Actor       string    `json:"actor,omitempty"`
	Answer      string    `json:"answer,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// NewEventResponse converts e.
func NewEventResponse(e Event) EventResponse {
	out := EventResponse{
		Kind:        e.Kind,
		BetID:       e.BetID.Hex(),
		FirstParty:  e.FirstParty.Hex(),
		SecondParty: e.SecondParty.Hex(),
		Mediator:    e.Mediator.Hex(),
		Reason:      e.Reason,
		At:          e.At,
	}
	if e.Actor != nil {
		out.Actor = e.Actor.Hex()
	}
	if e.Answer != Unset {
		out.Answer = e.Answer.String()
	}
	return out
}

// PayoutResponse is the wire form of a Payout.
type PayoutResponse struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// ReceiptResponse is the wire form of a Receipt.
type ReceiptResponse struct {
	BetID   string           `json:"betId"`
	Events  []EventResponse  `json:"events"`
	Payouts []PayoutResponse `json:"payouts"`
}

// NewReceiptResponse converts r.
func NewReceiptResponse(r *Receipt) ReceiptResponse {
	out := ReceiptResponse{
		BetID:   r.BetID.Hex(),
		Events:  make([]EventResponse, 0, len(r.Events)),
		Payouts: make([]PayoutResponse, 0, len(r.Payouts)),
	}
	for _, e := range r.Events {
		out.Events = append(out.Events, NewEventResponse(e))
	}
	for _, p := range r.Payouts {
		out.Payouts = append(out.Payouts, PayoutResponse{To: p.To.Hex(), Amount: p.Amount.String()})
	}
	return out
}

// ParamsResponse renders Params.
type ParamsResponse struct {
	Owner                     string `json:"owner"`
	FeePercentage             uint64 `json:"feePercentage"`
	MinBetValue               string `json:"minBetValue"`
	DefaultMediatorFee        uint64 `json:"defaultMediatorFee"`
	DefaultMediator           string `json:"defaultMediator"`
	MediationTimeLimitSeconds int64  `json:"mediationTimeLimitSeconds"`
	Paused                    bool   `json:"paused"`
	CollectedFee              string `json:"collectedFee"`
}

func newParamsResponse(p *Params) ParamsResponse {
	return ParamsResponse{
		Owner:                     p.Owner.Hex(),
		FeePercentage:             p.FeePercentage,
		MinBetValue:               p.MinBetValue.String(),
		DefaultMediatorFee:        p.DefaultMediatorFee,
		DefaultMediator:           p.DefaultMediator.Hex(),
		MediationTimeLimitSeconds: int64(p.MediationTimeLimit / time.Second),
		Paused:                    p.Paused,
		CollectedFee:              p.CollectedFee.String(),
	}
}

// CreateBetRequest offers a bet. Amounts are wei strings, timeframes unix seconds.
// Value must equal firstBetValue plus the platform fee.
type CreateBetRequest struct {
	Metadata             string `json:"metadata"`
	SecondParty          string `json:"secondParty"`
	Mediator             string `json:"mediator"`
	MediatorFee          uint64 `json:"mediatorFee"`
	FirstBetValue        string `json:"firstBetValue" binding:"required"`
	SecondBetValue       string `json:"secondBetValue" binding:"required"`
	SecondPartyTimeframe int64  `json:"secondPartyTimeframe" binding:"required"`
	ResultTimeframe      int64  `json:"resultTimeframe" binding:"required"`
	Value                string `json:"value" binding:"required"`
}

// CalculateIDRequest carries the terms that make up a bet id.
type CalculateIDRequest struct {
	Metadata             string `json:"metadata"`
	FirstParty           string `json:"firstParty" binding:"required"`
	FirstBetValue        string `json:"firstBetValue" binding:"required"`
	SecondBetValue       string `json:"secondBetValue" binding:"required"`
	SecondPartyTimeframe int64  `json:"secondPartyTimeframe" binding:"required"`
	ResultTimeframe      int64  `json:"resultTimeframe" binding:"required"`
}

// ParticipateRequest joins a bet with value equal to the second stake.
type ParticipateRequest struct {
	Value string `json:"value" binding:"required"`
}

// AnswerRequest carries a vote or a mediator decision.
type AnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// --- errors ---

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ErrBetNotFound, http.StatusNotFound, "not_found"},
	{ErrNotInitialized, http.StatusServiceUnavailable, "not_initialized"},

	{ErrNotOwner, http.StatusForbidden, "not_owner"},
	{ErrNotMediator, http.StatusForbidden, "not_mediator"},
	{ErrNotParticipating, http.StatusForbidden, "not_participating"},
	{ErrPrivateBet, http.StatusForbidden, "private_bet"},
	{ErrFirstPartyOrMediator, http.StatusForbidden, "first_party_or_mediator"},
	{ErrContractCaller, http.StatusForbidden, "contract_caller"},

	{ErrBetExists, http.StatusConflict, "bet_exists"},
	{ErrPaused, http.StatusConflict, "paused"},
	{ErrNotPaused, http.StatusConflict, "not_paused"},
	{ErrAlreadyJoined, http.StatusConflict, "already_joined"},
	{ErrNotWaitingForParty2, http.StatusConflict, "not_waiting_for_party2"},
	{ErrNotWaitingForVotes, http.StatusConflict, "not_waiting_for_votes"},
	{ErrNotWaitingForMediator, http.StatusConflict, "not_waiting_for_mediator"},
	{ErrCannotChangeAnswer, http.StatusConflict, "cannot_change_answer"},
	{ErrNoFeeToWithdraw, http.StatusConflict, "no_fee_to_withdraw"},

	{ErrNoTimeout, http.StatusTooEarly, "no_timeout"},
	{ledger.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},

	{ErrBadValue, http.StatusBadRequest, "bad_value"},
	{ErrBetValueTooSmall, http.StatusBadRequest, "bet_value_too_small"},
	{ErrBadMediatorOrSecondParty, http.StatusBadRequest, "bad_mediator_or_second_party"},
	{ErrBadMediator, http.StatusBadRequest, "bad_mediator"},
	{ErrBadMediatorFee, http.StatusBadRequest, "bad_mediator_fee"},
	{ErrBadFee, http.StatusBadRequest, "bad_fee"},
	{ErrBadMediationTimeLimit, http.StatusBadRequest, "bad_mediation_time_limit"},
	{ErrBadMinBetValue, http.StatusBadRequest, "bad_min_bet_value"},
	{ErrBadOwner, http.StatusBadRequest, "bad_owner"},
	{ErrBadTerms, http.StatusBadRequest, "bad_terms"},
	{ErrSecondPartyTimeframePassed, http.StatusBadRequest, "second_party_timeframe_passed"},
	{ErrResultTimeframePassed, http.StatusBadRequest, "result_timeframe_passed"},
	{ErrResultBeforeSecondParty, http.StatusBadRequest, "result_before_second_party"},
	{ErrWrongAnswer, http.StatusBadRequest, "wrong_answer"},
	{ErrMediatorFeeExceedsStake, http.StatusBadRequest, "mediator_fee_exceeds_stake"},
}

// StatusFor maps a service error to an HTTP status and error code.
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(c *gin.Context, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal error"
	}
	c.JSON(status, gin.H{"error": code, "message": msg})
}

// writeReceipt answers a mutating call. A receipt with an error means the
// bet change committed but a payout did not.
func writeReceipt(c *gin.Context, status int, r *Receipt, err error, extra gin.H) {
	if err != nil && r == nil {
		writeError(c, err)
		return
	}
	body := gin.H{"receipt": NewReceiptResponse(r)}
	for k, v := range extra {
		body[k] = v
	}
	if err != nil {
		body["error"] = "payout_failed"
		body["message"] = "Bet resolved but a payout failed; it requires manual resolution"
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, code, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": msg})
}

func requireCaller(c *gin.Context) (common.Address, bool) {
	caller, ok := auth.GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Signed request required",
		})
	}
	return caller, ok
}

func parseWei(s string) (*big.Int, bool) {
	if !validation.IsValidWei(s) {
		return nil, false
	}
	return new(big.Int).SetString(s, 10)
}

func betID(c *gin.Context) common.Hash {
	return common.HexToHash(c.Param("id"))
}

// --- reads ---

// GetBet handles GET /v1/bets/:id
func (h *Handler) GetBet(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := h.service.Bet(ctx, betID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := h.service.Params(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bet": NewBetResponse(b, p.MediationTimeLimit)})
}

// ListDue handles GET /v1/bets/due
func (h *Handler) ListDue(c *gin.Context) {
	ctx := c.Request.Context()
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, 500)
		}
	}
	due, err := h.service.DueBets(ctx, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := h.service.Params(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]BetResponse, 0, len(due))
	for _, b := range due {
		out = append(out, NewBetResponse(b, p.MediationTimeLimit))
	}
	c.JSON(http.StatusOK, gin.H{"bets": out, "count": len(out)})
}

// CalculateID handles POST /v1/bets/calculate-id
func (h *Handler) CalculateID(c *gin.Context) {
	var req CalculateIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	if errs := validation.Validate(
		validation.ValidAddress("firstParty", req.FirstParty),
		validation.ValidWei("firstBetValue", req.FirstBetValue),
		validation.ValidWei("secondBetValue", req.SecondBetValue),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": errs.Error(), "details": errs})
		return
	}
	v1, _ := parseWei(req.FirstBetValue)
	v2, _ := parseWei(req.SecondBetValue)
	id, err := CalculateBetID(req.Metadata, common.HexToAddress(req.FirstParty), v1, v2,
		time.Unix(req.SecondPartyTimeframe, 0), time.Unix(req.ResultTimeframe, 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"betId": id.Hex()})
}

// GetMediatorFee handles GET /v1/bets/:id/mediator-fee
func (h *Handler) GetMediatorFee(c *gin.Context) {
	fee, err := h.service.CalculateMediatorFee(c.Request.Context(), betID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee": fee.String(), "feeEther": ether.Format(fee)})
}

// GetFee handles GET /v1/fees?first=&second=
func (h *Handler) GetFee(c *gin.Context) {
	first, ok1 := parseWei(c.Query("first"))
	second, ok2 := parseWei(c.Query("second"))
	if !ok1 || !ok2 {
		badRequest(c, "invalid_amount", "first and second must be wei integers")
		return
	}
	fee, err := h.service.CalculateFee(c.Request.Context(), first, second)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fee":      fee.String(),
		"feeEther": ether.Format(fee),
		"value":    new(big.Int).Add(first, fee).String(),
	})
}

var roleParams = map[string]Role{
	"first-party":  RoleFirstParty,
	"second-party": RoleSecondParty,
	"mediator":     RoleMediator,
}

// ListActive handles GET /v1/addresses/:address/bets/:role
func (h *Handler) ListActive(c *gin.Context) {
	role, ok := roleParams[c.Param("role")]
	if !ok {
		badRequest(c, "invalid_role", "role must be first-party, second-party or mediator")
		return
	}
	ids, err := h.service.ActiveBets(c.Request.Context(), role, common.HexToAddress(c.Param("address")))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	c.JSON(http.StatusOK, gin.H{"betIds": out, "count": len(out)})
}

// GetParams handles GET /v1/params
func (h *Handler) GetParams(c *gin.Context) {
	p, err := h.service.Params(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"params": newParamsResponse(p)})
}

// --- signed calls ---

// CreateBet handles POST /v1/bets
func (h *Handler) CreateBet(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req CreateBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	if errs := validation.Validate(
		validation.ValidAddress("secondParty", req.SecondParty),
		validation.ValidAddress("mediator", req.Mediator),
		validation.ValidWei("firstBetValue", req.FirstBetValue),
		validation.ValidWei("secondBetValue", req.SecondBetValue),
		validation.ValidWei("value", req.Value),
		validation.MaxLength("metadata", req.Metadata, validation.MaxMetadataLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": errs.Error(), "details": errs})
		return
	}

	v1, _ := parseWei(req.FirstBetValue)
	v2, _ := parseWei(req.SecondBetValue)
	value, _ := parseWei(req.Value)
	cr := CreateRequest{
		Metadata:             req.Metadata,
		MediatorFee:          req.MediatorFee,
		FirstBetValue:        v1,
		SecondBetValue:       v2,
		SecondPartyTimeframe: time.Unix(req.SecondPartyTimeframe, 0),
		ResultTimeframe:      time.Unix(req.ResultTimeframe, 0),
	}
	if req.SecondParty != "" {
		cr.SecondParty = common.HexToAddress(req.SecondParty)
	}
	if req.Mediator != "" {
		cr.Mediator = common.HexToAddress(req.Mediator)
	}

	r, err := h.service.CreateBet(c.Request.Context(), caller, cr, value)
	writeReceipt(c, http.StatusCreated, r, err, nil)
}

// Participate handles POST /v1/bets/:id/participate
func (h *Handler) Participate(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req ParticipateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	value, ok := parseWei(req.Value)
	if !ok {
		badRequest(c, "invalid_amount", "value must be a wei integer")
		return
	}

	joined, r, err := h.service.Participate(c.Request.Context(), caller, betID(c), value)
	writeReceipt(c, http.StatusOK, r, err, gin.H{"joined": joined})
}

func (h *Handler) bindAnswer(c *gin.Context) (Answer, bool) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return Unset, false
	}
	a, err := ParseAnswer(req.Answer)
	if err != nil {
		writeError(c, err)
		return Unset, false
	}
	return a, true
}

// Vote handles POST /v1/bets/:id/vote
func (h *Handler) Vote(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	answer, ok := h.bindAnswer(c)
	if !ok {
		return
	}
	r, err := h.service.Vote(c.Request.Context(), caller, betID(c), answer)
	writeReceipt(c, http.StatusOK, r, err, nil)
}

// Mediate handles POST /v1/bets/:id/mediate
func (h *Handler) Mediate(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	answer, ok := h.bindAnswer(c)
	if !ok {
		return
	}
	r, err := h.service.Mediate(c.Request.Context(), caller, betID(c), answer)
	writeReceipt(c, http.StatusOK, r, err, nil)
}

// Timeout handles POST /v1/bets/:id/timeouts/{party2,votes,mediator}
func (h *Handler) Timeout(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var fn func(context.Context, common.Address, common.Hash) (*Receipt, error)
	switch c.Param("kind") {
	case "party2":
		fn = h.service.Party2TimeoutHandler
	case "votes":
		fn = h.service.VotesTimeoutHandler
	case "mediator":
		fn = h.service.MediatorTimeoutHandler
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "unknown timeout kind"})
		return
	}
	r, err := fn(c.Request.Context(), caller, betID(c))
	writeReceipt(c, http.StatusOK, r, err, nil)
}

// --- owner calls ---

type feeRequest struct {
	Value *uint64 `json:"value" binding:"required"`
}

type weiRequest struct {
	Value string `json:"value" binding:"required"`
}

type addressRequest struct {
	Address string `json:"address" binding:"required"`
}

// maxLimitSeconds is the largest limit a time.Duration can hold.
const maxLimitSeconds = math.MaxInt64 / int64(time.Second)

type limitRequest struct {
	Seconds int64 `json:"seconds" binding:"required"`
}

func (h *Handler) adminDone(c *gin.Context, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := h.service.Params(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"params": newParamsResponse(p)})
}

func bindAddress(c *gin.Context) (common.Address, bool) {
	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return common.Address{}, false
	}
	addr, ok := validation.ParseAddress(req.Address)
	if !ok {
		badRequest(c, "invalid_address", "address must be a valid Ethereum address (0x + 40 hex chars)")
		return common.Address{}, false
	}
	return addr, true
}

// SetFeePercentage handles PUT /v1/admin/params/fee-percentage
func (h *Handler) SetFeePercentage(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req feeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	h.adminDone(c, h.service.SetFeePercentage(c.Request.Context(), caller, *req.Value))
}

// SetDefaultMediatorFee handles PUT /v1/admin/params/default-mediator-fee
func (h *Handler) SetDefaultMediatorFee(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req feeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	h.adminDone(c, h.service.SetDefaultMediatorFee(c.Request.Context(), caller, *req.Value))
}

// SetMinBetValue handles PUT /v1/admin/params/min-bet-value
func (h *Handler) SetMinBetValue(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req weiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	value, ok := parseWei(req.Value)
	if !ok {
		badRequest(c, "invalid_amount", "value must be a wei integer")
		return
	}
	h.adminDone(c, h.service.SetMinBetValue(c.Request.Context(), caller, value))
}

// SetDefaultMediator handles PUT /v1/admin/params/default-mediator
func (h *Handler) SetDefaultMediator(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	addr, ok := bindAddress(c)
	if !ok {
		return
	}
	h.adminDone(c, h.service.SetDefaultMediator(c.Request.Context(), caller, addr))
}

// SetMediationTimeLimit handles PUT /v1/admin/params/mediation-time-limit
func (h *Handler) SetMediationTimeLimit(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	var req limitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	if req.Seconds <= 0 || req.Seconds > maxLimitSeconds {
		h.adminDone(c, ErrBadMediationTimeLimit)
		return
	}
	h.adminDone(c, h.service.SetMediationTimeLimit(c.Request.Context(), caller, time.Duration(req.Seconds)*time.Second))
}

// Pause handles POST /v1/admin/pause
func (h *Handler) Pause(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	h.adminDone(c, h.service.Pause(c.Request.Context(), caller))
}

// Unpause handles POST /v1/admin/unpause
func (h *Handler) Unpause(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	h.adminDone(c, h.service.Unpause(c.Request.Context(), caller))
}

// TransferOwnership handles POST /v1/admin/transfer-ownership
func (h *Handler) TransferOwnership(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	addr, ok := bindAddress(c)
	if !ok {
		return
	}
	h.adminDone(c, h.service.TransferOwnership(c.Request.Context(), caller, addr))
}

// WithdrawFee handles POST /v1/admin/withdraw-fee
func (h *Handler) WithdrawFee(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	r, err := h.service.WithdrawFee(c.Request.Context(), caller)
	writeReceipt(c, http.StatusOK, r, err, nil)
}
