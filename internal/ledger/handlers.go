package ledger

import (
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/betdapp/socialbets-smartcontracts/internal/auth"
	"github.com/betdapp/socialbets-smartcontracts/internal/ether"
	"github.com/betdapp/socialbets-smartcontracts/internal/idgen"
	"github.com/betdapp/socialbets-smartcontracts/internal/validation"
)

// Handler provides HTTP endpoints for ledger operations
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes sets up public ledger routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/addresses/:address/balance", validation.AddressParamMiddleware(), h.GetBalance)
	r.GET("/addresses/:address/ledger", validation.AddressParamMiddleware(), h.GetHistory)
	r.GET("/ledger/custody", h.GetCustody)
}

// RegisterProtectedRoutes sets up routes that need a signed caller.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/ledger/withdraw", h.Withdraw)
}

// RegisterAdminRoutes sets up owner-only ledger routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/deposits", h.RecordDeposit)
}

// BalanceResponse renders a Balance with wei strings.
type BalanceResponse struct {
	Address        string    `json:"address"`
	Available      string    `json:"available"`
	AvailableEther string    `json:"availableEther"`
	TotalIn        string    `json:"totalIn"`
	TotalOut       string    `json:"totalOut"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

func newBalanceResponse(b *Balance) BalanceResponse {
	return BalanceResponse{
		Address:        b.Addr.Hex(),
		Available:      b.Available.String(),
		AvailableEther: ether.Format(b.Available),
		TotalIn:        b.TotalIn.String(),
		TotalOut:       b.TotalOut.String(),
		UpdatedAt:      b.UpdatedAt,
	}
}

// EntryResponse renders an Entry with a wei string amount.
type EntryResponse struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Amount    string    `json:"amount"`
	TxHash    string    `json:"txHash,omitempty"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetBalance handles GET /addresses/:address/balance
func (h *Handler) GetBalance(c *gin.Context) {
	addr := common.HexToAddress(c.Param("address"))

	balance, err := h.ledger.GetBalance(c.Request.Context(), addr)
	if err != nil {
		h.logger.Error("failed to load balance", "address", addr.Hex(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "balance_error",
			"message": "Failed to retrieve balance",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance": newBalanceResponse(balance),
	})
}

// GetHistory handles GET /addresses/:address/ledger
func (h *Handler) GetHistory(c *gin.Context) {
	addr := common.HexToAddress(c.Param("address"))
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	entries, err := h.ledger.GetHistory(c.Request.Context(), addr, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to retrieve ledger history",
		})
		return
	}

	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			ID:        e.ID,
			Type:      e.Type,
			Amount:    e.Amount.String(),
			TxHash:    e.TxHash,
			Reference: e.Reference,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": out,
	})
}

// GetCustody handles GET /ledger/custody
func (h *Handler) GetCustody(c *gin.Context) {
	custody, err := h.ledger.Custody(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ledger_error",
			"message": "Failed to retrieve custody balance",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"custody":      custody.String(),
		"custodyEther": ether.Format(custody),
	})
}

// DepositRequest records funds that arrived for an address (admin use).
type DepositRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	TxHash  string `json:"txHash" binding:"required"`
}

// RecordDeposit handles POST /admin/deposits
func (h *Handler) RecordDeposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAddress("address", req.Address),
		validation.ValidWei("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	if !validation.IsValidBetID(req.TxHash) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_tx_hash",
			"message": "txHash must be 0x + 64 hex chars",
		})
		return
	}

	addr := common.HexToAddress(req.Address)
	amount, _ := new(big.Int).SetString(req.Amount, 10)
	err := h.ledger.Deposit(c.Request.Context(), addr, amount, req.TxHash)
	switch {
	case errors.Is(err, ErrDuplicateDeposit):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "duplicate_deposit",
			"message": "Deposit already processed",
		})
		return
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be positive",
		})
		return
	case err != nil:
		h.logger.Error("failed to record deposit", "address", addr.Hex(), "tx_hash", req.TxHash, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "deposit_error",
			"message": "Failed to record deposit",
		})
		return
	}

	h.logger.Info("deposit credited", "address", addr.Hex(), "amount", req.Amount, "tx_hash", req.TxHash)
	c.JSON(http.StatusCreated, gin.H{
		"status":  "credited",
		"message": "Deposit credited to balance",
	})
}

// WithdrawRequest asks to move available funds off the platform.
type WithdrawRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// Withdraw handles POST /ledger/withdraw. The caller's available balance is
// debited immediately; the on-chain transfer is settled by an operator.
func (h *Handler) Withdraw(c *gin.Context) {
	caller, ok := auth.GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Signed request required",
		})
		return
	}

	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidWei(req.Amount) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount must be a wei integer",
		})
		return
	}
	amount, _ := new(big.Int).SetString(req.Amount, 10)

	ref := idgen.WithPrefix("wd_")
	err := h.ledger.Withdraw(c.Request.Context(), caller, amount, ref)
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":   "insufficient_balance",
			"message": "Insufficient balance for withdrawal",
		})
		return
	case errors.Is(err, ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be positive",
		})
		return
	case err != nil:
		h.logger.Error("withdrawal failed", "address", caller.Hex(), "amount", req.Amount, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "withdrawal_error",
			"message": "Failed to record withdrawal",
		})
		return
	}

	h.logger.Info("withdrawal recorded", "address", caller.Hex(), "amount", req.Amount, "reference", ref)
	c.JSON(http.StatusAccepted, gin.H{
		"status":    "pending",
		"reference": ref,
		"amount":    req.Amount,
	})
}
