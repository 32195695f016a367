package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/keeper"
)

// BetService is the slice of bets.Service the operator endpoints read.
type BetService interface {
	DueBets(ctx context.Context, limit int) ([]*bets.Bet, error)
	Params(ctx context.Context) (*bets.Params, error)
}

// KeeperRunner runs a single keeper pass.
type KeeperRunner interface {
	RunOnce(ctx context.Context) (keeper.Result, error)
}

// StatsSource reports realtime hub statistics.
type StatsSource interface {
	Stats() map[string]any
}

// Handler provides operator HTTP endpoints.
type Handler struct {
	bets   BetService
	keeper KeeperRunner
	hub    StatsSource
	now    func() time.Time
}

// NewHandler creates a new admin handler.
func NewHandler(svc BetService) *Handler {
	return &Handler{bets: svc, now: time.Now}
}

// WithKeeper enables on-demand cranking.
func (h *Handler) WithKeeper(k KeeperRunner) *Handler {
	h.keeper = k
	return h
}

// WithHub exposes realtime hub statistics.
func (h *Handler) WithHub(s StatsSource) *Handler {
	h.hub = s
	return h
}

// RegisterRoutes sets up admin routes. Callers must guard the group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/admin/bets/overdue", h.listOverdue)
	r.POST("/admin/keeper/run", h.runKeeper)
	r.GET("/admin/realtime/stats", h.realtimeStats)
}

// listOverdue returns live bets past their deadline, most overdue first.
func (h *Handler) listOverdue(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	ctx := c.Request.Context()
	params, err := h.bets.Params(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_initialized", "message": err.Error()})
		return
	}
	due, err := h.bets.DueBets(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list overdue bets"})
		return
	}

	now := h.now()
	out := make([]OverdueBet, 0, len(due))
	for _, b := range due {
		out = append(out, OverdueBet{
			BetResponse: bets.NewBetResponse(b, params.MediationTimeLimit),
			Overdue:     int64(now.Sub(b.Deadline(params.MediationTimeLimit)) / time.Second),
			Handler:     HandlerFor(b.State),
		})
	}
	c.JSON(http.StatusOK, gin.H{"bets": out, "count": len(out)})
}

// runKeeper cranks every due bet now instead of waiting for the next tick.
func (h *Handler) runKeeper(c *gin.Context) {
	if h.keeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "keeper_disabled", "message": "keeper not configured"})
		return
	}

	start := h.now()
	res, err := h.keeper.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "keeper_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": CrankReport{
		Due:       res.Due,
		Cranked:   res.Cranked,
		Skipped:   res.Skipped,
		Failed:    res.Failed,
		Duration:  h.now().Sub(start) / time.Millisecond,
		Timestamp: start.UTC(),
	}})
}

func (h *Handler) realtimeStats(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime_disabled", "message": "realtime hub not configured"})
		return
	}
	c.JSON(http.StatusOK, h.hub.Stats())
}
