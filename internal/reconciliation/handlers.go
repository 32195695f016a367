package reconciliation

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betdapp/socialbets-smartcontracts/internal/ether"
)

// ReportResponse renders a Report with wei strings.
type ReportResponse struct {
	ID          string    `json:"id"`
	Custody     string    `json:"custody"`
	Expected    string    `json:"expected"`
	Diff        string    `json:"diff"`
	DiffEther   string    `json:"diffEther"`
	Mismatch    bool      `json:"mismatch"`
	OverdueBets int       `json:"overdueBets"`
	DurationMs  int64     `json:"durationMs"`
	CompletedAt time.Time `json:"completedAt"`
}

func newReportResponse(r *Report) ReportResponse {
	return ReportResponse{
		ID:          r.ID,
		Custody:     r.Custody.String(),
		Expected:    r.Expected.String(),
		Diff:        r.Diff.String(),
		DiffEther:   ether.Format(r.Diff),
		Mismatch:    r.Mismatch,
		OverdueBets: r.OverdueBets,
		DurationMs:  r.Duration.Milliseconds(),
		CompletedAt: r.CompletedAt,
	}
}

// Handler exposes reconciliation to operators.
type Handler struct {
	runner *Runner
}

// NewHandler creates a reconciliation handler.
func NewHandler(runner *Runner) *Handler {
	return &Handler{runner: runner}
}

// RegisterAdminRoutes sets up owner-only routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/admin/reconciliation", h.GetLatest)
	r.POST("/admin/reconciliation/run", h.Run)
}

// GetLatest handles GET /v1/admin/reconciliation
func (h *Handler) GetLatest(c *gin.Context) {
	report := h.runner.Latest()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "No reconciliation has run yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": newReportResponse(report)})
}

// Run handles POST /v1/admin/reconciliation/run
func (h *Handler) Run(c *gin.Context) {
	report, err := h.runner.RunAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": newReportResponse(report)})
}
