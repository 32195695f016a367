// Package reconciliation checks that the custody pool holds exactly what
// live bets and uncollected fees account for.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/ether"
	"github.com/betdapp/socialbets-smartcontracts/internal/idgen"
	"github.com/betdapp/socialbets-smartcontracts/internal/ledger"
)

// overdueScanLimit bounds the due-bet scan; a backlog this large is already an alert.
const overdueScanLimit = 1000

// CustodyReader reports the ledger's custody pool.
type CustodyReader interface {
	Custody(ctx context.Context) (*big.Int, error)
}

// BetSource reports what custody should be and which bets await a crank.
type BetSource interface {
	ExpectedCustody(ctx context.Context) (*big.Int, error)
	DueBets(ctx context.Context, limit int) ([]*bets.Bet, error)
}

// ReportStore persists reports. Optional.
type ReportStore interface {
	Save(ctx context.Context, r *Report) error
}

// Report is the outcome of one run.
type Report struct {
	ID          string        `json:"id"`
	Custody     *big.Int      `json:"-"`
	Expected    *big.Int      `json:"-"`
	Diff        *big.Int      `json:"-"`
	Mismatch    bool          `json:"mismatch"`
	OverdueBets int           `json:"overdueBets"`
	Duration    time.Duration `json:"-"`
	CompletedAt time.Time     `json:"completedAt"`
}

// Runner performs reconciliation runs and keeps the latest report.
type Runner struct {
	custody CustodyReader
	bets    BetSource
	store   ReportStore
	logger  *slog.Logger

	mu     sync.RWMutex
	latest *Report
}

// NewRunner creates a reconciliation runner.
func NewRunner(custody CustodyReader, source BetSource, logger *slog.Logger) *Runner {
	return &Runner{custody: custody, bets: source, logger: logger}
}

// WithStore persists every report to store.
func (r *Runner) WithStore(store ReportStore) *Runner {
	r.store = store
	return r
}

// Latest returns the most recent report, or nil before the first run.
func (r *Runner) Latest() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// RunAll runs every check and records the report.
func (r *Runner) RunAll(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() { reconcileDuration.Observe(time.Since(start).Seconds()) }()

	custody, err := r.custody.Custody(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to read custody: %w", err)
	}
	expected, err := r.bets.ExpectedCustody(ctx)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to compute expected custody: %w", err)
	}
	due, err := r.bets.DueBets(ctx, overdueScanLimit)
	if err != nil {
		reconcileErrors.Inc()
		return nil, fmt.Errorf("failed to list due bets: %w", err)
	}

	diff := new(big.Int).Sub(custody, expected)
	report := &Report{
		ID:          idgen.New(),
		Custody:     custody,
		Expected:    expected,
		Diff:        diff,
		Mismatch:    diff.Sign() != 0,
		OverdueBets: len(due),
		Duration:    time.Since(start),
		CompletedAt: time.Now().UTC(),
	}

	ledger.LedgerCustodyEther.Set(ether.Float(custody))
	reconcileCustodyDiffEther.Set(ether.Float(diff))
	reconcileOverdueBets.Set(float64(len(due)))

	if report.Mismatch {
		r.logger.Error("CRITICAL: custody mismatch",
			"custody", custody.String(),
			"expected", expected.String(),
			"diff", diff.String(),
		)
	} else {
		r.logger.Info("reconciliation ok",
			"custody", ether.Format(custody), "overdueBets", len(due))
	}

	if r.store != nil {
		if err := r.store.Save(ctx, report); err != nil {
			reconcileErrors.Inc()
			r.logger.Warn("failed to save reconciliation report", "id", report.ID, "error", err)
		}
	}

	r.mu.Lock()
	r.latest = report
	r.mu.Unlock()
	return report, nil
}
