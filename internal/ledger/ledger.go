// Package ledger tracks wei balances held on the platform.
//
// Flow:
//  1. Funds arrive (deposit) → credited to the address's available balance
//  2. A bet takes value → moved: available → custody
//  3. A bet pays out → moved: custody → recipient's available
//  4. The address withdraws → debited from available
//
// Custody is one pooled account; the bets store knows which bet owns what.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betdapp/socialbets-smartcontracts/internal/traces"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientCustody = errors.New("insufficient custody balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDuplicateDeposit    = errors.New("deposit already processed")
)

// EntryType classifies a balance movement.
type EntryType string

const (
	EntryDeposit    EntryType = "deposit"
	EntryWithdrawal EntryType = "withdrawal"
	EntryLock       EntryType = "lock"
	EntryPayout     EntryType = "payout"
)

// Entry represents a ledger entry
type Entry struct {
	ID        string         `json:"id"`
	Addr      common.Address `json:"address"`
	Type      EntryType      `json:"type"`
	Amount    *big.Int       `json:"amount"`
	TxHash    string         `json:"txHash,omitempty"`
	Reference string         `json:"reference,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Balance represents an address's balance
type Balance struct {
	Addr      common.Address `json:"address"`
	Available *big.Int       `json:"available"`
	TotalIn   *big.Int       `json:"totalIn"`  // Lifetime deposits
	TotalOut  *big.Int       `json:"totalOut"` // Lifetime withdrawals
	UpdatedAt time.Time      `json:"updatedAt"`
}

func zeroBalance(addr common.Address) *Balance {
	return &Balance{Addr: addr, Available: new(big.Int), TotalIn: new(big.Int), TotalOut: new(big.Int)}
}

// Store persists ledger data. Apply moves funds and records e atomically,
// failing with ErrInsufficientBalance or ErrInsufficientCustody instead of
// letting a balance go negative.
type Store interface {
	GetBalance(ctx context.Context, addr common.Address) (*Balance, error)
	Custody(ctx context.Context) (*big.Int, error)
	Apply(ctx context.Context, e *Entry) error
	GetHistory(ctx context.Context, addr common.Address, limit int) ([]*Entry, error)
	HasDeposit(ctx context.Context, txHash string) (bool, error)
}

// Ledger manages balances and the custody pool.
type Ledger struct {
	store Store
	now   func() time.Time
}

// New creates a new ledger
func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

func (l *Ledger) record(ctx context.Context, typ EntryType, addr common.Address, amount *big.Int, txHash, reference string) error {
	ctx, span := traces.StartSpan(ctx, "ledger."+string(typ),
		traces.Caller(addr.Hex()), traces.Reference(reference))
	done := observeOp(string(typ))

	var err error
	defer func() {
		done()
		traces.End(span, err)
	}()

	if amount == nil || amount.Sign() <= 0 {
		err = ErrInvalidAmount
		return err
	}
	span.SetAttributes(traces.Amount(amount.String()))

	err = l.store.Apply(ctx, &Entry{
		ID:        newEntryID(),
		Addr:      addr,
		Type:      typ,
		Amount:    new(big.Int).Set(amount),
		TxHash:    txHash,
		Reference: reference,
		CreatedAt: l.now(),
	})
	return err
}

// Deposit credits an address (called when a deposit is detected or an operator funds it).
func (l *Ledger) Deposit(ctx context.Context, addr common.Address, amount *big.Int, txHash string) error {
	if txHash != "" {
		exists, err := l.store.HasDeposit(ctx, txHash)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateDeposit
		}
	}
	return l.record(ctx, EntryDeposit, addr, amount, txHash, "")
}

// Withdraw debits an address's available balance.
func (l *Ledger) Withdraw(ctx context.Context, addr common.Address, amount *big.Int, reference string) error {
	return l.record(ctx, EntryWithdrawal, addr, amount, "", reference)
}

// Lock moves value sent with a bet call into custody.
func (l *Ledger) Lock(ctx context.Context, addr common.Address, amount *big.Int, reference string) error {
	return l.record(ctx, EntryLock, addr, amount, "", reference)
}

// Payout releases custody funds to addr.
func (l *Ledger) Payout(ctx context.Context, addr common.Address, amount *big.Int, reference string) error {
	return l.record(ctx, EntryPayout, addr, amount, "", reference)
}

// GetBalance returns an address's current balance
func (l *Ledger) GetBalance(ctx context.Context, addr common.Address) (*Balance, error) {
	return l.store.GetBalance(ctx, addr)
}

// Custody returns the pooled amount held for live bets and uncollected fees.
func (l *Ledger) Custody(ctx context.Context) (*big.Int, error) {
	return l.store.Custody(ctx)
}

// GetHistory returns the most recent entries for an address, newest first.
func (l *Ledger) GetHistory(ctx context.Context, addr common.Address, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return l.store.GetHistory(ctx, addr, limit)
}

// CanSpend checks if an address has at least amount available.
func (l *Ledger) CanSpend(ctx context.Context, addr common.Address, amount *big.Int) (bool, error) {
	bal, err := l.store.GetBalance(ctx, addr)
	if err != nil {
		return false, err
	}
	return bal.Available.Cmp(amount) >= 0, nil
}
