package ledger

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betdapp/socialbets-smartcontracts/internal/idgen"
)

func newEntryID() string {
	return idgen.New()
}

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	balances map[common.Address]*Balance
	custody  *big.Int
	entries  []*Entry
	deposits map[string]bool
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[common.Address]*Balance),
		custody:  new(big.Int),
		deposits: make(map[string]bool),
	}
}

func copyBalance(b *Balance) *Balance {
	return &Balance{
		Addr:      b.Addr,
		Available: new(big.Int).Set(b.Available),
		TotalIn:   new(big.Int).Set(b.TotalIn),
		TotalOut:  new(big.Int).Set(b.TotalOut),
		UpdatedAt: b.UpdatedAt,
	}
}

func copyEntry(e *Entry) *Entry {
	cp := *e
	cp.Amount = new(big.Int).Set(e.Amount)
	return &cp
}

func (m *MemoryStore) GetBalance(ctx context.Context, addr common.Address) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bal, ok := m.balances[addr]
	if !ok {
		return zeroBalance(addr), nil
	}
	return copyBalance(bal), nil
}

func (m *MemoryStore) Custody(ctx context.Context) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return new(big.Int).Set(m.custody), nil
}

func (m *MemoryStore) Apply(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[e.Addr]
	if !ok {
		bal = zeroBalance(e.Addr)
	}
	available := new(big.Int).Set(bal.Available)
	custody := new(big.Int).Set(m.custody)

	switch e.Type {
	case EntryDeposit:
		if e.TxHash != "" && m.deposits[e.TxHash] {
			return ErrDuplicateDeposit
		}
		available.Add(available, e.Amount)
	case EntryWithdrawal:
		available.Sub(available, e.Amount)
	case EntryLock:
		available.Sub(available, e.Amount)
		custody.Add(custody, e.Amount)
	case EntryPayout:
		custody.Sub(custody, e.Amount)
		available.Add(available, e.Amount)
	default:
		return ErrInvalidAmount
	}
	if available.Sign() < 0 {
		return ErrInsufficientBalance
	}
	if custody.Sign() < 0 {
		return ErrInsufficientCustody
	}

	bal.Available = available
	switch e.Type {
	case EntryDeposit:
		bal.TotalIn = new(big.Int).Add(bal.TotalIn, e.Amount)
		if e.TxHash != "" {
			m.deposits[e.TxHash] = true
		}
	case EntryWithdrawal:
		bal.TotalOut = new(big.Int).Add(bal.TotalOut, e.Amount)
	}
	bal.UpdatedAt = e.CreatedAt
	m.balances[e.Addr] = bal
	m.custody = custody
	m.entries = append(m.entries, copyEntry(e))
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, addr common.Address, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if m.entries[i].Addr == addr {
			result = append(result, copyEntry(m.entries[i]))
		}
	}
	return result, nil
}

func (m *MemoryStore) HasDeposit(ctx context.Context, txHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.deposits[txHash], nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
