package bets

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var errIndexEntryMissing = errors.New("active index entry missing")

// MemoryStore is an in-memory bet store for demo/development mode.
type MemoryStore struct {
	bets    map[common.Hash]*Bet
	indices [3]*ActiveIndex
	params  *Params
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory bet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bets:    make(map[common.Hash]*Bet),
		indices: [3]*ActiveIndex{NewActiveIndex(), NewActiveIndex(), NewActiveIndex()},
	}
}

func (m *MemoryStore) Get(ctx context.Context, id common.Hash) (*Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bets[id]
	if !ok {
		return nil, ErrBetNotFound
	}
	return b.Clone(), nil
}

func (m *MemoryStore) ActiveBets(ctx context.Context, role Role, addr common.Address) ([]common.Hash, error) {
	if int(role) >= len(m.indices) {
		return nil, errors.New("unknown role")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.indices[role].List(addr), nil
}

func (m *MemoryStore) ListDue(ctx context.Context, now time.Time, mediationTimeLimit time.Duration, limit int) ([]*Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Bet
	for _, b := range m.bets {
		if now.After(b.Deadline(mediationTimeLimit)) {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Deadline(mediationTimeLimit).Before(result[j].Deadline(mediationTimeLimit))
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListLive(ctx context.Context) ([]*Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Bet, 0, len(m.bets))
	for _, b := range m.bets {
		result = append(result, b.Clone())
	}
	return result, nil
}

func (m *MemoryStore) LoadParams(ctx context.Context) (*Params, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.params == nil {
		return nil, ErrParamsNotFound
	}
	return m.params.Clone(), nil
}

// Commit validates the whole change before touching anything, so a
// rejected change leaves the store as it was.
func (m *MemoryStore) Commit(ctx context.Context, c *Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.Delete != nil {
		if _, ok := m.bets[*c.Delete]; !ok {
			return ErrBetNotFound
		}
	}
	if c.Put != nil {
		_, ok := m.bets[c.Put.ID]
		if c.Create && ok {
			return ErrBetExists
		}
		if !c.Create && !ok {
			return ErrBetNotFound
		}
	}
	for _, op := range c.Index {
		if int(op.Role) >= len(m.indices) {
			return errors.New("unknown role")
		}
		if op.Remove && !m.indices[op.Role].Contains(op.Addr, op.BetID) {
			return errIndexEntryMissing
		}
	}

	if c.Put != nil {
		m.bets[c.Put.ID] = c.Put.Clone()
	}
	if c.Delete != nil {
		delete(m.bets, *c.Delete)
	}
	for _, op := range c.Index {
		if op.Remove {
			m.indices[op.Role].Remove(op.Addr, op.BetID)
		} else {
			m.indices[op.Role].Add(op.Addr, op.BetID)
		}
	}
	if c.Params != nil {
		m.params = c.Params.Clone()
	}
	return nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
