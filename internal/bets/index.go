package bets

import "github.com/ethereum/go-ethereum/common"

// ActiveIndex lists the live bets of each address for one role.
// Removal swaps the last entry into the hole, so order is not stable.
// Not safe for concurrent use; stores guard it with their own lock.
type ActiveIndex struct {
	lists map[common.Address][]common.Hash
}

// NewActiveIndex creates an empty index.
func NewActiveIndex() *ActiveIndex {
	return &ActiveIndex{lists: make(map[common.Address][]common.Hash)}
}

// Add appends id to addr's list.
func (ix *ActiveIndex) Add(addr common.Address, id common.Hash) {
	ix.lists[addr] = append(ix.lists[addr], id)
}

// Remove deletes the first occurrence of id from addr's list.
// It reports whether anything was removed.
func (ix *ActiveIndex) Remove(addr common.Address, id common.Hash) bool {
	list := ix.lists[addr]
	for i, v := range list {
		if v != id {
			continue
		}
		last := len(list) - 1
		list[i] = list[last]
		list = list[:last]
		if len(list) == 0 {
			delete(ix.lists, addr)
		} else {
			ix.lists[addr] = list
		}
		return true
	}
	return false
}

// List returns a copy of addr's list.
func (ix *ActiveIndex) List(addr common.Address) []common.Hash {
	list := ix.lists[addr]
	out := make([]common.Hash, len(list))
	copy(out, list)
	return out
}

// Contains reports whether id is listed under addr.
func (ix *ActiveIndex) Contains(addr common.Address, id common.Hash) bool {
	for _, v := range ix.lists[addr] {
		if v == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, used to stage changes before they are applied.
func (ix *ActiveIndex) Clone() *ActiveIndex {
	cp := NewActiveIndex()
	for addr, list := range ix.lists {
		cp.lists[addr] = append([]common.Hash(nil), list...)
	}
	return cp
}
