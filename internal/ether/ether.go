// Package ether converts between wei amounts and human-readable ether.
//
// Amounts are stored and moved as *big.Int wei (1 ether = 10^18 wei).
// Decimal strings only appear at the edges: CLI flags, MCP tool arguments,
// log lines.
package ether

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const Decimals = 18

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more than 18 decimal places")
)

// ParseEther converts a decimal ether string ("0.5") to wei.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	wei := d.Shift(Decimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, ErrTooPrecise
	}
	return wei.BigInt(), nil
}

// ParseWei converts a base-10 integer string to wei.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidAmount
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	return v, nil
}

// Parse accepts either "<n>wei", "<x>eth"/"<x>ether" or a bare ether decimal.
func Parse(s string) (*big.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasSuffix(s, "wei"):
		return ParseWei(strings.TrimSuffix(s, "wei"))
	case strings.HasSuffix(s, "ether"):
		return ParseEther(strings.TrimSuffix(s, "ether"))
	case strings.HasSuffix(s, "eth"):
		return ParseEther(strings.TrimSuffix(s, "eth"))
	}
	return ParseEther(s)
}

// Format renders wei as an ether decimal with trailing zeros trimmed.
func Format(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -Decimals).String()
}

// Float is a lossy ether value for metrics.
func Float(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(wei, -Decimals).Float64()
	return f
}
