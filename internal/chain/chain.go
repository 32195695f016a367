// Package chain answers questions about on-chain accounts.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/betdapp/socialbets-smartcontracts/internal/circuitbreaker"
	"github.com/betdapp/socialbets-smartcontracts/internal/retry"
)

var (
	ErrRPCConnection = errors.New("chain: RPC connection failed")
	ErrRPCURL        = errors.New("chain: RPC URL required")
	ErrUnavailable   = errors.New("chain: RPC unavailable")
)

const (
	// DefaultCallTimeout bounds a single eth_getCode round trip.
	DefaultCallTimeout = 5 * time.Second

	callAttempts = 3
	callBackoff  = 200 * time.Millisecond

	// BreakerKey is the circuit key for eth_getCode calls.
	BreakerKey = "rpc"
)

// CodeReader is the part of ethclient the checker needs.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Option configures a Checker.
type Option func(*Checker)

// WithClient sets a custom client (useful for testing).
func WithClient(client CodeReader) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithBreaker fails calls fast with ErrUnavailable while b holds the
// RPC circuit open.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *Checker) {
		c.breaker = b
	}
}

// Checker tells contracts from externally owned accounts with eth_getCode.
// Addresses found to hold code are cached; an EOA can still gain code
// later, so negative answers are always re-read.
type Checker struct {
	client  CodeReader
	timeout time.Duration
	breaker *circuitbreaker.Breaker

	mu        sync.RWMutex
	contracts map[common.Address]struct{}
}

// New creates a Checker. Without WithClient it dials rpcURL.
func New(ctx context.Context, rpcURL string, opts ...Option) (*Checker, error) {
	c := &Checker{
		timeout:   DefaultCallTimeout,
		contracts: make(map[common.Address]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		if rpcURL == "" {
			return nil, ErrRPCURL
		}
		client, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		c.client = client
	}
	return c, nil
}

// IsContract reports whether addr has code at the latest block.
func (c *Checker) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	c.mu.RLock()
	_, known := c.contracts[addr]
	c.mu.RUnlock()
	if known {
		return true, nil
	}

	var code []byte
	read := func() error {
		return retry.Do(ctx, callAttempts, callBackoff, func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			var err error
			code, err = c.client.CodeAt(callCtx, addr, nil)
			return err
		})
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Do(BreakerKey, read, func(err error) bool { return ctx.Err() == nil })
	} else {
		err = read()
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return false, ErrUnavailable
	}
	if err != nil {
		return false, fmt.Errorf("failed to read code of %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return false, nil
	}

	c.mu.Lock()
	c.contracts[addr] = struct{}{}
	c.mu.Unlock()
	return true, nil
}

// Close releases the RPC connection.
func (c *Checker) Close() {
	c.client.Close()
}

// Static is an AccountChecker for deployments without an RPC endpoint.
// Listed addresses are contracts; everything else is an EOA.
type Static map[common.Address]bool

// IsContract reports whether addr is listed.
func (s Static) IsContract(_ context.Context, addr common.Address) (bool, error) {
	return s[addr], nil
}
