package watcher

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betdapp/socialbets-smartcontracts/internal/circuitbreaker"
	"github.com/betdapp/socialbets-smartcontracts/internal/ledger"
)

var (
	chainID = big.NewInt(1337)
	signer  = types.LatestSignerForChainID(chainID)
	deposit = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	other   = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

type fakeChain struct {
	mu       sync.Mutex
	head     uint64
	blocks   map[uint64][]*types.Transaction
	failed   map[common.Hash]bool
	blockErr error
	calls    int
}

func newFakeChain() *fakeChain {
	return &fakeChain{blocks: map[uint64][]*types.Transaction{}, failed: map[common.Hash]bool{}}
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return chainID, nil }

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.head, nil
}

func (f *fakeChain) BlockByNumber(_ context.Context, n *big.Int) (*types.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.blockErr != nil {
		return nil, f.blockErr
	}
	header := &types.Header{Number: new(big.Int).Set(n)}
	return types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: f.blocks[n.Uint64()]}), nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := types.ReceiptStatusSuccessful
	if f.failed[h] {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{Status: status, TxHash: h}, nil
}

func (f *fakeChain) add(block uint64, tx *types.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[block] = append(f.blocks[block], tx)
}

type fakeCreditor struct {
	mu       sync.Mutex
	credited map[string]*big.Int
	by       map[string]common.Address
	err      error
}

func newCreditor() *fakeCreditor {
	return &fakeCreditor{credited: map[string]*big.Int{}, by: map[string]common.Address{}}
}

func (c *fakeCreditor) Deposit(_ context.Context, addr common.Address, amount *big.Int, txHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if _, ok := c.credited[txHash]; ok {
		return ledger.ErrDuplicateDeposit
	}
	c.credited[txHash] = amount
	c.by[txHash] = addr
	return nil
}

func signedTransfer(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, to common.Address, wei int64) *types.Transaction {
	t.Helper()
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(wei),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	}), signer, key)
	require.NoError(t, err)
	return tx
}

func newWatcher(t *testing.T, fc *fakeChain, cr *fakeCreditor, cfg Config) *Watcher {
	t.Helper()
	cfg.DepositAddress = deposit
	w := New(fc, cfg, cr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, w.Init(context.Background()))
	return w
}

func TestPoll_CreditsConfirmedDeposits(t *testing.T) {
	key, _ := crypto.GenerateKey()
	sender := crypto.PubkeyToAddress(key.PublicKey)

	fc := newFakeChain()
	fc.head = 10
	cr := newCreditor()
	w := newWatcher(t, fc, cr, Config{StartBlock: 5, Confirmations: 2})

	tx := signedTransfer(t, key, 0, deposit, 500)
	fc.add(6, tx)
	fc.add(6, signedTransfer(t, key, 1, other, 700))  // not to us
	fc.add(7, signedTransfer(t, key, 2, deposit, 0))  // zero value
	fc.add(9, signedTransfer(t, key, 3, deposit, 900)) // not confirmed yet

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(8), w.LastBlock())
	assert.Equal(t, int64(500), cr.credited[tx.Hash().Hex()].Int64())
	assert.Equal(t, sender, cr.by[tx.Hash().Hex()])

	fc.head = 11
	n, err = w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, cr.credited, 2)
}

func TestPoll_SkipsRevertedTransactions(t *testing.T) {
	key, _ := crypto.GenerateKey()
	fc := newFakeChain()
	fc.head = 3
	cr := newCreditor()
	w := newWatcher(t, fc, cr, Config{StartBlock: 1})

	tx := signedTransfer(t, key, 0, deposit, 500)
	fc.failed[tx.Hash()] = true
	fc.add(2, tx)

	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, cr.credited)
}

func TestPoll_DuplicateIsNotAnError(t *testing.T) {
	key, _ := crypto.GenerateKey()
	fc := newFakeChain()
	fc.head = 2
	cr := newCreditor()
	tx := signedTransfer(t, key, 0, deposit, 500)
	fc.add(2, tx)
	cr.credited[tx.Hash().Hex()] = big.NewInt(500)

	w := newWatcher(t, fc, cr, Config{StartBlock: 1})
	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, uint64(2), w.LastBlock())
}

func TestPoll_CreditFailureRetriesBlock(t *testing.T) {
	key, _ := crypto.GenerateKey()
	fc := newFakeChain()
	fc.head = 3
	cr := newCreditor()
	cr.err = errors.New("database is down")
	fc.add(2, signedTransfer(t, key, 0, deposit, 500))

	w := newWatcher(t, fc, cr, Config{StartBlock: 1})
	_, err := w.Poll(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(1), w.LastBlock(), "failed block is not marked scanned")

	cr.err = nil
	n, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(3), w.LastBlock())
}

func TestPoll_BoundedCatchUp(t *testing.T) {
	fc := newFakeChain()
	fc.head = 1000
	w := newWatcher(t, fc, newCreditor(), Config{StartBlock: 1, MaxBlocksPerPoll: 10})

	_, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), w.LastBlock())
}

func TestInit_StartsAtConfirmedHead(t *testing.T) {
	fc := newFakeChain()
	fc.head = 50
	w := newWatcher(t, fc, newCreditor(), Config{Confirmations: 5})
	assert.Equal(t, uint64(45), w.LastBlock())

	fc.head = 2
	w = newWatcher(t, fc, newCreditor(), Config{Confirmations: 5})
	assert.Equal(t, uint64(0), w.LastBlock())
}

func TestPoll_RequiresInit(t *testing.T) {
	w := New(newFakeChain(), Config{DepositAddress: deposit}, newCreditor(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := w.Poll(context.Background())
	assert.Error(t, err)
}

func TestPoll_BreakerOpensOnRPCErrors(t *testing.T) {
	fc := newFakeChain()
	fc.head = 5
	fc.blockErr = errors.New("upstream 502")
	w := newWatcher(t, fc, newCreditor(), Config{StartBlock: 1}).
		WithBreaker(circuitbreaker.New(1, time.Hour))

	_, err := w.Poll(context.Background())
	require.Error(t, err)
	calls := fc.calls
	_, err = w.Poll(context.Background())
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, calls, fc.calls)
}

func TestStartStop(t *testing.T) {
	fc := newFakeChain()
	fc.head = 1
	cfg := Config{DepositAddress: deposit, PollInterval: time.Millisecond}
	w := New(fc, cfg, newCreditor(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.Running())
	w.Stop()
	assert.False(t, w.Running())
	w.Stop()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, uint64(3), cfg.Confirmations)
	assert.Equal(t, uint64(100), cfg.MaxBlocksPerPoll)
}
