// Package watcher credits on-chain ether deposits to the ledger.
//
// Plain value transfers to the deposit address are credited to the
// sender once they are Confirmations blocks deep. Transfers made from
// inside contracts are not seen; those go through the admin deposit route.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/betdapp/socialbets-smartcontracts/internal/circuitbreaker"
	"github.com/betdapp/socialbets-smartcontracts/internal/ether"
	"github.com/betdapp/socialbets-smartcontracts/internal/ledger"
)

var (
	depositsCredited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "socialbets",
		Subsystem: "watcher",
		Name:      "deposits_credited_total",
		Help:      "On-chain deposits credited to the ledger.",
	})
	depositsEther = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "socialbets",
		Subsystem: "watcher",
		Name:      "deposits_ether_total",
		Help:      "Ether credited from on-chain deposits.",
	})
	lastBlockGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "socialbets",
		Subsystem: "watcher",
		Name:      "last_block",
		Help:      "Last block scanned for deposits.",
	})
)

func init() {
	prometheus.MustRegister(depositsCredited, depositsEther, lastBlockGauge)
}

const breakerKey = "deposit-rpc"

// ChainReader is the part of ethclient the watcher needs.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Creditor credits a deposit. It must reject a txHash it has already
// credited with ledger.ErrDuplicateDeposit.
type Creditor interface {
	Deposit(ctx context.Context, addr common.Address, amount *big.Int, txHash string) error
}

// Config for the deposit watcher
type Config struct {
	DepositAddress common.Address
	PollInterval   time.Duration
	// Confirmations is how far behind the head a block must be.
	Confirmations uint64
	// StartBlock is the first block scanned; 0 starts at the confirmed head.
	StartBlock uint64
	// MaxBlocksPerPoll bounds the catch-up work of one poll.
	MaxBlocksPerPoll uint64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PollInterval:     15 * time.Second,
		Confirmations:    3,
		MaxBlocksPerPoll: 100,
	}
}

// Watcher scans blocks for deposits.
type Watcher struct {
	client   ChainReader
	config   Config
	creditor Creditor
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger

	signer    types.Signer
	lastBlock uint64
	scanMu    sync.Mutex

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a deposit watcher. Call Start to begin polling.
func New(client ChainReader, cfg Config, creditor Creditor, logger *slog.Logger) *Watcher {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxBlocksPerPoll == 0 {
		cfg.MaxBlocksPerPoll = def.MaxBlocksPerPoll
	}
	return &Watcher{
		client:   client,
		config:   cfg,
		creditor: creditor,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// WithBreaker fails polls fast while b holds the RPC circuit open.
func (w *Watcher) WithBreaker(b *circuitbreaker.Breaker) *Watcher {
	w.breaker = b
	return w
}

// Init resolves the chain id and the first block to scan. Start calls it.
func (w *Watcher) Init(ctx context.Context) error {
	chainID, err := w.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}
	w.signer = types.LatestSignerForChainID(chainID)

	if w.config.StartBlock > 0 {
		w.lastBlock = w.config.StartBlock - 1
		return nil
	}
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}
	w.lastBlock = confirmed(head, w.config.Confirmations)
	return nil
}

// Start begins watching for deposits
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.Init(ctx); err != nil {
		return err
	}
	w.logger.Info("deposit watcher started",
		"address", w.config.DepositAddress.Hex(),
		"from_block", w.lastBlock+1,
		"confirmations", w.config.Confirmations,
	)
	w.running.Store(true)
	go w.pollLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.running.Load() {
		<-w.done
	}
}

// Running reports whether the poll loop is active.
func (w *Watcher) Running() bool {
	return w.running.Load()
}

// LastBlock is the last block fully scanned.
func (w *Watcher) LastBlock() uint64 {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()
	return w.lastBlock
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)
	defer w.running.Store(false)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil {
				w.logger.Error("deposit poll failed", "error", err, "last_block", w.LastBlock())
			}
		}
	}
}

// Poll scans confirmed blocks after the last one scanned and returns the
// number of deposits credited. A block is only marked scanned once every
// deposit in it is credited, so a failure is retried on the next poll.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	if w.signer == nil {
		return 0, errors.New("watcher not initialized")
	}

	var head uint64
	if err := w.call(ctx, func() (err error) {
		head, err = w.client.BlockNumber(ctx)
		return err
	}); err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	target := min(confirmed(head, w.config.Confirmations), w.lastBlock+w.config.MaxBlocksPerPoll)

	credited := 0
	for n := w.lastBlock + 1; n <= target; n++ {
		c, err := w.scanBlock(ctx, n)
		credited += c
		if err != nil {
			return credited, fmt.Errorf("block %d: %w", n, err)
		}
		w.lastBlock = n
		lastBlockGauge.Set(float64(n))
	}
	return credited, nil
}

func (w *Watcher) scanBlock(ctx context.Context, n uint64) (int, error) {
	var block *types.Block
	if err := w.call(ctx, func() (err error) {
		block, err = w.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		return err
	}); err != nil {
		return 0, err
	}

	credited := 0
	for _, tx := range block.Transactions() {
		to := tx.To()
		if to == nil || *to != w.config.DepositAddress || tx.Value().Sign() <= 0 {
			continue
		}
		ok, err := w.credit(ctx, tx)
		if err != nil {
			return credited, fmt.Errorf("tx %s: %w", tx.Hash().Hex(), err)
		}
		if ok {
			credited++
		}
	}
	return credited, nil
}

func (w *Watcher) credit(ctx context.Context, tx *types.Transaction) (bool, error) {
	var receipt *types.Receipt
	if err := w.call(ctx, func() (err error) {
		receipt, err = w.client.TransactionReceipt(ctx, tx.Hash())
		return err
	}); err != nil {
		return false, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, nil
	}

	from, err := types.Sender(w.signer, tx)
	if err != nil {
		w.logger.Warn("skipping deposit with unrecoverable sender", "tx", tx.Hash().Hex(), "error", err)
		return false, nil
	}

	err = w.creditor.Deposit(ctx, from, tx.Value(), tx.Hash().Hex())
	if errors.Is(err, ledger.ErrDuplicateDeposit) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	depositsCredited.Inc()
	depositsEther.Add(ether.Float(tx.Value()))
	w.logger.Info("deposit credited",
		"address", from.Hex(),
		"amount", ether.Format(tx.Value()),
		"tx", tx.Hash().Hex(),
	)
	return true, nil
}

func (w *Watcher) call(ctx context.Context, fn func() error) error {
	if w.breaker == nil {
		return fn()
	}
	return w.breaker.Do(breakerKey, fn, func(error) bool { return ctx.Err() == nil })
}

func confirmed(head, confirmations uint64) uint64 {
	if head < confirmations {
		return 0
	}
	return head - confirmations
}
