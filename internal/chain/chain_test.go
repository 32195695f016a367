package chain

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betdapp/socialbets-smartcontracts/internal/circuitbreaker"
)

type fakeClient struct {
	code   map[common.Address][]byte
	fails  int32
	calls  atomic.Int32
	closed bool
}

func (f *fakeClient) CodeAt(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	n := f.calls.Add(1)
	if n <= f.fails {
		return nil, errors.New("connection reset")
	}
	return f.code[addr], nil
}

func (f *fakeClient) Close() { f.closed = true }

var (
	eoa      = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	contract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

func newChecker(t *testing.T, fc *fakeClient) *Checker {
	t.Helper()
	c, err := New(context.Background(), "", WithClient(fc))
	require.NoError(t, err)
	return c
}

func TestIsContract(t *testing.T) {
	fc := &fakeClient{code: map[common.Address][]byte{contract: {0x60, 0x80}}}
	c := newChecker(t, fc)
	ctx := context.Background()

	got, err := c.IsContract(ctx, contract)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = c.IsContract(ctx, eoa)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsContract_CachesContracts(t *testing.T) {
	fc := &fakeClient{code: map[common.Address][]byte{contract: {0x60}}}
	c := newChecker(t, fc)
	ctx := context.Background()

	for range 3 {
		_, err := c.IsContract(ctx, contract)
		require.NoError(t, err)
		_, err = c.IsContract(ctx, eoa)
		require.NoError(t, err)
	}
	// one read for the contract, three for the EOA
	assert.Equal(t, int32(4), fc.calls.Load())
}

func TestIsContract_RetriesTransientErrors(t *testing.T) {
	fc := &fakeClient{code: map[common.Address][]byte{contract: {0x60}}, fails: 2}
	c := newChecker(t, fc)

	got, err := c.IsContract(context.Background(), contract)
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, int32(3), fc.calls.Load())
}

func TestIsContract_GivesUp(t *testing.T) {
	fc := &fakeClient{fails: 10}
	c := newChecker(t, fc)

	_, err := c.IsContract(context.Background(), eoa)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIsContract_BreakerFailsFast(t *testing.T) {
	fc := &fakeClient{fails: 100}
	c, err := New(context.Background(), "", WithClient(fc), WithBreaker(circuitbreaker.New(1, time.Hour)))
	require.NoError(t, err)

	_, err = c.IsContract(context.Background(), eoa)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	calls := fc.calls.Load()

	_, err = c.IsContract(context.Background(), eoa)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, calls, fc.calls.Load(), "open circuit makes no RPC call")
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.ErrorIs(t, err, ErrRPCURL)
}

func TestClose(t *testing.T) {
	fc := &fakeClient{}
	newChecker(t, fc).Close()
	assert.True(t, fc.closed)
}

func TestStatic(t *testing.T) {
	s := Static{contract: true}
	got, err := s.IsContract(context.Background(), contract)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = s.IsContract(context.Background(), eoa)
	require.NoError(t, err)
	assert.False(t, got)
}
