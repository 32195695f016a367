package ledger

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerOps_CountedByEntryType(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	LedgerOpsTotal.Reset()

	require.NoError(t, l.Deposit(ctx, alice, wei(1000), "0x0a"))
	require.NoError(t, l.Lock(ctx, alice, wei(600), "bet-1"))
	require.NoError(t, l.Payout(ctx, bob, wei(600), "bet-1"))
	require.NoError(t, l.Withdraw(ctx, alice, wei(400), "w-1"))

	for _, typ := range []EntryType{EntryDeposit, EntryLock, EntryPayout, EntryWithdrawal} {
		assert.Equal(t, 1.0, testutil.ToFloat64(LedgerOpsTotal.WithLabelValues(string(typ))), string(typ))
	}
}
