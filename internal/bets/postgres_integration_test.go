//go:build integration

package bets

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betdapp/socialbets-smartcontracts/internal/ledger"
	"github.com/betdapp/socialbets-smartcontracts/internal/testutil"
)

// newPostgresFixture runs the service on the postgres bet and ledger stores.
func newPostgresFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.PGTest(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &testClock{now: start}

	l := ledger.New(ledger.NewPostgresStore(db))
	rec := &eventRecorder{}
	svc := NewService(NewPostgresStore(db), l, nil).WithClock(clk.Now).WithEvents(rec)
	_, err := svc.Init(ctx, Genesis{
		Owner:              owner,
		FeePercentage:      300,
		MinBetValue:        milli(100),
		DefaultMediatorFee: 300,
		DefaultMediator:    mediator,
	})
	require.NoError(t, err)

	for i, addr := range []common.Address{alice, bob, carol} {
		require.NoError(t, l.Deposit(ctx, addr, milli(100000), common.BigToHash(big.NewInt(int64(i+1))).Hex()))
	}
	return &fixture{t: t, ctx: ctx, svc: svc, ledger: l, clock: clk, events: rec, start: start}
}

func TestPostgres_MatchedVotesPayWinner(t *testing.T) {
	f := newPostgresFixture(t)
	req := f.request()
	id := f.create(req)
	f.join(id)

	ids, err := f.svc.ActiveBets(f.ctx, RoleSecondParty, bob)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{id}, ids)

	f.vote(alice, id, FirstPartyWins)
	r := f.vote(bob, id, FirstPartyWins)
	_, ok := r.Find(EventFinished)
	assert.True(t, ok)

	f.assertGone(id)
	f.assertCustody()
}

func TestPostgres_EscalationAndMediation(t *testing.T) {
	f := newPostgresFixture(t)
	id := f.create(f.request())
	f.join(id)
	f.vote(alice, id, FirstPartyWins)
	f.vote(bob, id, SecondPartyWins)

	b, err := f.svc.Bet(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, WaitingMediator, b.State)

	ids, err := f.svc.ActiveBets(f.ctx, RoleMediator, mediator)
	require.NoError(t, err)
	assert.Contains(t, ids, id)

	_, err = f.svc.Mediate(f.ctx, mediator, id, Tie)
	require.NoError(t, err)
	f.assertGone(id)
	f.assertCustody()
}

func TestPostgres_ParamsSurviveRestart(t *testing.T) {
	f := newPostgresFixture(t)
	require.NoError(t, f.svc.SetFeePercentage(f.ctx, owner, 450))

	p, err := f.svc.Params(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(450), p.FeePercentage)
}

func TestPostgres_DueBets(t *testing.T) {
	f := newPostgresFixture(t)
	req := f.request()
	id := f.create(req)

	f.clock.Set(req.SecondPartyTimeframe.Add(time.Second))
	due, err := f.svc.DueBets(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)

	_, err = f.svc.Party2TimeoutHandler(f.ctx, carol, id)
	require.NoError(t, err)
	f.assertGone(id)
	f.assertCustody()
}
