package bets

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// privateRequest is a bet offered to bob only, judged by judge at 4%.
func (f *fixture) privateRequest() CreateRequest {
	req := f.request()
	req.SecondParty = bob
	req.Mediator = judge
	req.MediatorFee = 400
	return req
}

func TestScenario_MatchingVotesPayWinner(t *testing.T) {
	f := newFixture(t)
	req := f.privateRequest()
	id := f.create(req)

	b, err := f.svc.Bet(f.ctx, id)
	require.NoError(t, err)
	termsID, err := b.TermsID()
	require.NoError(t, err)
	assert.Equal(t, id, termsID)

	f.clock.Advance(24 * time.Hour)
	f.join(id)
	f.vote(alice, id, FirstPartyWins)
	r := f.vote(bob, id, FirstPartyWins)

	assert.Equal(t, milli(2000).String(), r.PaidTo(alice).String())
	assert.Equal(t, 0, r.PaidTo(bob).Sign())
	assert.Equal(t, 0, r.PaidTo(judge).Sign())
	f.assertAvailable(alice, milli(100000-560+2000))
	f.assertAvailable(bob, milli(100000-1500))
	f.assertGone(id)
	f.assertCustody()
}

func TestScenario_MediatorTie(t *testing.T) {
	f := newFixture(t)
	id := f.create(f.privateRequest())
	f.join(id)
	f.vote(alice, id, FirstPartyWins)
	r := f.vote(bob, id, SecondPartyWins)
	assert.True(t, r.Has(EventWaitingMediator))

	ids, err := f.svc.ActiveBets(f.ctx, RoleMediator, judge)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{id}, ids)

	r, err = f.svc.Mediate(f.ctx, judge, id, Tie)
	require.NoError(t, err)

	// 4% of the 2 ether pool, split evenly.
	assert.Equal(t, milli(80).String(), r.PaidTo(judge).String())
	assert.Equal(t, milli(460).String(), r.PaidTo(alice).String())
	assert.Equal(t, milli(1460).String(), r.PaidTo(bob).String())
	f.assertGone(id)
	f.assertCustody()
}

func TestScenario_ThirdPartyCranksParty2Timeout(t *testing.T) {
	f := newFixture(t)
	req := f.privateRequest()
	id := f.create(req)

	_, err := f.svc.CreateBet(f.ctx, alice, req, valueFor(req))
	assert.ErrorIs(t, err, ErrBetExists, "identical terms while open")

	f.clock.Advance(5*24*time.Hour + time.Second)
	r, err := f.svc.Party2TimeoutHandler(f.ctx, carol, id)
	require.NoError(t, err)

	assert.Equal(t, milli(500).String(), r.PaidTo(alice).String())
	f.assertAvailable(carol, milli(100000))
	f.assertGone(id)

	_, err = f.svc.Party2TimeoutHandler(f.ctx, carol, id)
	assert.ErrorIs(t, err, ErrBetNotFound, "second crank observes the deletion")

	// Same terms are free again once the deadlines are still ahead.
	f.clock.Set(f.start)
	again := f.create(req)
	assert.Equal(t, id, again)
	f.assertCustody()
}
