package bets

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBet(id string) *Bet {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &Bet{
		ID:                   common.HexToHash(id),
		Metadata:             "m",
		FirstParty:           alice,
		Mediator:             mediator,
		FirstBetValue:        milli(500),
		SecondBetValue:       milli(1500),
		MediatorFee:          300,
		SecondPartyTimeframe: now.Add(24 * time.Hour),
		ResultTimeframe:      now.Add(48 * time.Hour),
		State:                WaitingParty2,
	}
}

func TestMemoryStore_CommitAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b := sampleBet("0x1")

	require.NoError(t, s.Commit(ctx, &Change{
		Put:    b,
		Create: true,
		Index:  []IndexOp{{Role: RoleFirstParty, Addr: alice, BetID: b.ID}},
	}))

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Metadata, got.Metadata)

	// Returned bets are copies.
	got.FirstBetValue.SetInt64(1)
	again, _ := s.Get(ctx, b.ID)
	assert.Equal(t, milli(500).String(), again.FirstBetValue.String())

	ids, err := s.ActiveBets(ctx, RoleFirstParty, alice)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{b.ID}, ids)
}

func TestMemoryStore_CommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b := sampleBet("0x1")

	err := s.Commit(ctx, &Change{
		Put:    b,
		Create: true,
		Index:  []IndexOp{{Role: RoleSecondParty, Addr: bob, BetID: b.ID, Remove: true}},
	})
	assert.Error(t, err)

	_, err = s.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBetNotFound)

	missing := common.HexToHash("0x9")
	assert.ErrorIs(t, s.Commit(ctx, &Change{Delete: &missing}), ErrBetNotFound)
}

func TestMemoryStore_CreateNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b := sampleBet("0x1")

	require.NoError(t, s.Commit(ctx, &Change{Put: b, Create: true}))
	b.State = WaitingFirstVote
	b.SecondParty = bob
	require.NoError(t, s.Commit(ctx, &Change{Put: b}))

	fresh := sampleBet("0x1")
	assert.ErrorIs(t, s.Commit(ctx, &Change{Put: fresh, Create: true}), ErrBetExists)

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, WaitingFirstVote, got.State, "live bet untouched")

	stray := sampleBet("0x2")
	assert.ErrorIs(t, s.Commit(ctx, &Change{Put: stray}), ErrBetNotFound)
}

func TestMemoryStore_Params(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.LoadParams(ctx)
	assert.ErrorIs(t, err, ErrParamsNotFound)

	p := &Params{Owner: owner, MinBetValue: big.NewInt(1), CollectedFee: big.NewInt(5)}
	require.NoError(t, s.Commit(ctx, &Change{Params: p}))
	p.CollectedFee.SetInt64(100)

	got, err := s.LoadParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5", got.CollectedFee.String())
}

func TestMemoryStore_ListDue(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	open := sampleBet("0x1")
	voting := sampleBet("0x2")
	voting.State = WaitingFirstVote
	mediating := sampleBet("0x3")
	mediating.State = WaitingMediator
	for _, b := range []*Bet{open, voting, mediating} {
		require.NoError(t, s.Commit(ctx, &Change{Put: b, Create: true}))
	}

	limit := 24 * time.Hour
	at := open.ResultTimeframe.Add(time.Second)
	due, err := s.ListDue(ctx, at, limit, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, open.ID, due[0].ID)
	assert.Equal(t, voting.ID, due[1].ID)

	due, _ = s.ListDue(ctx, open.ResultTimeframe.Add(limit+time.Second), limit, 10)
	assert.Len(t, due, 3)

	live, err := s.ListLive(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 3)
}
