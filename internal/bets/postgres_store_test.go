package bets

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

var betRowColumns = []string{
	"id", "metadata", "first_party", "second_party", "mediator",
	"first_bet_value", "second_bet_value", "mediator_fee",
	"second_party_timeframe", "result_timeframe", "state",
	"first_party_answer", "second_party_answer", "created_at", "updated_at",
}

func betRow(b *Bet) []driver.Value {
	return []driver.Value{
		b.ID.Hex(), b.Metadata, b.FirstParty.Hex(), b.SecondParty.Hex(), b.Mediator.Hex(),
		b.FirstBetValue.String(), b.SecondBetValue.String(), int64(b.MediatorFee),
		b.SecondPartyTimeframe, b.ResultTimeframe, int64(b.State),
		int64(b.FirstPartyAnswer), int64(b.SecondPartyAnswer), b.CreatedAt, b.UpdatedAt,
	}
}

func TestPostgresGet(t *testing.T) {
	store, mock := newMockStore(t)
	b := sampleBet("0x1")
	b.State = WaitingSecondVote
	b.SecondParty = bob
	b.FirstPartyAnswer = Tie

	mock.ExpectQuery(regexp.QuoteMeta("FROM bets WHERE id = $1")).
		WithArgs(b.ID.Hex()).
		WillReturnRows(sqlmock.NewRows(betRowColumns).AddRow(betRow(b)...))

	got, err := store.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, bob, got.SecondParty)
	assert.Equal(t, WaitingSecondVote, got.State)
	assert.Equal(t, Tie, got.FirstPartyAnswer)
	assert.Equal(t, b.FirstBetValue.String(), got.FirstBetValue.String())
	assert.True(t, b.ResultTimeframe.Equal(got.ResultTimeframe))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bets WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(betRowColumns))

	_, err := store.Get(context.Background(), common.HexToHash("0x1"))
	assert.ErrorIs(t, err, ErrBetNotFound)
}

func TestPostgresActiveBets(t *testing.T) {
	store, mock := newMockStore(t)
	a, b := common.HexToHash("0xa"), common.HexToHash("0xb")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT bet_id FROM bet_active_index")).
		WithArgs(int16(RoleMediator), mediator.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"bet_id"}).AddRow(a.Hex()).AddRow(b.Hex()))

	ids, err := store.ActiveBets(context.Background(), RoleMediator, mediator)
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{a, b}, ids)
}

func TestPostgresCommit_CreateBet(t *testing.T) {
	store, mock := newMockStore(t)
	b := sampleBet("0x1")
	p := &Params{Owner: owner, MinBetValue: milli(100), DefaultMediator: mediator, MediationTimeLimit: DefaultMediationTimeLimit, CollectedFee: milli(60)}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bets")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bet_active_index")).
		WithArgs(int16(RoleFirstParty), alice.Hex(), b.ID.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bet_params")).
		WithArgs(owner.Hex(), int64(0), "100000000000000000", int64(0), mediator.Hex(),
			int64(DefaultMediationTimeLimit/time.Second), false, "60000000000000000").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Commit(context.Background(), &Change{
		Put:    b,
		Create: true,
		Index:  []IndexOp{{Role: RoleFirstParty, Addr: alice, BetID: b.ID}},
		Params: p,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommit_CreateDuplicateRejected(t *testing.T) {
	store, mock := newMockStore(t)
	b := sampleBet("0x1")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO bets \(`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.Commit(context.Background(), &Change{
		Put:    b,
		Create: true,
		Index:  []IndexOp{{Role: RoleFirstParty, Addr: alice, BetID: b.ID}},
	})
	assert.ErrorIs(t, err, ErrBetExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommit_UpdateBet(t *testing.T) {
	store, mock := newMockStore(t)
	b := sampleBet("0x1")
	b.State = WaitingFirstVote
	b.SecondParty = bob

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bets SET")).
		WithArgs(b.ID.Hex(), bob.Hex(), int16(WaitingFirstVote), int16(Unset), int16(Unset), b.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Commit(context.Background(), &Change{Put: b}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommit_UpdateMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bets SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, store.Commit(context.Background(), &Change{Put: sampleBet("0x1")}), ErrBetNotFound)
}

func TestPostgresCommit_CompleteCompactsIndex(t *testing.T) {
	store, mock := newMockStore(t)
	id := common.HexToHash("0x1")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bets WHERE id = $1")).
		WithArgs(id.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT position FROM bet_active_index")).
		WithArgs(int16(RoleFirstParty), alice.Hex(), id.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(int64(0)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(position) FROM bet_active_index")).
		WithArgs(int16(RoleFirstParty), alice.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(2)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bet_active_index")).
		WithArgs(int16(RoleFirstParty), alice.Hex(), int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bet_active_index SET position = $3")).
		WithArgs(int16(RoleFirstParty), alice.Hex(), int64(0), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Commit(context.Background(), &Change{
		Delete: &id,
		Index:  []IndexOp{{Role: RoleFirstParty, Addr: alice, BetID: id, Remove: true}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommit_MissingIndexRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	id := common.HexToHash("0x1")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT position FROM bet_active_index")).
		WillReturnRows(sqlmock.NewRows([]string{"position"}))
	mock.ExpectRollback()

	err := store.Commit(context.Background(), &Change{
		Index: []IndexOp{{Role: RoleSecondParty, Addr: bob, BetID: id, Remove: true}},
	})
	assert.ErrorIs(t, err, errIndexEntryMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommit_DeleteMissing(t *testing.T) {
	store, mock := newMockStore(t)
	id := common.HexToHash("0x1")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bets")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, store.Commit(context.Background(), &Change{Delete: &id}), ErrBetNotFound)
}

func TestPostgresLoadParams(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM bet_params WHERE id = 1")).
		WillReturnRows(sqlmock.NewRows([]string{
			"owner", "fee_percentage", "min_bet_value", "default_mediator_fee",
			"default_mediator", "mediation_time_limit_seconds", "paused", "collected_fee",
		}).AddRow(owner.Hex(), int64(300), "100000000000000000", int64(250), mediator.Hex(), int64(3600), true, "42"))

	p, err := store.LoadParams(context.Background())
	require.NoError(t, err)
	assert.Equal(t, owner, p.Owner)
	assert.Equal(t, uint64(300), p.FeePercentage)
	assert.Equal(t, uint64(250), p.DefaultMediatorFee)
	assert.Equal(t, time.Hour, p.MediationTimeLimit)
	assert.True(t, p.Paused)
	assert.Equal(t, "42", p.CollectedFee.String())
}

func TestPostgresLoadParams_Missing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bet_params")).
		WillReturnRows(sqlmock.NewRows([]string{"owner"}))

	_, err := store.LoadParams(context.Background())
	assert.ErrorIs(t, err, ErrParamsNotFound)
}

func TestPostgresListDue(t *testing.T) {
	store, mock := newMockStore(t)
	b := sampleBet("0x1")
	now := b.SecondPartyTimeframe.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("make_interval(secs => $2)")).
		WithArgs(now, float64(3600), 5).
		WillReturnRows(sqlmock.NewRows(betRowColumns).AddRow(betRow(b)...))

	due, err := store.ListDue(context.Background(), now, time.Hour, 5)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, b.ID, due[0].ID)
}
