package bets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
)

// PostgresStore persists bets in PostgreSQL. Wei amounts are NUMERIC(78,0)
// and cross the driver as decimal strings.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed bet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const betColumns = `id, metadata, first_party, second_party, mediator,
		       first_bet_value::TEXT, second_bet_value::TEXT, mediator_fee,
		       second_party_timeframe, result_timeframe, state,
		       first_party_answer, second_party_answer, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBet(row scanner) (*Bet, error) {
	var (
		b                                Bet
		id, first, second, mediator      string
		firstValue, secondValue          string
		state, firstAnswer, secondAnswer int16
		mediatorFee                      int64
		spt, rt, createdAt, updatedAt    time.Time
	)
	err := row.Scan(&id, &b.Metadata, &first, &second, &mediator,
		&firstValue, &secondValue, &mediatorFee,
		&spt, &rt, &state, &firstAnswer, &secondAnswer, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	b.ID = common.HexToHash(id)
	b.FirstParty = common.HexToAddress(first)
	b.SecondParty = common.HexToAddress(second)
	b.Mediator = common.HexToAddress(mediator)
	if b.FirstBetValue, err = parseNumeric(firstValue); err != nil {
		return nil, err
	}
	if b.SecondBetValue, err = parseNumeric(secondValue); err != nil {
		return nil, err
	}
	b.MediatorFee = uint64(mediatorFee)
	b.SecondPartyTimeframe = spt.UTC()
	b.ResultTimeframe = rt.UTC()
	b.State = State(state)
	b.FirstPartyAnswer = Answer(firstAnswer)
	b.SecondPartyAnswer = Answer(secondAnswer)
	b.CreatedAt = createdAt
	b.UpdatedAt = updatedAt
	return &b, nil
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric %q", s)
	}
	return v, nil
}

func (p *PostgresStore) Get(ctx context.Context, id common.Hash) (*Bet, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id.Hex())
	b, err := scanBet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBetNotFound
	}
	return b, err
}

func (p *PostgresStore) ActiveBets(ctx context.Context, role Role, addr common.Address) ([]common.Hash, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT bet_id FROM bet_active_index
		WHERE role = $1 AND address = $2
		ORDER BY position`, int16(role), addr.Hex())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := []common.Hash{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, common.HexToHash(id))
	}
	return result, rows.Err()
}

// ListDue mirrors Bet.Deadline in SQL.
func (p *PostgresStore) ListDue(ctx context.Context, now time.Time, mediationTimeLimit time.Duration, limit int) ([]*Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE (state = 0 AND second_party_timeframe < $1)
		   OR (state IN (1, 2) AND result_timeframe < $1)
		   OR (state = 3 AND result_timeframe + make_interval(secs => $2) < $1)
		ORDER BY CASE state
			WHEN 0 THEN second_party_timeframe
			WHEN 3 THEN result_timeframe + make_interval(secs => $2)
			ELSE result_timeframe
		END
		LIMIT $3`, now, mediationTimeLimit.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	return collectBets(rows)
}

func (p *PostgresStore) ListLive(ctx context.Context) ([]*Bet, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+betColumns+` FROM bets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	return collectBets(rows)
}

func collectBets(rows *sql.Rows) ([]*Bet, error) {
	defer func() { _ = rows.Close() }()

	var result []*Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (p *PostgresStore) LoadParams(ctx context.Context) (*Params, error) {
	var (
		params            Params
		owner, mediator   string
		minBet, collected string
		fee, mediatorFee  int64
		limitSeconds      int64
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT owner, fee_percentage, min_bet_value::TEXT, default_mediator_fee,
		       default_mediator, mediation_time_limit_seconds, paused, collected_fee::TEXT
		FROM bet_params WHERE id = 1`).
		Scan(&owner, &fee, &minBet, &mediatorFee, &mediator, &limitSeconds, &params.Paused, &collected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrParamsNotFound
	}
	if err != nil {
		return nil, err
	}

	params.Owner = common.HexToAddress(owner)
	params.DefaultMediator = common.HexToAddress(mediator)
	params.FeePercentage = uint64(fee)
	params.DefaultMediatorFee = uint64(mediatorFee)
	params.MediationTimeLimit = time.Duration(limitSeconds) * time.Second
	if params.MinBetValue, err = parseNumeric(minBet); err != nil {
		return nil, err
	}
	if params.CollectedFee, err = parseNumeric(collected); err != nil {
		return nil, err
	}
	return &params, nil
}

// Commit applies c in one transaction.
func (p *PostgresStore) Commit(ctx context.Context, c *Change) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if c.Delete != nil {
		res, err := tx.ExecContext(ctx, `DELETE FROM bets WHERE id = $1`, c.Delete.Hex())
		if err != nil {
			return fmt.Errorf("failed to delete bet: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrBetNotFound
		}
	}
	if c.Put != nil {
		if c.Create {
			err = insertBet(ctx, tx, c.Put)
		} else {
			err = updateBet(ctx, tx, c.Put)
		}
		if err != nil {
			return err
		}
	}
	for _, op := range c.Index {
		if op.Remove {
			err = removeIndex(ctx, tx, op)
		} else {
			err = addIndex(ctx, tx, op)
		}
		if err != nil {
			return err
		}
	}
	if c.Params != nil {
		if err := upsertParams(ctx, tx, c.Params); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// insertBet relies on the primary key to reject a second bet with the same
// terms, even when another process passed the same existence check.
func insertBet(ctx context.Context, tx *sql.Tx, b *Bet) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bets (
			id, metadata, first_party, second_party, mediator,
			first_bet_value, second_bet_value, mediator_fee,
			second_party_timeframe, result_timeframe, state,
			first_party_answer, second_party_answer, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11, $12, $13, $14, $15)`,
		b.ID.Hex(), b.Metadata, b.FirstParty.Hex(), b.SecondParty.Hex(), b.Mediator.Hex(),
		b.FirstBetValue.String(), b.SecondBetValue.String(), int64(b.MediatorFee),
		b.SecondPartyTimeframe, b.ResultTimeframe, int16(b.State),
		int16(b.FirstPartyAnswer), int16(b.SecondPartyAnswer), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrBetExists
		}
		return fmt.Errorf("failed to save bet: %w", err)
	}
	return nil
}

// updateBet writes the mutable columns of a live bet.
func updateBet(ctx context.Context, tx *sql.Tx, b *Bet) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bets SET
			second_party        = $2,
			state               = $3,
			first_party_answer  = $4,
			second_party_answer = $5,
			updated_at          = $6
		WHERE id = $1`,
		b.ID.Hex(), b.SecondParty.Hex(), int16(b.State),
		int16(b.FirstPartyAnswer), int16(b.SecondPartyAnswer), b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save bet: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrBetNotFound
	}
	return nil
}

func addIndex(ctx context.Context, tx *sql.Tx, op IndexOp) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bet_active_index (role, address, position, bet_id)
		SELECT $1::SMALLINT, $2::VARCHAR, COALESCE(MAX(position) + 1, 0), $3::VARCHAR
		FROM bet_active_index WHERE role = $1 AND address = $2`,
		int16(op.Role), op.Addr.Hex(), op.BetID.Hex())
	if err != nil {
		return fmt.Errorf("failed to add index entry: %w", err)
	}
	return nil
}

// removeIndex deletes the entry and moves the last one into its position,
// keeping positions dense.
func removeIndex(ctx context.Context, tx *sql.Tx, op IndexOp) error {
	role, addr := int16(op.Role), op.Addr.Hex()

	var pos, last int64
	err := tx.QueryRowContext(ctx, `
		SELECT position FROM bet_active_index
		WHERE role = $1 AND address = $2 AND bet_id = $3
		ORDER BY position LIMIT 1`, role, addr, op.BetID.Hex()).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return errIndexEntryMissing
	}
	if err != nil {
		return err
	}
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(position) FROM bet_active_index
		WHERE role = $1 AND address = $2`, role, addr).Scan(&last); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM bet_active_index
		WHERE role = $1 AND address = $2 AND position = $3`, role, addr, pos); err != nil {
		return fmt.Errorf("failed to remove index entry: %w", err)
	}
	if pos == last {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE bet_active_index SET position = $3
		WHERE role = $1 AND address = $2 AND position = $4`, role, addr, pos, last); err != nil {
		return fmt.Errorf("failed to compact index: %w", err)
	}
	return nil
}

func upsertParams(ctx context.Context, tx *sql.Tx, params *Params) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bet_params (
			id, owner, fee_percentage, min_bet_value, default_mediator_fee,
			default_mediator, mediation_time_limit_seconds, paused, collected_fee, updated_at
		) VALUES (1, $1, $2, $3::NUMERIC, $4, $5, $6, $7, $8::NUMERIC, NOW())
		ON CONFLICT (id) DO UPDATE SET
			owner                        = EXCLUDED.owner,
			fee_percentage               = EXCLUDED.fee_percentage,
			min_bet_value                = EXCLUDED.min_bet_value,
			default_mediator_fee         = EXCLUDED.default_mediator_fee,
			default_mediator             = EXCLUDED.default_mediator,
			mediation_time_limit_seconds = EXCLUDED.mediation_time_limit_seconds,
			paused                       = EXCLUDED.paused,
			collected_fee                = EXCLUDED.collected_fee,
			updated_at                   = NOW()`,
		params.Owner.Hex(), int64(params.FeePercentage), params.MinBetValue.String(),
		int64(params.DefaultMediatorFee), params.DefaultMediator.Hex(),
		int64(params.MediationTimeLimit/time.Second), params.Paused, params.CollectedFee.String())
	if err != nil {
		return fmt.Errorf("failed to save params: %w", err)
	}
	return nil
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
