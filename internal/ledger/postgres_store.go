package ledger

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

// PostgresStore implements Store with PostgreSQL. Amounts are NUMERIC(78,0)
// so any uint256 fits; they cross the driver as decimal strings.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric %q", s)
	}
	return v, nil
}

// GetBalance retrieves an address's balance
func (p *PostgresStore) GetBalance(ctx context.Context, addr common.Address) (*Balance, error) {
	var available, totalIn, totalOut string
	var updatedAt time.Time

	err := p.db.QueryRowContext(ctx, `
		SELECT available::TEXT, total_in::TEXT, total_out::TEXT, updated_at
		FROM ledger_balances WHERE address = $1
	`, addr.Hex()).Scan(&available, &totalIn, &totalOut, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return zeroBalance(addr), nil
	}
	if err != nil {
		return nil, err
	}

	bal := &Balance{Addr: addr, UpdatedAt: updatedAt}
	if bal.Available, err = parseNumeric(available); err != nil {
		return nil, err
	}
	if bal.TotalIn, err = parseNumeric(totalIn); err != nil {
		return nil, err
	}
	if bal.TotalOut, err = parseNumeric(totalOut); err != nil {
		return nil, err
	}
	return bal, nil
}

func (p *PostgresStore) Custody(ctx context.Context) (*big.Int, error) {
	var balance string
	err := p.db.QueryRowContext(ctx, `SELECT balance::TEXT FROM ledger_custody WHERE id = 1`).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return parseNumeric(balance)
}

// Apply moves funds and records the entry in one transaction. Debits are
// conditional updates, so a concurrent debit can never overdraw.
func (p *PostgresStore) Apply(ctx context.Context, e *Entry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	amount := e.Amount.String()
	addr := e.Addr.Hex()

	switch e.Type {
	case EntryDeposit:
		err = credit(ctx, tx, addr, amount, true)
	case EntryWithdrawal:
		err = debit(ctx, tx, addr, amount, true)
	case EntryLock:
		if err = debit(ctx, tx, addr, amount, false); err == nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE ledger_custody SET balance = balance + $1::NUMERIC, updated_at = NOW()
				WHERE id = 1`, amount)
		}
	case EntryPayout:
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE ledger_custody SET balance = balance - $1::NUMERIC, updated_at = NOW()
			WHERE id = 1 AND balance >= $1::NUMERIC`, amount)
		if err == nil {
			err = requireRow(res, ErrInsufficientCustody)
		}
		if err == nil {
			err = credit(ctx, tx, addr, amount, false)
		}
	default:
		return ErrInvalidAmount
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, address, type, amount, tx_hash, reference, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)`,
		e.ID, addr, string(e.Type), amount, nullString(e.TxHash), nullString(e.Reference), e.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && e.Type == EntryDeposit {
			return ErrDuplicateDeposit
		}
		return fmt.Errorf("failed to record entry: %w", err)
	}

	return tx.Commit()
}

func credit(ctx context.Context, tx *sql.Tx, addr, amount string, countIn bool) error {
	totalIn := "0"
	if countIn {
		totalIn = amount
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_balances (address, available, total_in, updated_at)
		VALUES ($1, $2::NUMERIC, $3::NUMERIC, NOW())
		ON CONFLICT (address) DO UPDATE SET
			available  = ledger_balances.available + $2::NUMERIC,
			total_in   = ledger_balances.total_in  + $3::NUMERIC,
			updated_at = NOW()`, addr, amount, totalIn)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func debit(ctx context.Context, tx *sql.Tx, addr, amount string, countOut bool) error {
	totalOut := "0"
	if countOut {
		totalOut = amount
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_balances SET
			available  = available - $2::NUMERIC,
			total_out  = total_out + $3::NUMERIC,
			updated_at = NOW()
		WHERE address = $1 AND available >= $2::NUMERIC`, addr, amount, totalOut)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return requireRow(res, ErrInsufficientBalance)
}

func requireRow(res sql.Result, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func (p *PostgresStore) GetHistory(ctx context.Context, addr common.Address, limit int) ([]*Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, address, type, amount::TEXT, tx_hash, reference, created_at
		FROM ledger_entries
		WHERE address = $1
		ORDER BY created_at DESC
		LIMIT $2`, addr.Hex(), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		var (
			e         Entry
			address   string
			typ       string
			amount    string
			txHash    sql.NullString
			reference sql.NullString
		)
		if err := rows.Scan(&e.ID, &address, &typ, &amount, &txHash, &reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = parseNumeric(amount); err != nil {
			return nil, err
		}
		e.Addr = common.HexToAddress(address)
		e.Type = EntryType(typ)
		e.TxHash = txHash.String
		e.Reference = reference.String
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (p *PostgresStore) HasDeposit(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE type = 'deposit' AND tx_hash = $1)
	`, txHash).Scan(&exists)
	return exists, err
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
