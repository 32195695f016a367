package reconciliation

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore writes reports to reconciliation_reports.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a report store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Save(ctx context.Context, r *Report) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reconciliation_reports (id, custody, expected, overdue_bets, mismatch, duration_ms, completed_at)
		VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4, $5, $6, $7)`,
		r.ID, r.Custody.String(), r.Expected.String(), r.OverdueBets, r.Mismatch,
		r.Duration.Milliseconds(), r.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save reconciliation report: %w", err)
	}
	return nil
}

var _ ReportStore = (*PostgresStore)(nil)
