package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/arbot-dev/arbot/internal/domain"
)

// LedgerStore implements domain.Ledger using PostgreSQL. Inserts are
// committed before Append returns, which satisfies the durability contract.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Append inserts one realized trade outcome.
func (s *LedgerStore) Append(ctx context.Context, entry domain.LedgerEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pnl_entries (recorded_at, correlation_id, symbol, pnl, cumulative)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.Timestamp, entry.CorrelationID, entry.Symbol,
		entry.PnL.String(), entry.Cumulative.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert pnl_entry: %w", err)
	}
	return nil
}

// ReadAll returns every entry in insertion order.
func (s *LedgerStore) ReadAll(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recorded_at, correlation_id, symbol, pnl::text, cumulative::text
		FROM pnl_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: read pnl_entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var pnl, cum string
		if err := rows.Scan(&e.Timestamp, &e.CorrelationID, &e.Symbol, &pnl, &cum); err != nil {
			return nil, fmt.Errorf("postgres: scan pnl_entry: %w", err)
		}
		if e.PnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("postgres: parse pnl %q: %w", pnl, err)
		}
		if e.Cumulative, err = decimal.NewFromString(cum); err != nil {
			return nil, fmt.Errorf("postgres: parse cumulative %q: %w", cum, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate pnl_entries: %w", err)
	}
	return entries, nil
}

var _ domain.Ledger = (*LedgerStore)(nil)
