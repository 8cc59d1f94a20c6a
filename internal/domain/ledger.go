package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one realized trade outcome in the append-only PnL ledger.
// Cumulative is the running total after applying PnL, so the ledger can be
// audited line by line and replayed from empty on restart.
type LedgerEntry struct {
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Symbol        string          `json:"symbol"`
	PnL           decimal.Decimal `json:"pnl"`
	Cumulative    decimal.Decimal `json:"cumulative"`
}

// Ledger is the durable append/read store for realized PnL. Append must be
// durable before it returns: a crash after Append must not lose the entry.
type Ledger interface {
	Append(ctx context.Context, entry LedgerEntry) error
	ReadAll(ctx context.Context) ([]LedgerEntry, error)
}
