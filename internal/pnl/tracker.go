// Package pnl aggregates realized profit/loss and persists it to the ledger.
package pnl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/arbot-dev/arbot/internal/domain"
)

// Tracker keeps the running cumulative PnL. The durable ledger write happens
// before the in-memory total is considered authoritative: Record only
// advances the total once Append has returned. On startup the ledger is
// replayed to reconstruct the total.
type Tracker struct {
	mu         sync.RWMutex
	ledger     domain.Ledger
	cumulative decimal.Decimal
	logger     *slog.Logger
}

// NewTracker creates a Tracker and replays the ledger to rebuild the
// cumulative total.
func NewTracker(ctx context.Context, ledger domain.Ledger, logger *slog.Logger) (*Tracker, error) {
	t := &Tracker{
		ledger: ledger,
		logger: logger.With(slog.String("component", "pnl_tracker")),
	}

	entries, err := ledger.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("pnl: replay ledger: %w", err)
	}
	for _, e := range entries {
		t.cumulative = t.cumulative.Add(e.PnL)
	}
	if len(entries) > 0 {
		t.logger.Info("ledger replayed",
			slog.Int("entries", len(entries)),
			slog.String("cumulative", t.cumulative.String()),
		)
	}
	return t, nil
}

// Record appends the outcome to the ledger and, only once that durable write
// succeeds, folds it into the in-memory total.
func (t *Tracker) Record(ctx context.Context, outcome domain.TradeOutcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := domain.LedgerEntry{
		Timestamp:     outcome.Timestamp,
		CorrelationID: outcome.CorrelationID,
		Symbol:        outcome.Symbol,
		PnL:           outcome.PnL,
		Cumulative:    t.cumulative.Add(outcome.PnL),
	}
	if err := t.ledger.Append(ctx, entry); err != nil {
		return fmt.Errorf("pnl: record outcome %s: %w", outcome.CorrelationID, err)
	}
	t.cumulative = entry.Cumulative

	t.logger.Info("trade outcome recorded",
		slog.String("correlation_id", outcome.CorrelationID),
		slog.String("symbol", outcome.Symbol),
		slog.String("status", string(outcome.Status)),
		slog.String("pnl", outcome.PnL.String()),
		slog.String("cumulative", t.cumulative.String()),
	)
	return nil
}

// Cumulative returns the current running total. Safe for concurrent readers.
func (t *Tracker) Cumulative() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cumulative
}
