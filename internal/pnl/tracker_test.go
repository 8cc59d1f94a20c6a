package pnl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbot-dev/arbot/internal/domain"
)

// memLedger is an in-memory Ledger whose Append can be made to fail.
type memLedger struct {
	entries []domain.LedgerEntry
	fail    bool
}

func (m *memLedger) Append(_ context.Context, e domain.LedgerEntry) error {
	if m.fail {
		return errors.New("disk full")
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memLedger) ReadAll(_ context.Context) ([]domain.LedgerEntry, error) {
	return m.entries, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func outcome(id string, pnl float64) domain.TradeOutcome {
	return domain.TradeOutcome{
		CorrelationID: id,
		Symbol:        "BTC-USD",
		PnL:           decimal.NewFromFloat(pnl),
		Status:        domain.AttemptBothFilled,
		Timestamp:     time.Now().UTC(),
	}
}

func TestTrackerRecordAccumulates(t *testing.T) {
	led := &memLedger{}
	tr, err := NewTracker(context.Background(), led, discardLogger())
	require.NoError(t, err)

	require.NoError(t, tr.Record(context.Background(), outcome("c1", 1.5)))
	require.NoError(t, tr.Record(context.Background(), outcome("c2", -0.5)))

	assert.True(t, tr.Cumulative().Equal(decimal.NewFromFloat(1.0)))
	require.Len(t, led.entries, 2)
	assert.True(t, led.entries[1].Cumulative.Equal(decimal.NewFromFloat(1.0)))
}

func TestTrackerReplaysLedgerOnStartup(t *testing.T) {
	led := &memLedger{entries: []domain.LedgerEntry{
		{CorrelationID: "c1", PnL: decimal.NewFromFloat(2)},
		{CorrelationID: "c2", PnL: decimal.NewFromFloat(-3)},
	}}

	tr, err := NewTracker(context.Background(), led, discardLogger())
	require.NoError(t, err)
	assert.True(t, tr.Cumulative().Equal(decimal.NewFromFloat(-1)))
}

func TestTrackerDurableWriteBeforeTotalAdvances(t *testing.T) {
	led := &memLedger{}
	tr, err := NewTracker(context.Background(), led, discardLogger())
	require.NoError(t, err)

	require.NoError(t, tr.Record(context.Background(), outcome("c1", 1)))

	led.fail = true
	err = tr.Record(context.Background(), outcome("c2", 5))
	require.Error(t, err)

	// The failed write must not have advanced the in-memory total.
	assert.True(t, tr.Cumulative().Equal(decimal.NewFromFloat(1)))

	led.fail = false
	require.NoError(t, tr.Record(context.Background(), outcome("c3", 2)))
	assert.True(t, tr.Cumulative().Equal(decimal.NewFromFloat(3)))
}
