package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbot-dev/arbot/internal/book"
	"github.com/arbot-dev/arbot/internal/config"
	"github.com/arbot-dev/arbot/internal/domain"
	"github.com/arbot-dev/arbot/internal/risk"
	"github.com/arbot-dev/arbot/internal/venue/sim"
)

func newTestEngine(t *testing.T, maxOpenTrades int) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults()
	cfg.Risk.MaxOpenTrades = maxOpenTrades
	deps := &Dependencies{
		Books: book.NewStore(),
		Risk:  risk.New(cfg.Risk, cfg.Scanner.MinProfitThreshold, logger),
	}
	return NewEngine(&cfg, deps, nil, logger)
}

func testOp() domain.Opportunity {
	return domain.Opportunity{
		ID:           "op-1",
		Symbol:       "BTC-USD",
		BuyVenue:     "alpha",
		SellVenue:    "beta",
		BuyPrice:     decimal.NewFromFloat(100),
		SellPrice:    decimal.NewFromFloat(100.5),
		TradeSize:    decimal.NewFromFloat(5),
		NetProfitPct: decimal.NewFromFloat(0.002),
	}
}

func TestRejectedOpportunityDoesNotSuppressSpread(t *testing.T) {
	e := newTestEngine(t, 0) // zero capacity rejects everything
	op := testOp()

	e.handle(context.Background(), op)

	// The spread was never marked in flight, so its first dedup check comes
	// back clean once capacity frees up.
	assert.False(t, e.dedup.IsDuplicate(op))
}

func TestDuplicateSpreadReleasesItsSlot(t *testing.T) {
	e := newTestEngine(t, 1)
	op := testOp()
	require.False(t, e.dedup.IsDuplicate(op)) // marks the spread in flight

	e.handle(context.Background(), op)

	assert.Equal(t, 0, e.deps.Risk.Status().OpenTrades)
}

// closedSource hands out an already-closed snapshot channel, like a feed that
// died right after subscribing.
type closedSource struct{}

func (closedSource) Subscribe(ctx context.Context, symbol string) (<-chan domain.BookSnapshot, error) {
	ch := make(chan domain.BookSnapshot)
	close(ch)
	return ch, nil
}

func TestPumpReportsDeadFeed(t *testing.T) {
	e := newTestEngine(t, 1)

	err := e.pump(context.Background(), closedSource{}, "alpha", "BTC-USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market data stream ended")
}

// stubSource emits a fixed set of snapshots and closes.
type stubSource struct {
	snaps []domain.BookSnapshot
}

func (s stubSource) Subscribe(ctx context.Context, symbol string) (<-chan domain.BookSnapshot, error) {
	ch := make(chan domain.BookSnapshot, len(s.snaps))
	for _, snap := range s.snaps {
		ch <- snap
	}
	close(ch)
	return ch, nil
}

func TestSimFedSourceMirrorsQuotesIntoResponder(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sv := sim.New("alpha", config.SimConfig{}, logger)

	snap := domain.BookSnapshot{
		Venue:     "alpha",
		Symbol:    "BTC-USD",
		Bid:       domain.PriceLevel{Price: decimal.NewFromFloat(99.9), Size: decimal.NewFromFloat(10)},
		Ask:       domain.PriceLevel{Price: decimal.NewFromFloat(100.1), Size: decimal.NewFromFloat(10)},
		Timestamp: time.Now(),
	}
	src := &simFedSource{src: stubSource{snaps: []domain.BookSnapshot{snap}}, sv: sv}

	ch, err := src.Subscribe(context.Background(), "BTC-USD")
	require.NoError(t, err)
	got, ok := <-ch
	require.True(t, ok)
	assert.True(t, got.Ask.Price.Equal(snap.Ask.Price))

	// The responder saw the same quote, so a marketable paper order fills.
	ack, err := sv.PlaceOrder(context.Background(), domain.OrderSpec{
		Venue:      "alpha",
		Symbol:     "BTC-USD",
		Side:       domain.OrderSideBuy,
		Quantity:   decimal.NewFromFloat(1),
		LimitPrice: decimal.NewFromFloat(100.1),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		upd, err := sv.FetchOrderStatus(context.Background(), ack.VenueOrderID, "BTC-USD")
		return err == nil && upd.Status == domain.OrderStatusFilled
	}, time.Second, 10*time.Millisecond)
}
