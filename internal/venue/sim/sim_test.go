package sim

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbot-dev/arbot/internal/config"
	"github.com/arbot-dev/arbot/internal/domain"
)

func newTestVenue(t *testing.T) *Venue {
	t.Helper()
	return New("alpha", config.SimConfig{
		Mid:        100,
		SpreadBps:  5,
		StepBps:    10,
		IntervalMs: 10,
		Depth:      25,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubscribeStreamsValidBooks(t *testing.T) {
	v := newTestVenue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := v.Subscribe(ctx, "BTC-USD")
	require.NoError(t, err)

	snap, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, "alpha", snap.Venue)
	assert.Equal(t, "BTC-USD", snap.Symbol)
	assert.True(t, snap.Valid())
	assert.True(t, snap.Ask.Price.GreaterThan(snap.Bid.Price))
}

func TestMarketableBuyFillsAfterLatency(t *testing.T) {
	v := newTestVenue(t)
	snap := v.step("BTC-USD")

	ack, err := v.PlaceOrder(context.Background(), domain.OrderSpec{
		Venue:      "alpha",
		Symbol:     "BTC-USD",
		Side:       domain.OrderSideBuy,
		Quantity:   decimal.NewFromFloat(5),
		LimitPrice: snap.Ask.Price,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusOpen, ack.Status)

	// Not yet past the fill latency.
	upd, err := v.FetchOrderStatus(context.Background(), ack.VenueOrderID, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, upd.Status)

	time.Sleep(fillLatency + 20*time.Millisecond)

	upd, err = v.FetchOrderStatus(context.Background(), ack.VenueOrderID, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, upd.Status)
	assert.True(t, upd.FilledQuantity.Equal(decimal.NewFromFloat(5)))
	assert.True(t, upd.AvgFillPrice.Equal(snap.Ask.Price))
}

func TestNonMarketableOrderRestsUntilCancelled(t *testing.T) {
	v := newTestVenue(t)
	snap := v.step("BTC-USD")

	// A buy priced below the bid never crosses.
	ack, err := v.PlaceOrder(context.Background(), domain.OrderSpec{
		Venue:      "alpha",
		Symbol:     "BTC-USD",
		Side:       domain.OrderSideBuy,
		Quantity:   decimal.NewFromFloat(5),
		LimitPrice: snap.Bid.Price.Sub(decimal.NewFromFloat(1)),
	})
	require.NoError(t, err)

	time.Sleep(fillLatency + 20*time.Millisecond)

	upd, err := v.FetchOrderStatus(context.Background(), ack.VenueOrderID, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, upd.Status)

	require.NoError(t, v.CancelOrder(context.Background(), ack.VenueOrderID, "BTC-USD"))
	upd, err = v.FetchOrderStatus(context.Background(), ack.VenueOrderID, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, upd.Status)
}

func TestMarketableSellFillsAtBid(t *testing.T) {
	v := newTestVenue(t)
	snap := v.step("BTC-USD")

	ack, err := v.PlaceOrder(context.Background(), domain.OrderSpec{
		Venue:      "alpha",
		Symbol:     "BTC-USD",
		Side:       domain.OrderSideSell,
		Quantity:   decimal.NewFromFloat(2),
		LimitPrice: snap.Bid.Price,
	})
	require.NoError(t, err)

	time.Sleep(fillLatency + 20*time.Millisecond)

	upd, err := v.FetchOrderStatus(context.Background(), ack.VenueOrderID, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, upd.Status)
	assert.True(t, upd.AvgFillPrice.Equal(snap.Bid.Price))
}

func TestSetBookPricesOrdersAgainstExternalQuotes(t *testing.T) {
	v := newTestVenue(t)

	// No synthetic walk has run for this symbol; the responder's book comes
	// entirely from an external feed.
	v.SetBook(domain.BookSnapshot{
		Venue:     "alpha",
		Symbol:    "ETH-USD",
		Bid:       domain.PriceLevel{Price: decimal.NewFromFloat(199.9), Size: decimal.NewFromFloat(10)},
		Ask:       domain.PriceLevel{Price: decimal.NewFromFloat(200.1), Size: decimal.NewFromFloat(10)},
		Timestamp: time.Now(),
	})

	ack, err := v.PlaceOrder(context.Background(), domain.OrderSpec{
		Venue:      "alpha",
		Symbol:     "ETH-USD",
		Side:       domain.OrderSideBuy,
		Quantity:   decimal.NewFromFloat(1),
		LimitPrice: decimal.NewFromFloat(200.1),
	})
	require.NoError(t, err)

	time.Sleep(fillLatency + 20*time.Millisecond)

	upd, err := v.FetchOrderStatus(context.Background(), ack.VenueOrderID, "ETH-USD")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, upd.Status)
	assert.True(t, upd.AvgFillPrice.Equal(decimal.NewFromFloat(200.1)))
}

func TestUnknownOrderReturnsNotFound(t *testing.T) {
	v := newTestVenue(t)

	_, err := v.FetchOrderStatus(context.Background(), "missing", "BTC-USD")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, v.CancelOrder(context.Background(), "missing", "BTC-USD"), domain.ErrNotFound)
}
