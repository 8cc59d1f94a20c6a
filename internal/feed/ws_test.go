package feed

import (
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeed() *WSFeed {
	return NewWSFeed("alpha", "wss://md.example/ws", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseBookMessage(t *testing.T) {
	f := newTestFeed()

	snap, ok := f.parse([]byte(`{
		"type": "book",
		"symbol": "BTC-USD",
		"bid_price": "99.95",
		"bid_size": "12",
		"ask_price": "100.05",
		"ask_size": "8",
		"ts": 1748779200000
	}`))
	require.True(t, ok)

	assert.Equal(t, "alpha", snap.Venue)
	assert.Equal(t, "BTC-USD", snap.Symbol)
	assert.True(t, snap.Bid.Price.Equal(decimal.NewFromFloat(99.95)))
	assert.True(t, snap.Ask.Size.Equal(decimal.NewFromFloat(8)))
	assert.Equal(t, int64(1748779200000), snap.Timestamp.UnixMilli())
	assert.True(t, snap.Valid())
}

func TestParseDropsNonBookMessages(t *testing.T) {
	f := newTestFeed()

	_, ok := f.parse([]byte(`{"type":"heartbeat"}`))
	assert.False(t, ok)

	_, ok = f.parse([]byte(`not json`))
	assert.False(t, ok)
}

func TestParseDropsMalformedPrices(t *testing.T) {
	f := newTestFeed()

	_, ok := f.parse([]byte(`{
		"type": "book",
		"symbol": "BTC-USD",
		"bid_price": "abc",
		"bid_size": "12",
		"ask_price": "100.05",
		"ask_size": "8"
	}`))
	assert.False(t, ok)
}

func TestParseMissingTimestampDefaultsToNow(t *testing.T) {
	f := newTestFeed()

	snap, ok := f.parse([]byte(`{
		"type": "book",
		"symbol": "BTC-USD",
		"bid_price": "99.95",
		"bid_size": "12",
		"ask_price": "100.05",
		"ask_size": "8"
	}`))
	require.True(t, ok)
	assert.False(t, snap.Timestamp.IsZero())
}
