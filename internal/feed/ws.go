// Package feed supplies market data from external venues over WebSocket.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/arbot-dev/arbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// subscribeCommand is the subscription request sent after connecting.
type subscribeCommand struct {
	Op     string `json:"op"`
	Symbol string `json:"symbol"`
}

// bookMessage is the wire format for a top-of-book update.
type bookMessage struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bid_price"`
	BidSize  string `json:"bid_size"`
	AskPrice string `json:"ask_price"`
	AskSize  string `json:"ask_size"`
	TsMs     int64  `json:"ts"`
}

// WSFeed streams top-of-book snapshots for one venue over WebSocket. Each
// subscription maintains its own connection and reconnects with exponential
// backoff; the snapshot channel stays open across reconnects and closes only
// when the context is cancelled.
type WSFeed struct {
	venue  string
	wsURL  string
	logger *slog.Logger
}

// NewWSFeed creates a feed for the named venue at the given endpoint.
func NewWSFeed(venueName, wsURL string, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		venue:  venueName,
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "ws_feed"), slog.String("venue", venueName)),
	}
}

// Subscribe starts streaming snapshots for the symbol until ctx is cancelled.
func (f *WSFeed) Subscribe(ctx context.Context, symbol string) (<-chan domain.BookSnapshot, error) {
	ch := make(chan domain.BookSnapshot, 16)
	go func() {
		defer close(ch)
		delay := reconnectDelay
		for {
			err := f.runConnection(ctx, symbol, ch)
			if ctx.Err() != nil {
				return
			}
			f.logger.Warn("ws disconnected, reconnecting",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		}
	}()
	return ch, nil
}

// runConnection dials, subscribes, and pumps messages until the connection
// drops or the context is cancelled.
func (f *WSFeed) runConnection(ctx context.Context, symbol string, out chan<- domain.BookSnapshot) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCommand{Op: "subscribe", Symbol: symbol}); err != nil {
		return fmt.Errorf("feed: subscribe %s: %w", symbol, err)
	}
	f.logger.Info("ws subscribed", slog.String("symbol", symbol))

	// Close the connection when the context ends so ReadMessage unblocks,
	// and keep the ping loop going for the connection's lifetime.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-connDone:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		snap, ok := f.parse(raw)
		if !ok {
			continue
		}
		select {
		case out <- snap:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parse decodes a book message into a snapshot. Non-book or malformed
// messages are dropped.
func (f *WSFeed) parse(raw []byte) (domain.BookSnapshot, bool) {
	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "book" {
		return domain.BookSnapshot{}, false
	}

	bidPrice, err1 := decimal.NewFromString(msg.BidPrice)
	bidSize, err2 := decimal.NewFromString(msg.BidSize)
	askPrice, err3 := decimal.NewFromString(msg.AskPrice)
	askSize, err4 := decimal.NewFromString(msg.AskSize)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		f.logger.Debug("malformed book message dropped", slog.String("symbol", msg.Symbol))
		return domain.BookSnapshot{}, false
	}

	ts := time.UnixMilli(msg.TsMs).UTC()
	if msg.TsMs == 0 {
		ts = time.Now().UTC()
	}

	return domain.BookSnapshot{
		Venue:     f.venue,
		Symbol:    msg.Symbol,
		Bid:       domain.PriceLevel{Price: bidPrice, Size: bidSize},
		Ask:       domain.PriceLevel{Price: askPrice, Size: askSize},
		Timestamp: ts,
	}, true
}

var _ domain.BookSource = (*WSFeed)(nil)
