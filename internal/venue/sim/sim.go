// Package sim provides an in-process venue for paper trading: a synthetic
// top-of-book generator plus a fill responder with the same order interface
// as a live venue.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbot-dev/arbot/internal/config"
	"github.com/arbot-dev/arbot/internal/domain"
)

// fillLatency is how long after placement a marketable order reports filled.
// Non-zero so that order status is observed through polling, same as live.
const fillLatency = 100 * time.Millisecond

// simOrder is the responder-side state of one placed order.
type simOrder struct {
	spec      domain.OrderSpec
	status    domain.OrderStatus
	fillPrice decimal.Decimal
	fillAt    time.Time // zero when the order will not fill
}

// Venue is a simulated exchange. Book prices follow a random walk around the
// configured mid; orders fill when their limit crosses the current book
// (buys at or above the ask, sells at or below the bid) after a short
// latency, otherwise they rest until cancelled.
type Venue struct {
	name   string
	cfg    config.SimConfig
	logger *slog.Logger
	rng    *rand.Rand

	mu     sync.Mutex
	mids   map[string]float64    // symbol -> current mid
	books  map[string]domain.BookSnapshot
	orders map[string]*simOrder // venue order id
}

// New creates a simulated venue.
func New(name string, cfg config.SimConfig, logger *slog.Logger) *Venue {
	return &Venue{
		name:   name,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sim_venue"), slog.String("venue", name)),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		mids:   make(map[string]float64),
		books:  make(map[string]domain.BookSnapshot),
		orders: make(map[string]*simOrder),
	}
}

// Name returns the venue name.
func (v *Venue) Name() string { return v.name }

// Subscribe starts the synthetic book walk for the symbol and streams
// snapshots until the context is cancelled.
func (v *Venue) Subscribe(ctx context.Context, symbol string) (<-chan domain.BookSnapshot, error) {
	interval := time.Duration(v.cfg.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	ch := make(chan domain.BookSnapshot, 16)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			snap := v.step(symbol)
			select {
			case ch <- snap:
			default:
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch, nil
}

// step advances the random walk one tick and returns the new snapshot.
func (v *Venue) step(symbol string) domain.BookSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	mid, ok := v.mids[symbol]
	if !ok {
		mid = v.cfg.Mid
	}
	// Random walk: move up or down by up to step_bps each tick.
	drift := (v.rng.Float64()*2 - 1) * v.cfg.StepBps / 10000
	mid *= 1 + drift
	v.mids[symbol] = mid

	half := mid * v.cfg.SpreadBps / 20000
	size := v.cfg.Depth * (0.5 + v.rng.Float64())

	snap := domain.BookSnapshot{
		Venue:  v.name,
		Symbol: symbol,
		Bid: domain.PriceLevel{
			Price: decimal.NewFromFloat(mid - half).Round(8),
			Size:  decimal.NewFromFloat(size).Round(8),
		},
		Ask: domain.PriceLevel{
			Price: decimal.NewFromFloat(mid + half).Round(8),
			Size:  decimal.NewFromFloat(size).Round(8),
		},
		Timestamp: time.Now().UTC(),
	}
	v.books[symbol] = snap
	return snap
}

// SetBook replaces the responder's book for the symbol with an externally
// sourced snapshot. Paper mode uses this when market data comes from a live
// feed instead of the synthetic walk, so orders price against the same quotes
// the scanner saw.
func (v *Venue) SetBook(snap domain.BookSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.books[snap.Symbol] = snap
}

// PlaceOrder accepts the order and decides its fate against the current book.
// Marketable orders fill in full at the touched side after fillLatency;
// others rest open.
func (v *Venue) PlaceOrder(ctx context.Context, spec domain.OrderSpec) (domain.OrderAck, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := uuid.New().String()
	ord := &simOrder{spec: spec, status: domain.OrderStatusOpen}

	book, ok := v.books[spec.Symbol]
	if ok {
		switch spec.Side {
		case domain.OrderSideBuy:
			if spec.LimitPrice.GreaterThanOrEqual(book.Ask.Price) {
				ord.fillPrice = book.Ask.Price
				ord.fillAt = time.Now().Add(fillLatency)
			}
		case domain.OrderSideSell:
			if spec.LimitPrice.LessThanOrEqual(book.Bid.Price) {
				ord.fillPrice = book.Bid.Price
				ord.fillAt = time.Now().Add(fillLatency)
			}
		}
	}
	v.orders[id] = ord

	v.logger.Debug("order accepted",
		slog.String("venue_order_id", id),
		slog.String("symbol", spec.Symbol),
		slog.String("side", string(spec.Side)),
		slog.Bool("marketable", !ord.fillAt.IsZero()),
	)
	return domain.OrderAck{VenueOrderID: id, Status: domain.OrderStatusOpen}, nil
}

// CancelOrder cancels the order unless it already filled.
func (v *Venue) CancelOrder(ctx context.Context, venueOrderID, symbol string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	ord, ok := v.orders[venueOrderID]
	if !ok {
		return fmt.Errorf("sim: cancel %q: %w", venueOrderID, domain.ErrNotFound)
	}
	v.resolve(ord)
	if ord.status.Terminal() {
		return nil
	}
	ord.status = domain.OrderStatusCancelled
	return nil
}

// FetchOrderStatus reports the order's current state.
func (v *Venue) FetchOrderStatus(ctx context.Context, venueOrderID, symbol string) (domain.OrderUpdate, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ord, ok := v.orders[venueOrderID]
	if !ok {
		return domain.OrderUpdate{}, fmt.Errorf("sim: status %q: %w", venueOrderID, domain.ErrNotFound)
	}
	v.resolve(ord)

	upd := domain.OrderUpdate{
		VenueOrderID: venueOrderID,
		Status:       ord.status,
		Timestamp:    time.Now().UTC(),
	}
	if ord.status == domain.OrderStatusFilled {
		upd.FilledQuantity = ord.spec.Quantity
		upd.AvgFillPrice = ord.fillPrice
	}
	return upd, nil
}

// resolve flips a marketable order to filled once its latency has elapsed.
// Caller holds the lock.
func (v *Venue) resolve(ord *simOrder) {
	if ord.status.Terminal() || ord.fillAt.IsZero() {
		return
	}
	if time.Now().After(ord.fillAt) {
		ord.status = domain.OrderStatusFilled
	}
}

var _ domain.MarketVenue = (*Venue)(nil)
