package venue

import (
	"context"

	"github.com/arbot-dev/arbot/internal/breaker"
	"github.com/arbot-dev/arbot/internal/domain"
)

// Gated wraps a MarketVenue so that every call is admitted by the circuit
// breaker and its outcome recorded against it. When the circuit is open,
// calls fail immediately with ErrVenueUnavailable without touching the
// network.
type Gated struct {
	v  domain.MarketVenue
	br *breaker.Breaker
}

// NewGated wraps v with breaker gating.
func NewGated(v domain.MarketVenue, br *breaker.Breaker) *Gated {
	return &Gated{v: v, br: br}
}

// Name returns the underlying venue name.
func (g *Gated) Name() string {
	return g.v.Name()
}

// Subscribe opens the market-data stream. Streams are long-lived, so they are
// not admission-gated; a subscription failure still counts against the
// breaker.
func (g *Gated) Subscribe(ctx context.Context, symbol string) (<-chan domain.BookSnapshot, error) {
	ch, err := g.v.Subscribe(ctx, symbol)
	if err != nil {
		g.br.RecordFailure(g.Name())
		return nil, err
	}
	return ch, nil
}

// PlaceOrder submits an order through the breaker gate.
func (g *Gated) PlaceOrder(ctx context.Context, spec domain.OrderSpec) (domain.OrderAck, error) {
	if err := g.br.Allow(g.Name()); err != nil {
		return domain.OrderAck{}, err
	}
	ack, err := g.v.PlaceOrder(ctx, spec)
	g.record(err)
	return ack, err
}

// CancelOrder cancels through the breaker gate.
func (g *Gated) CancelOrder(ctx context.Context, venueOrderID, symbol string) error {
	if err := g.br.Allow(g.Name()); err != nil {
		return err
	}
	err := g.v.CancelOrder(ctx, venueOrderID, symbol)
	g.record(err)
	return err
}

// FetchOrderStatus polls through the breaker gate.
func (g *Gated) FetchOrderStatus(ctx context.Context, venueOrderID, symbol string) (domain.OrderUpdate, error) {
	if err := g.br.Allow(g.Name()); err != nil {
		return domain.OrderUpdate{}, err
	}
	upd, err := g.v.FetchOrderStatus(ctx, venueOrderID, symbol)
	g.record(err)
	return upd, err
}

func (g *Gated) record(err error) {
	if err != nil {
		g.br.RecordFailure(g.Name())
	} else {
		g.br.RecordSuccess(g.Name())
	}
}

var _ domain.MarketVenue = (*Gated)(nil)
