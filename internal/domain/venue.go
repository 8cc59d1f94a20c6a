package domain

import "context"

// BookSource provides a stream of top-of-book snapshots for a symbol.
type BookSource interface {
	// Subscribe returns a channel of book snapshots for the symbol. The
	// channel is closed when the context is cancelled or the source stops.
	Subscribe(ctx context.Context, symbol string) (<-chan BookSnapshot, error)
}

// MarketVenue is the capability surface of one exchange. Connectivity details
// (authentication, wire protocol) live behind this interface; the core treats
// any error from these calls as a circuit-breaker failure signal for the
// venue.
type MarketVenue interface {
	BookSource

	// Name returns the venue identifier used in configuration and books.
	Name() string

	// PlaceOrder submits an order and returns the venue's acknowledgement.
	PlaceOrder(ctx context.Context, spec OrderSpec) (OrderAck, error)

	// CancelOrder requests cancellation of a resting order.
	CancelOrder(ctx context.Context, venueOrderID, symbol string) error

	// FetchOrderStatus returns the venue's current view of an order.
	FetchOrderStatus(ctx context.Context, venueOrderID, symbol string) (OrderUpdate, error)
}
