package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus tracks the order lifecycle. Statuses form a lattice: an order
// never regresses from a terminal status, and duplicate venue events apply
// later-or-equal states only.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusFailed          OrderStatus = "failed"
)

// Terminal reports whether the status is final.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// rank orders statuses for monotonic application of venue events.
func (s OrderStatus) rank() int {
	switch s {
	case OrderStatusPending:
		return 0
	case OrderStatusOpen:
		return 1
	case OrderStatusPartiallyFilled:
		return 2
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed:
		return 3
	}
	return -1
}

// Supersedes reports whether moving from prev to s is a valid forward
// transition. Equal-rank non-terminal transitions are allowed (fill updates
// while partially filled); terminal states are never left.
func (s OrderStatus) Supersedes(prev OrderStatus) bool {
	if prev.Terminal() {
		return false
	}
	return s.rank() >= prev.rank()
}

// OrderSpec describes an order to be placed on a venue. CorrelationID links
// the two legs of one arbitrage attempt (and any unwind order).
type OrderSpec struct {
	Venue         string
	Symbol        string
	Side          OrderSide
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal
	CorrelationID string
	// Compensating marks an unwind order closing a one-sided position. The
	// kill switch's cancel-all must leave these working: cancelling one
	// abandons an unhedged position.
	Compensating bool
}

// Notional returns quantity times limit price in quote currency.
func (s OrderSpec) Notional() decimal.Decimal {
	return s.Quantity.Mul(s.LimitPrice)
}

// OrderAck is the venue's immediate response to a placement request.
type OrderAck struct {
	VenueOrderID string
	Status       OrderStatus
}

// OrderUpdate is a venue-reported lifecycle event for an order.
type OrderUpdate struct {
	VenueOrderID   string
	Status         OrderStatus
	FilledQuantity decimal.Decimal
	AvgFillPrice   decimal.Decimal
	Timestamp      time.Time
}

// OrderRecord is the locally tracked state of one placed order. It is owned
// exclusively by the order manager and mutated only in response to venue
// events or timeouts.
type OrderRecord struct {
	ID             string // client-assigned
	VenueOrderID   string
	Spec           OrderSpec
	Status         OrderStatus
	FilledQuantity decimal.Decimal
	AvgFillPrice   decimal.Decimal
	SubmittedAt    time.Time
	LastUpdated    time.Time
}

// Filled reports whether the order filled completely.
func (r OrderRecord) Filled() bool {
	return r.Status == OrderStatusFilled
}

// AcquiredPosition reports whether any quantity was filled, regardless of the
// final status.
func (r OrderRecord) AcquiredPosition() bool {
	return r.FilledQuantity.IsPositive()
}
