package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+size entry at the top of an orderbook side.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// BookSnapshot is the top-of-book state for one symbol on one venue.
// Snapshots for the same (venue, symbol) stream carry strictly increasing
// timestamps; older snapshots are discarded by the book store.
type BookSnapshot struct {
	Venue     string          `json:"venue"`
	Symbol    string          `json:"symbol"`
	Bid       PriceLevel      `json:"bid"`
	Ask       PriceLevel      `json:"ask"`
	Timestamp time.Time       `json:"timestamp"`
}

// Age returns how old the snapshot is relative to now.
func (s BookSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// Valid reports whether both sides carry a positive price and size.
func (s BookSnapshot) Valid() bool {
	return s.Bid.Price.IsPositive() && s.Bid.Size.IsPositive() &&
		s.Ask.Price.IsPositive() && s.Ask.Size.IsPositive()
}
