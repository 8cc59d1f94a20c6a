package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a detected cross-venue price discrepancy: buy on BuyVenue at
// BuyPrice, sell on SellVenue at SellPrice. It is immutable once constructed
// and derived purely from the two book snapshots current at evaluation time.
type Opportunity struct {
	ID           string
	Symbol       string
	BuyVenue     string
	SellVenue    string
	BuyPrice     decimal.Decimal
	SellPrice    decimal.Decimal
	TradeSize    decimal.Decimal // base units, min of both top-of-book sizes capped by max trade size
	EstFees      decimal.Decimal // quote currency, both legs
	EstSlippage  decimal.Decimal // quote currency, conservative buffer against notional
	NetProfitPct decimal.Decimal // fraction of buy notional, after fees and slippage
	DetectedAt   time.Time
}

// Notional returns the buy-side notional (quote currency) of the opportunity.
func (o Opportunity) Notional() decimal.Decimal {
	return o.BuyPrice.Mul(o.TradeSize)
}

// ExpectedPnL returns the expected profit in quote currency.
func (o Opportunity) ExpectedPnL() decimal.Decimal {
	return o.NetProfitPct.Mul(o.Notional())
}
