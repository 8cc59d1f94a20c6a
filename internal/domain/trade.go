package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttemptStatus is the overall state of a two-leg arbitrage attempt.
type AttemptStatus string

const (
	AttemptInProgress   AttemptStatus = "in_progress"
	AttemptBothFilled   AttemptStatus = "both_filled"
	AttemptOneLegFailed AttemptStatus = "one_leg_failed"
	AttemptUnwinding    AttemptStatus = "unwinding"
	AttemptUnwound      AttemptStatus = "unwound"
	AttemptUnwindFailed AttemptStatus = "unwind_failed"
	AttemptAborted      AttemptStatus = "aborted"
)

// Terminal reports whether the attempt has reached a final state.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptBothFilled, AttemptUnwound, AttemptUnwindFailed, AttemptAborted:
		return true
	}
	return false
}

// TradeAttempt tracks one approved opportunity through both legs and, when a
// leg fails, the compensating unwind order.
type TradeAttempt struct {
	CorrelationID string
	Opportunity   Opportunity
	BuyLeg        *OrderRecord
	SellLeg       *OrderRecord
	UnwindLeg     *OrderRecord
	Status        AttemptStatus
	StartedAt     time.Time
	CompletedAt   time.Time
}

// TradeOutcome is the realized financial result of one closed attempt,
// reported to the PnL tracker exactly once.
type TradeOutcome struct {
	CorrelationID string
	Symbol        string
	PnL           decimal.Decimal // quote currency, net of fees and unwind losses
	Fees          decimal.Decimal
	Status        AttemptStatus
	Timestamp     time.Time
}
