package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatusSupersedes(t *testing.T) {
	// Forward transitions apply.
	assert.True(t, OrderStatusOpen.Supersedes(OrderStatusPending))
	assert.True(t, OrderStatusPartiallyFilled.Supersedes(OrderStatusOpen))
	assert.True(t, OrderStatusFilled.Supersedes(OrderStatusPartiallyFilled))
	assert.True(t, OrderStatusCancelled.Supersedes(OrderStatusOpen))

	// Equal-rank non-terminal transitions carry fill updates.
	assert.True(t, OrderStatusPartiallyFilled.Supersedes(OrderStatusPartiallyFilled))

	// Regressions are rejected.
	assert.False(t, OrderStatusOpen.Supersedes(OrderStatusPartiallyFilled))
	assert.False(t, OrderStatusPending.Supersedes(OrderStatusOpen))

	// Terminal states are never left.
	assert.False(t, OrderStatusFilled.Supersedes(OrderStatusCancelled))
	assert.False(t, OrderStatusOpen.Supersedes(OrderStatusFailed))
	assert.False(t, OrderStatusFilled.Supersedes(OrderStatusFilled))
}

func TestOrderSideOpposite(t *testing.T) {
	assert.Equal(t, OrderSideSell, OrderSideBuy.Opposite())
	assert.Equal(t, OrderSideBuy, OrderSideSell.Opposite())
}

func TestOrderRecordAcquiredPosition(t *testing.T) {
	rec := OrderRecord{Status: OrderStatusCancelled}
	assert.False(t, rec.AcquiredPosition())

	rec.FilledQuantity = decimal.NewFromFloat(0.5)
	assert.True(t, rec.AcquiredPosition())
	assert.False(t, rec.Filled())
}
