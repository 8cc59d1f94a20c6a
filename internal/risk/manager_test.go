package risk

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbot-dev/arbot/internal/config"
	"github.com/arbot-dev/arbot/internal/domain"
)

func newTestManager(t *testing.T, maxOpen int) *Manager {
	t.Helper()
	return New(config.RiskConfig{
		MaxOpenTrades:        maxOpen,
		MaxTradeSize:         1000,
		EmergencyStopLossPct: 0.10,
		CapitalBase:          10000,
	}, 0.001, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func opp(price, size, netPct float64) domain.Opportunity {
	return domain.Opportunity{
		ID:           "op-1",
		Symbol:       "BTC-USD",
		BuyVenue:     "alpha",
		SellVenue:    "beta",
		BuyPrice:     decimal.NewFromFloat(price),
		SellPrice:    decimal.NewFromFloat(price * 1.01),
		TradeSize:    decimal.NewFromFloat(size),
		NetProfitPct: decimal.NewFromFloat(netPct),
	}
}

func TestApproveTakesSlotAndReleaseReturnsIt(t *testing.T) {
	m := newTestManager(t, 1)

	require.NoError(t, m.Approve(opp(100, 5, 0.002)))
	assert.ErrorIs(t, m.Approve(opp(100, 5, 0.002)), domain.ErrCapacity)

	m.Release()
	assert.NoError(t, m.Approve(opp(100, 5, 0.002)))
}

func TestApproveRejectionOrder(t *testing.T) {
	m := newTestManager(t, 1)

	// Oversized AND below threshold: size rejection comes first.
	err := m.Approve(opp(100, 50, 0.0001))
	assert.ErrorIs(t, err, domain.ErrTradeTooLarge)

	// Below threshold only.
	err = m.Approve(opp(100, 5, 0.0001))
	assert.ErrorIs(t, err, domain.ErrBelowThreshold)

	// Halted dominates everything.
	m.Halt("test")
	err = m.Approve(opp(100, 50, 0.0001))
	assert.ErrorIs(t, err, domain.ErrHalted)
}

func TestConcurrentApproveNeverExceedsCapacity(t *testing.T) {
	m := newTestManager(t, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Approve(opp(100, 5, 0.002)) == nil {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, approved)
	assert.Equal(t, 3, m.Status().OpenTrades)
}

func TestEmergencyStopThresholdIsStrict(t *testing.T) {
	m := newTestManager(t, 3)

	// Exactly -10% of capital does not trigger.
	assert.False(t, m.CheckEmergencyStop(decimal.NewFromFloat(-1000)))
	assert.False(t, m.Halted())

	// -11% does.
	assert.True(t, m.CheckEmergencyStop(decimal.NewFromFloat(-1100)))
	assert.True(t, m.Halted())
	assert.ErrorIs(t, m.Approve(opp(100, 5, 0.002)), domain.ErrHalted)
}

func TestHaltHookFiresExactlyOnce(t *testing.T) {
	m := newTestManager(t, 3)

	fired := 0
	m.SetHaltHook(func(string) { fired++ })

	assert.True(t, m.CheckEmergencyStop(decimal.NewFromFloat(-2000)))
	// Already halted: no second engagement, no second hook call.
	assert.False(t, m.CheckEmergencyStop(decimal.NewFromFloat(-3000)))
	assert.False(t, m.Halt("again"))
	assert.Equal(t, 1, fired)
}

func TestResetDisengagesKillSwitch(t *testing.T) {
	m := newTestManager(t, 3)

	m.Halt("operator test")
	require.True(t, m.Halted())

	m.Reset()
	assert.False(t, m.Halted())
	assert.NoError(t, m.Approve(opp(100, 5, 0.002)))

	// Losses unchanged: the next check re-engages.
	assert.True(t, m.CheckEmergencyStop(decimal.NewFromFloat(-1500)))
}
