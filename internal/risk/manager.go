// Package risk gates trade admission and owns the kill switch.
package risk

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/arbot-dev/arbot/internal/config"
	"github.com/arbot-dev/arbot/internal/domain"
)

// Status is a point-in-time view of the risk state.
type Status struct {
	OpenTrades int
	MaxTrades  int
	Halted     bool
	HaltReason string
}

// Manager approves or rejects detected opportunities and engages the kill
// switch when cumulative losses breach the emergency stop. Approval atomically
// takes an open-trade slot; the executor must Release it when the attempt
// closes, whatever the outcome.
type Manager struct {
	logger *slog.Logger

	minProfit   decimal.Decimal // fraction of buy notional
	maxNotional decimal.Decimal // quote currency
	maxOpen     int
	stopLoss    decimal.Decimal // positive loss magnitude in quote currency

	// onHalt runs outside the lock whenever the kill switch engages. Wired by
	// the engine to cancel open orders and raise an alert.
	onHalt func(reason string)

	mu         sync.Mutex
	open       int
	halted     bool
	haltReason string
}

// New builds a Manager from the risk and scanner sections of the config.
func New(cfg config.RiskConfig, minProfitThreshold float64, logger *slog.Logger) *Manager {
	return &Manager{
		logger:      logger.With(slog.String("component", "risk_manager")),
		minProfit:   decimal.NewFromFloat(minProfitThreshold),
		maxNotional: decimal.NewFromFloat(cfg.MaxTradeSize),
		maxOpen:     cfg.MaxOpenTrades,
		stopLoss:    decimal.NewFromFloat(cfg.EmergencyStopLossPct).Mul(decimal.NewFromFloat(cfg.CapitalBase)),
	}
}

// SetHaltHook installs the callback invoked when the kill switch engages. Must
// be called before the engine starts processing opportunities.
func (m *Manager) SetHaltHook(fn func(reason string)) {
	m.onHalt = fn
}

// Approve checks the opportunity against the risk limits and, if it passes,
// takes one open-trade slot. Checks run in a fixed order so rejections are
// deterministic: kill switch, capacity, trade size, profit threshold.
func (m *Manager) Approve(op domain.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return fmt.Errorf("risk: approve %s: %w", op.ID, domain.ErrHalted)
	}
	if m.open >= m.maxOpen {
		return fmt.Errorf("risk: approve %s: %d trades in flight: %w", op.ID, m.open, domain.ErrCapacity)
	}
	if op.Notional().GreaterThan(m.maxNotional) {
		return fmt.Errorf("risk: approve %s: notional %s exceeds %s: %w",
			op.ID, op.Notional().String(), m.maxNotional.String(), domain.ErrTradeTooLarge)
	}
	if op.NetProfitPct.LessThan(m.minProfit) {
		return fmt.Errorf("risk: approve %s: net profit %s below %s: %w",
			op.ID, op.NetProfitPct.String(), m.minProfit.String(), domain.ErrBelowThreshold)
	}

	m.open++
	return nil
}

// Release returns an open-trade slot. Called exactly once per approved
// opportunity when the attempt reaches a terminal state.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open > 0 {
		m.open--
	}
}

// CheckEmergencyStop engages the kill switch when cumulative PnL has fallen
// below the configured loss limit. A loss exactly at the limit does not
// trigger. Returns true if the switch engaged on this call.
func (m *Manager) CheckEmergencyStop(cumulative decimal.Decimal) bool {
	if cumulative.GreaterThanOrEqual(m.stopLoss.Neg()) {
		return false
	}
	reason := fmt.Sprintf("cumulative pnl %s below emergency stop -%s",
		cumulative.String(), m.stopLoss.String())
	return m.Halt(reason)
}

// Halt engages the kill switch. Idempotent: returns true only on the
// engagement transition, on which the halt hook also fires.
func (m *Manager) Halt(reason string) bool {
	m.mu.Lock()
	if m.halted {
		m.mu.Unlock()
		return false
	}
	m.halted = true
	m.haltReason = reason
	m.mu.Unlock()

	m.logger.Error("kill switch engaged", slog.String("reason", reason))
	if m.onHalt != nil {
		m.onHalt(reason)
	}
	return true
}

// Halted reports whether the kill switch is engaged.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Reset disengages the kill switch. Operator action only; the loss total is
// untouched, so the next emergency-stop check will re-engage unless losses
// have been recovered or limits raised.
func (m *Manager) Reset() {
	m.mu.Lock()
	wasHalted := m.halted
	m.halted = false
	m.haltReason = ""
	m.mu.Unlock()

	if wasHalted {
		m.logger.Warn("kill switch reset by operator")
	}
}

// Status returns the current risk state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		OpenTrades: m.open,
		MaxTrades:  m.maxOpen,
		Halted:     m.halted,
		HaltReason: m.haltReason,
	}
}
