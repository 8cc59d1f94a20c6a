// Package config defines the top-level configuration for the arbitrage engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBOT_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Scanner   ScannerConfig   `toml:"scanner"`
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Breaker   BreakerConfig   `toml:"breaker"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Venues    []VenueConfig   `toml:"venues"`
	Notify    NotifyConfig    `toml:"notify"`
}

// ScannerConfig holds opportunity-detection parameters.
type ScannerConfig struct {
	// MinProfitThreshold is the minimum net profit, as a fraction of buy
	// notional, for an opportunity to be emitted.
	MinProfitThreshold float64 `toml:"min_profit_threshold"`
	// MaxSlippage is the conservative slippage buffer applied against trade
	// notional, as a fraction.
	MaxSlippage    float64 `toml:"max_slippage"`
	ScanCooldownMs int     `toml:"scan_cooldown_ms"`
	// ScanIntervalS is the fallback safety poll that re-triggers the
	// emergency-stop check even when no market data is flowing.
	ScanIntervalS int `toml:"scan_interval_s"`
	MaxQuoteAgeMs int `toml:"max_quote_age_ms"`
}

// Cooldown returns the per-symbol scan cooldown as a duration.
func (c ScannerConfig) Cooldown() time.Duration {
	return time.Duration(c.ScanCooldownMs) * time.Millisecond
}

// SafetyInterval returns the fallback poll interval as a duration.
func (c ScannerConfig) SafetyInterval() time.Duration {
	return time.Duration(c.ScanIntervalS) * time.Second
}

// MaxQuoteAge returns the freshness threshold as a duration.
func (c ScannerConfig) MaxQuoteAge() time.Duration {
	return time.Duration(c.MaxQuoteAgeMs) * time.Millisecond
}

// RiskConfig holds the tunable parameters for trade approval and the
// emergency stop.
type RiskConfig struct {
	MaxOpenTrades int `toml:"max_open_trades"`
	// MaxTradeSize is the per-trade notional cap in quote currency.
	MaxTradeSize float64 `toml:"max_trade_size"`
	// EmergencyStopLossPct engages the kill switch when cumulative PnL falls
	// below -pct of CapitalBase. Fraction, e.g. 0.10 for 10%.
	EmergencyStopLossPct float64 `toml:"emergency_stop_loss_pct"`
	CapitalBase          float64 `toml:"capital_base"`
}

// ExecutionConfig holds order lifecycle parameters.
type ExecutionConfig struct {
	// OrderWaitMs is the maximum wait for an order to reach a terminal
	// status before a cancel is issued and the order is treated as failed.
	OrderWaitMs    int `toml:"order_wait_ms"`
	PollIntervalMs int `toml:"poll_interval_ms"`
}

// OrderWait returns the per-order wait window as a duration.
func (c ExecutionConfig) OrderWait() time.Duration {
	return time.Duration(c.OrderWaitMs) * time.Millisecond
}

// PollInterval returns the order status poll interval as a duration.
func (c ExecutionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// BreakerConfig holds per-venue circuit breaker parameters.
type BreakerConfig struct {
	FailureThreshold int `toml:"failure_threshold"`
	BackoffBaseMs    int `toml:"backoff_base_ms"`
	BackoffMaxMs     int `toml:"backoff_max_ms"`
}

// BackoffBase returns the initial open-state backoff as a duration.
func (c BreakerConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BackoffMax returns the backoff cap as a duration.
func (c BreakerConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// LedgerConfig selects and configures the PnL ledger backend.
type LedgerConfig struct {
	// Backend is "file" or "postgres".
	Backend  string         `toml:"backend"`
	Path     string         `toml:"path"`
	Postgres PostgresConfig `toml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ledger store.
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"pool_max_conns"`
	MinConns int    `toml:"pool_min_conns"`
}

// VenueConfig describes one exchange the engine trades on.
type VenueConfig struct {
	Name    string   `toml:"name"`
	Enabled bool     `toml:"enabled"`
	Symbols []string `toml:"symbols"`
	// TakerFee is the per-leg taker fee as a fraction, e.g. 0.001 for 0.1%.
	TakerFee float64 `toml:"taker_fee"`
	// WsURL is the market-data websocket endpoint. Empty means the simulated
	// book generator supplies market data for this venue.
	WsURL string    `toml:"ws_url"`
	Sim   SimConfig `toml:"sim"`
}

// SimConfig tunes the synthetic book generator used when a venue has no
// market-data endpoint (paper mode and tests).
type SimConfig struct {
	Mid        float64 `toml:"mid"`
	SpreadBps  float64 `toml:"spread_bps"`
	StepBps    float64 `toml:"step_bps"`
	IntervalMs int     `toml:"interval_ms"`
	Depth      float64 `toml:"depth"`
}

// NotifyConfig holds alert channel settings. Alerts for emergency stop and
// unwind failures are dispatched to every configured channel.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	RedisAddr         string   `toml:"redis_addr"`
	RedisPassword     string   `toml:"redis_password"`
	RedisDB           int      `toml:"redis_db"`
	RedisChannel      string   `toml:"redis_channel"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "paper",
		LogLevel: "info",
		Scanner: ScannerConfig{
			MinProfitThreshold: 0.001,
			MaxSlippage:        0.001,
			ScanCooldownMs:     250,
			ScanIntervalS:      10,
			MaxQuoteAgeMs:      2000,
		},
		Risk: RiskConfig{
			MaxOpenTrades:        3,
			MaxTradeSize:         1000,
			EmergencyStopLossPct: 0.10,
			CapitalBase:          10000,
		},
		Execution: ExecutionConfig{
			OrderWaitMs:    5000,
			PollIntervalMs: 500,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			BackoffBaseMs:    1000,
			BackoffMaxMs:     60000,
		},
		Ledger: LedgerConfig{
			Backend: "file",
			Path:    "pnl.jsonl",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "arbot",
				User:     "arbot",
				SSLMode:  "disable",
				MaxConns: 4,
				MinConns: 1,
			},
		},
		Notify: NotifyConfig{
			RedisChannel: "arbot:alerts",
			Events:       []string{"emergency_stop", "unwind_failure"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper": true,
	"live":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Scanner
	if c.Scanner.MinProfitThreshold < 0 {
		errs = append(errs, "scanner: min_profit_threshold must be >= 0")
	}
	if c.Scanner.MaxSlippage < 0 {
		errs = append(errs, "scanner: max_slippage must be >= 0")
	}
	if c.Scanner.ScanCooldownMs < 0 {
		errs = append(errs, "scanner: scan_cooldown_ms must be >= 0")
	}
	if c.Scanner.ScanIntervalS <= 0 {
		errs = append(errs, "scanner: scan_interval_s must be > 0")
	}
	if c.Scanner.MaxQuoteAgeMs <= 0 {
		errs = append(errs, "scanner: max_quote_age_ms must be > 0")
	}

	// Risk
	if c.Risk.MaxOpenTrades < 0 {
		errs = append(errs, "risk: max_open_trades must be >= 0")
	}
	if c.Risk.MaxTradeSize <= 0 {
		errs = append(errs, "risk: max_trade_size must be > 0")
	}
	if c.Risk.EmergencyStopLossPct <= 0 || c.Risk.EmergencyStopLossPct >= 1 {
		errs = append(errs, "risk: emergency_stop_loss_pct must be in (0, 1)")
	}
	if c.Risk.CapitalBase <= 0 {
		errs = append(errs, "risk: capital_base must be > 0")
	}

	// Execution
	if c.Execution.OrderWaitMs <= 0 {
		errs = append(errs, "execution: order_wait_ms must be > 0")
	}
	if c.Execution.PollIntervalMs <= 0 {
		errs = append(errs, "execution: poll_interval_ms must be > 0")
	}

	// Breaker
	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, "breaker: failure_threshold must be >= 1")
	}
	if c.Breaker.BackoffBaseMs <= 0 {
		errs = append(errs, "breaker: backoff_base_ms must be > 0")
	}
	if c.Breaker.BackoffMaxMs < c.Breaker.BackoffBaseMs {
		errs = append(errs, "breaker: backoff_max_ms must be >= backoff_base_ms")
	}

	// Ledger
	switch c.Ledger.Backend {
	case "file":
		if c.Ledger.Path == "" {
			errs = append(errs, "ledger: path must not be empty for the file backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Ledger.Postgres.DSN) == "" {
			if c.Ledger.Postgres.Host == "" {
				errs = append(errs, "ledger.postgres: host must not be empty (or set ledger.postgres.dsn)")
			}
			if c.Ledger.Postgres.Port <= 0 || c.Ledger.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("ledger.postgres: port must be 1-65535, got %d", c.Ledger.Postgres.Port))
			}
			if c.Ledger.Postgres.Database == "" {
				errs = append(errs, "ledger.postgres: database must not be empty")
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: file, postgres)", c.Ledger.Backend))
	}

	// Venues — arbitrage needs at least two enabled venues sharing a symbol.
	enabled := 0
	seen := map[string]bool{}
	for i, v := range c.Venues {
		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: name must not be empty", i))
			continue
		}
		if seen[v.Name] {
			errs = append(errs, fmt.Sprintf("venues: duplicate name %q", v.Name))
		}
		seen[v.Name] = true
		if !v.Enabled {
			continue
		}
		enabled++
		if len(v.Symbols) == 0 {
			errs = append(errs, fmt.Sprintf("venues[%s]: symbols must not be empty when enabled", v.Name))
		}
		if v.TakerFee < 0 || v.TakerFee >= 1 {
			errs = append(errs, fmt.Sprintf("venues[%s]: taker_fee must be in [0, 1)", v.Name))
		}
	}
	if enabled < 2 {
		errs = append(errs, fmt.Sprintf("venues: arbitrage requires at least two enabled venues, got %d", enabled))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SharedSymbols returns the symbols traded on at least two enabled venues,
// in first-seen order.
func (c *Config) SharedSymbols() []string {
	counts := map[string]int{}
	var order []string
	for _, v := range c.Venues {
		if !v.Enabled {
			continue
		}
		for _, sym := range v.Symbols {
			if counts[sym] == 0 {
				order = append(order, sym)
			}
			counts[sym]++
		}
	}
	var shared []string
	for _, sym := range order {
		if counts[sym] >= 2 {
			shared = append(shared, sym)
		}
	}
	return shared
}
