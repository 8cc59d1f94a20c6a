package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets and deploy-time tweaks without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "ARBOT_MODE")
	setStr(&cfg.LogLevel, "ARBOT_LOG_LEVEL")

	// ── Scanner ──
	setFloat64(&cfg.Scanner.MinProfitThreshold, "ARBOT_SCANNER_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Scanner.MaxSlippage, "ARBOT_SCANNER_MAX_SLIPPAGE")
	setInt(&cfg.Scanner.ScanCooldownMs, "ARBOT_SCANNER_SCAN_COOLDOWN_MS")
	setInt(&cfg.Scanner.ScanIntervalS, "ARBOT_SCANNER_SCAN_INTERVAL_S")
	setInt(&cfg.Scanner.MaxQuoteAgeMs, "ARBOT_SCANNER_MAX_QUOTE_AGE_MS")

	// ── Risk ──
	setInt(&cfg.Risk.MaxOpenTrades, "ARBOT_RISK_MAX_OPEN_TRADES")
	setFloat64(&cfg.Risk.MaxTradeSize, "ARBOT_RISK_MAX_TRADE_SIZE")
	setFloat64(&cfg.Risk.EmergencyStopLossPct, "ARBOT_RISK_EMERGENCY_STOP_LOSS_PCT")
	setFloat64(&cfg.Risk.CapitalBase, "ARBOT_RISK_CAPITAL_BASE")

	// ── Execution ──
	setInt(&cfg.Execution.OrderWaitMs, "ARBOT_EXECUTION_ORDER_WAIT_MS")
	setInt(&cfg.Execution.PollIntervalMs, "ARBOT_EXECUTION_POLL_INTERVAL_MS")

	// ── Breaker ──
	setInt(&cfg.Breaker.FailureThreshold, "ARBOT_BREAKER_FAILURE_THRESHOLD")
	setInt(&cfg.Breaker.BackoffBaseMs, "ARBOT_BREAKER_BACKOFF_BASE_MS")
	setInt(&cfg.Breaker.BackoffMaxMs, "ARBOT_BREAKER_BACKOFF_MAX_MS")

	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "ARBOT_LEDGER_BACKEND")
	setStr(&cfg.Ledger.Path, "ARBOT_LEDGER_PATH")
	setStr(&cfg.Ledger.Postgres.DSN, "ARBOT_LEDGER_POSTGRES_DSN")
	setStr(&cfg.Ledger.Postgres.Host, "ARBOT_LEDGER_POSTGRES_HOST")
	setInt(&cfg.Ledger.Postgres.Port, "ARBOT_LEDGER_POSTGRES_PORT")
	setStr(&cfg.Ledger.Postgres.Database, "ARBOT_LEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Ledger.Postgres.User, "ARBOT_LEDGER_POSTGRES_USER")
	setStr(&cfg.Ledger.Postgres.Password, "ARBOT_LEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Ledger.Postgres.SSLMode, "ARBOT_LEDGER_POSTGRES_SSLMODE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.RedisAddr, "ARBOT_NOTIFY_REDIS_ADDR")
	setStr(&cfg.Notify.RedisPassword, "ARBOT_NOTIFY_REDIS_PASSWORD")
	setInt(&cfg.Notify.RedisDB, "ARBOT_NOTIFY_REDIS_DB")
	setStr(&cfg.Notify.RedisChannel, "ARBOT_NOTIFY_REDIS_CHANNEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
