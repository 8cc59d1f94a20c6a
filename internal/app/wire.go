package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbot-dev/arbot/internal/book"
	"github.com/arbot-dev/arbot/internal/breaker"
	"github.com/arbot-dev/arbot/internal/config"
	"github.com/arbot-dev/arbot/internal/domain"
	"github.com/arbot-dev/arbot/internal/executor"
	"github.com/arbot-dev/arbot/internal/ledger"
	"github.com/arbot-dev/arbot/internal/notify"
	"github.com/arbot-dev/arbot/internal/orders"
	"github.com/arbot-dev/arbot/internal/pnl"
	"github.com/arbot-dev/arbot/internal/risk"
	"github.com/arbot-dev/arbot/internal/scanner"
	"github.com/arbot-dev/arbot/internal/store/postgres"
	"github.com/arbot-dev/arbot/internal/venue"
)

// Dependencies bundles everything the engine needs to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Books    *book.Store
	Breaker  *breaker.Breaker
	Venues   *venue.Registry
	Orders   *orders.Manager
	Risk     *risk.Manager
	Tracker  *pnl.Tracker
	Scanner  *scanner.Scanner
	Executor *executor.Executor
	Notifier *notify.Notifier

	// Fees maps enabled venue names to taker fee fractions.
	Fees map[string]float64
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	br := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		BackoffBase:      cfg.Breaker.BackoffBase(),
		BackoffMax:       cfg.Breaker.BackoffMax(),
	}, logger)

	// --- PnL ledger ---
	var pnlLedger domain.Ledger
	switch cfg.Ledger.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Ledger.Postgres.DSN,
			Host:     cfg.Ledger.Postgres.Host,
			Port:     cfg.Ledger.Postgres.Port,
			Database: cfg.Ledger.Postgres.Database,
			User:     cfg.Ledger.Postgres.User,
			Password: cfg.Ledger.Postgres.Password,
			SSLMode:  cfg.Ledger.Postgres.SSLMode,
			MaxConns: cfg.Ledger.Postgres.MaxConns,
			MinConns: cfg.Ledger.Postgres.MinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		if err := pgClient.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
		}
		pnlLedger = postgres.NewLedgerStore(pgClient.Pool())
	default:
		fl, err := ledger.OpenFile(cfg.Ledger.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: file ledger: %w", err)
		}
		closers = append(closers, func() { _ = fl.Close() })
		pnlLedger = fl
	}

	tracker, err := pnl.NewTracker(ctx, pnlLedger, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: pnl tracker: %w", err)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.RedisAddr != "" {
		rs := notify.NewRedisSender(cfg.Notify.RedisAddr, cfg.Notify.RedisPassword, cfg.Notify.RedisDB, cfg.Notify.RedisChannel)
		closers = append(closers, func() { _ = rs.Close() })
		senders = append(senders, rs)
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Trading core ---
	fees := make(map[string]float64)
	for _, vc := range cfg.Venues {
		if vc.Enabled {
			fees[vc.Name] = vc.TakerFee
		}
	}

	books := book.NewStore()
	registry := venue.NewRegistry(br)
	riskMgr := risk.New(cfg.Risk, cfg.Scanner.MinProfitThreshold, logger)
	om := orders.NewManager(registry, br, orders.Config{
		OrderWait:    cfg.Execution.OrderWait(),
		PollInterval: cfg.Execution.PollInterval(),
	}, logger)
	scan := scanner.New(books, br, cfg.Scanner, fees, cfg.Risk.MaxTradeSize, logger)
	exec := executor.New(om, books, br, riskMgr, tracker, notifier, fees, logger)

	// Kill switch: cancel everything still open and page the operator.
	riskMgr.SetHaltHook(func(reason string) {
		haltCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cancelled := om.CancelOpen(haltCtx)
		logger.Warn("kill switch hook ran",
			slog.String("reason", reason),
			slog.Int("orders_cancelled", cancelled),
		)
		notifier.Alert(haltCtx, "emergency_stop", reason)
	})

	return &Dependencies{
		Books:    books,
		Breaker:  br,
		Venues:   registry,
		Orders:   om,
		Risk:     riskMgr,
		Tracker:  tracker,
		Scanner:  scan,
		Executor: exec,
		Notifier: notifier,
		Fees:     fees,
	}, cleanup, nil
}
