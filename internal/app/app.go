// Package app provides the top-level application lifecycle for the arbitrage
// engine. It wires together all dependencies (book store, breaker, venues,
// order manager, risk, PnL ledger, notifications) and runs the engine in the
// configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arbot-dev/arbot/internal/config"
	"github.com/arbot-dev/arbot/internal/domain"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	// external holds venues registered by the embedding process for live
	// mode, before Run is called.
	external []domain.MarketVenue
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// RegisterVenue adds a live venue connector. Must be called before Run; live
// mode requires at least two registered venues.
func (a *App) RegisterVenue(v domain.MarketVenue) {
	a.external = append(a.external, v)
}

// Run wires all dependencies, starts the engine in the configured mode, and
// blocks until the context is cancelled. On return the caller should invoke
// Close to release resources.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "paper":
		return a.PaperMode(ctx, deps)
	case "live":
		return a.LiveMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
