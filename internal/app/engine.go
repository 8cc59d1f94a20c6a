package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/arbot-dev/arbot/internal/breaker"
	"github.com/arbot-dev/arbot/internal/config"
	"github.com/arbot-dev/arbot/internal/domain"
	"github.com/arbot-dev/arbot/internal/executor"
	"github.com/arbot-dev/arbot/internal/risk"
)

// Status is a point-in-time view of the running engine.
type Status struct {
	Mode          string
	Risk          risk.Status
	CumulativePnL decimal.Decimal
	Breakers      map[string]breaker.State
	Venues        []string
}

// Engine runs the trading loop: market-data pumps feed the book store and
// notify the scanner; approved opportunities are executed concurrently, each
// on its own goroutine, up to the risk manager's capacity.
type Engine struct {
	cfg    *config.Config
	deps   *Dependencies
	logger *slog.Logger

	// sources maps venue name to its market-data stream. In paper mode this
	// is the simulated book generator or a WebSocket feed; in live mode it is
	// the venue connector itself.
	sources map[string]domain.BookSource
	// venueSymbols maps venue name to the symbols pumped from it.
	venueSymbols map[string][]string

	dedup    *executor.Dedup
	inflight sync.WaitGroup
}

// NewEngine assembles an Engine over wired dependencies.
func NewEngine(cfg *config.Config, deps *Dependencies, sources map[string]domain.BookSource, logger *slog.Logger) *Engine {
	venueSymbols := make(map[string][]string)
	for _, vc := range cfg.Venues {
		if vc.Enabled {
			venueSymbols[vc.Name] = vc.Symbols
		}
	}

	// While an attempt on a spread may still be in flight, don't stack
	// another one on top of it.
	dedupTTL := cfg.Execution.OrderWait()
	if dedupTTL < time.Second {
		dedupTTL = time.Second
	}

	return &Engine{
		cfg:          cfg,
		deps:         deps,
		logger:       logger.With(slog.String("component", "engine")),
		sources:      sources,
		venueSymbols: venueSymbols,
		dedup:        executor.NewDedup(dedupTTL),
	}
}

// Run starts every loop and blocks until the context is cancelled or a loop
// fails. In-flight attempts are allowed to finish before Run returns so that
// positions are never abandoned mid-unwind.
func (e *Engine) Run(ctx context.Context) error {
	for name := range e.venueSymbols {
		if e.sources[name] == nil {
			return fmt.Errorf("engine: no market-data source for venue %q", name)
		}
	}

	e.logger.InfoContext(ctx, "engine starting",
		slog.Int("venues", len(e.venueSymbols)),
		slog.String("cumulative_pnl", e.deps.Tracker.Cumulative().String()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.deps.Orders.Run(gctx) })
	g.Go(func() error { return e.deps.Scanner.Run(gctx) })

	for name, symbols := range e.venueSymbols {
		name := name
		src := e.sources[name]
		for _, symbol := range symbols {
			symbol := symbol
			g.Go(func() error { return e.pump(gctx, src, name, symbol) })
		}
	}

	g.Go(func() error { return e.consume(gctx) })
	g.Go(func() error { return e.housekeeping(gctx) })

	err := g.Wait()

	// Drain: attempts already executing run on an uncancelled context and
	// must complete (including unwinds) before shutdown.
	e.inflight.Wait()
	e.logger.Info("engine stopped",
		slog.String("cumulative_pnl", e.deps.Tracker.Cumulative().String()),
	)
	return err
}

// housekeeping expires dedup entries and re-runs the emergency-stop check on
// a timer, so the kill switch still engages when no market data is flowing.
func (e *Engine) housekeeping(ctx context.Context) error {
	safety := time.NewTicker(e.cfg.Scanner.SafetyInterval())
	defer safety.Stop()
	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-safety.C:
			e.deps.Risk.CheckEmergencyStop(e.deps.Tracker.Cumulative())
		case <-cleanup.C:
			e.dedup.Cleanup()
			e.deps.Orders.Cleanup()
		}
	}
}

// pump streams snapshots from one venue-symbol subscription into the book
// store and notifies the scanner on every applied update.
func (e *Engine) pump(ctx context.Context, src domain.BookSource, venueName, symbol string) error {
	ch, err := src.Subscribe(ctx, symbol)
	if err != nil {
		return fmt.Errorf("engine: subscribe %s/%s: %w", venueName, symbol, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-ch:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				// The feed died while the engine is still live; surface it so
				// the errgroup shuts everything down instead of trading on
				// from a venue that went dark.
				return fmt.Errorf("engine: market data stream ended for %s/%s", venueName, symbol)
			}
			if applied, _, _ := e.deps.Books.Update(snap); applied {
				e.deps.Scanner.Notify(symbol)
			}
		}
	}
}

// consume takes detected opportunities, passes them through risk approval,
// and launches execution goroutines for the approved ones.
func (e *Engine) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op, ok := <-e.deps.Scanner.Opportunities():
			if !ok {
				return ctx.Err()
			}
			e.handle(ctx, op)
		}
	}
}

func (e *Engine) handle(ctx context.Context, op domain.Opportunity) {
	if err := e.deps.Risk.Approve(op); err != nil {
		e.logger.Info("opportunity rejected",
			slog.String("id", op.ID),
			slog.String("reason", err.Error()),
		)
		return
	}
	// Approval first: IsDuplicate records the spread, and a risk-rejected
	// opportunity must not suppress the spread for the rest of the TTL.
	if e.dedup.IsDuplicate(op) {
		e.deps.Risk.Release()
		e.logger.Debug("spread already in flight",
			slog.String("symbol", op.Symbol),
			slog.String("buy_venue", op.BuyVenue),
			slog.String("sell_venue", op.SellVenue),
		)
		return
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		// Detached from the engine context: once legs are submitted the
		// attempt must run to a terminal state even during shutdown.
		execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
			4*e.cfg.Execution.OrderWait()+30*time.Second)
		defer cancel()
		if _, err := e.deps.Executor.Execute(execCtx, op); err != nil {
			e.logger.Error("attempt failed",
				slog.String("id", op.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	return Status{
		Mode:          e.cfg.Mode,
		Risk:          e.deps.Risk.Status(),
		CumulativePnL: e.deps.Tracker.Cumulative(),
		Breakers:      e.deps.Breaker.Snapshot(),
		Venues:        e.deps.Venues.Names(),
	}
}

// ResetKillSwitch disengages the kill switch. Operator action only.
func (e *Engine) ResetKillSwitch() {
	e.deps.Risk.Reset()
}
