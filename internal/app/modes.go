package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arbot-dev/arbot/internal/domain"
	"github.com/arbot-dev/arbot/internal/feed"
	"github.com/arbot-dev/arbot/internal/venue/sim"
)

// PaperMode runs the engine against simulated venues. Order submissions go to
// the in-process fill responder; market data comes from each venue's
// WebSocket endpoint when one is configured, otherwise from the synthetic
// book generator.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	sources := make(map[string]domain.BookSource)
	for _, vc := range a.cfg.Venues {
		if !vc.Enabled {
			continue
		}
		sv := sim.New(vc.Name, vc.Sim, a.logger)
		if err := deps.Venues.Register(sv); err != nil {
			return fmt.Errorf("app: register sim venue: %w", err)
		}
		if vc.WsURL != "" {
			sources[vc.Name] = &simFedSource{
				src: feed.NewWSFeed(vc.Name, vc.WsURL, a.logger),
				sv:  sv,
			}
			a.logger.Info("venue wired",
				slog.String("venue", vc.Name),
				slog.String("market_data", vc.WsURL),
				slog.String("orders", "simulated"),
			)
		} else {
			sources[vc.Name] = sv
			a.logger.Info("venue wired",
				slog.String("venue", vc.Name),
				slog.String("market_data", "simulated"),
				slog.String("orders", "simulated"),
			)
		}
	}

	return NewEngine(a.cfg, deps, sources, a.logger).Run(ctx)
}

// simFedSource streams snapshots from a real market-data feed while mirroring
// each one into the simulated fill responder. Without the mirror the
// responder's book stays empty and no paper order can ever cross.
type simFedSource struct {
	src domain.BookSource
	sv  *sim.Venue
}

func (s *simFedSource) Subscribe(ctx context.Context, symbol string) (<-chan domain.BookSnapshot, error) {
	ch, err := s.src.Subscribe(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make(chan domain.BookSnapshot, 16)
	go func() {
		defer close(out)
		for snap := range ch {
			s.sv.SetBook(snap)
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// LiveMode runs the engine against externally registered venue connectors.
// Every enabled venue in the configuration must have a matching connector
// registered via RegisterVenue before Run.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	for _, v := range a.external {
		if err := deps.Venues.Register(v); err != nil {
			return fmt.Errorf("app: register live venue: %w", err)
		}
	}

	sources := make(map[string]domain.BookSource)
	for _, vc := range a.cfg.Venues {
		if !vc.Enabled {
			continue
		}
		// Market data flows through the gated wrapper so stream failures
		// count against the venue's breaker.
		gv, err := deps.Venues.Get(vc.Name)
		if err != nil {
			return fmt.Errorf("app: venue %q enabled but no connector registered: %w", vc.Name, err)
		}
		sources[vc.Name] = gv
	}
	if len(sources) < 2 {
		return fmt.Errorf("app: live mode needs at least two registered venues, got %d", len(sources))
	}

	return NewEngine(a.cfg, deps, sources, a.logger).Run(ctx)
}
