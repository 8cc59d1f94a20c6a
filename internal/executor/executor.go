// Package executor coordinates the two legs of an approved arbitrage attempt
// and the compensating unwind when one leg fails.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbot-dev/arbot/internal/book"
	"github.com/arbot-dev/arbot/internal/breaker"
	"github.com/arbot-dev/arbot/internal/domain"
	"github.com/arbot-dev/arbot/internal/orders"
	"github.com/arbot-dev/arbot/internal/pnl"
	"github.com/arbot-dev/arbot/internal/risk"
)

// Alerter raises operator alerts for events that need human attention.
type Alerter interface {
	Alert(ctx context.Context, event, message string)
}

// Executor runs approved opportunities. Both legs are submitted concurrently;
// there is no atomic cross-venue execution, so a one-sided fill leaves a
// position that must be unwound with a compensating order. Every attempt
// releases its risk slot and records its realized outcome exactly once.
type Executor struct {
	orders  *orders.Manager
	books   *book.Store
	br      *breaker.Breaker
	riskMgr *risk.Manager
	tracker *pnl.Tracker
	alerts  Alerter
	logger  *slog.Logger

	// fees maps venue name to taker fee fraction, for realized fee accounting.
	fees map[string]decimal.Decimal
}

// New creates an Executor. alerts may be nil.
func New(om *orders.Manager, books *book.Store, br *breaker.Breaker, rm *risk.Manager, tracker *pnl.Tracker, alerts Alerter, fees map[string]float64, logger *slog.Logger) *Executor {
	feeMap := make(map[string]decimal.Decimal, len(fees))
	for name, f := range fees {
		feeMap[name] = decimal.NewFromFloat(f)
	}
	return &Executor{
		orders:  om,
		books:   books,
		br:      br,
		riskMgr: rm,
		tracker: tracker,
		alerts:  alerts,
		logger:  logger.With(slog.String("component", "executor")),
		fees:    feeMap,
	}
}

// Execute runs one approved opportunity to a terminal attempt status. The
// caller must have taken a risk slot via Approve; Execute releases it and
// records the realized outcome before returning.
func (e *Executor) Execute(ctx context.Context, op domain.Opportunity) (*domain.TradeAttempt, error) {
	attempt := &domain.TradeAttempt{
		CorrelationID: op.ID,
		Opportunity:   op,
		Status:        domain.AttemptInProgress,
		StartedAt:     time.Now().UTC(),
	}

	log := e.logger.With(
		slog.String("correlation_id", attempt.CorrelationID),
		slog.String("symbol", op.Symbol),
	)
	log.Info("executing attempt",
		slog.String("buy_venue", op.BuyVenue),
		slog.String("sell_venue", op.SellVenue),
		slog.String("size", op.TradeSize.String()),
	)

	buySpec := domain.OrderSpec{
		Venue:         op.BuyVenue,
		Symbol:        op.Symbol,
		Side:          domain.OrderSideBuy,
		Quantity:      op.TradeSize,
		LimitPrice:    op.BuyPrice,
		CorrelationID: attempt.CorrelationID,
	}
	sellSpec := domain.OrderSpec{
		Venue:         op.SellVenue,
		Symbol:        op.Symbol,
		Side:          domain.OrderSideSell,
		Quantity:      op.TradeSize,
		LimitPrice:    op.SellPrice,
		CorrelationID: attempt.CorrelationID,
	}

	var wg sync.WaitGroup
	var buyLeg, sellLeg domain.OrderRecord
	wg.Add(2)
	go func() {
		defer wg.Done()
		buyLeg = e.runLeg(ctx, buySpec)
	}()
	go func() {
		defer wg.Done()
		sellLeg = e.runLeg(ctx, sellSpec)
	}()
	wg.Wait()

	attempt.BuyLeg = &buyLeg
	attempt.SellLeg = &sellLeg

	// Classify by position imbalance, not by leg status alone: equal partial
	// fills leave a flat position and need no unwind.
	imbalance := buyLeg.FilledQuantity.Sub(sellLeg.FilledQuantity)
	switch {
	case buyLeg.Filled() && sellLeg.Filled():
		attempt.Status = domain.AttemptBothFilled
	case imbalance.IsZero() && buyLeg.FilledQuantity.IsZero():
		attempt.Status = domain.AttemptAborted
		log.Warn("attempt aborted, neither leg filled")
	case imbalance.IsZero():
		attempt.Status = domain.AttemptBothFilled
		log.Warn("legs partially filled but flat",
			slog.String("matched_qty", buyLeg.FilledQuantity.String()),
		)
	default:
		attempt.Status = domain.AttemptOneLegFailed
		log.Warn("one leg failed, position open",
			slog.String("imbalance", imbalance.String()),
			slog.String("buy_status", string(buyLeg.Status)),
			slog.String("sell_status", string(sellLeg.Status)),
		)
		e.unwind(ctx, attempt, imbalance, log)
	}

	e.finish(ctx, attempt, log)
	return attempt, nil
}

// runLeg submits one leg and waits for its terminal status. The returned
// record is always usable for classification: a placement or timeout failure
// yields a Failed record with whatever fill quantity was reported.
func (e *Executor) runLeg(ctx context.Context, spec domain.OrderSpec) domain.OrderRecord {
	rec, err := e.orders.Submit(ctx, spec)
	if err != nil {
		return rec
	}
	final, err := e.orders.Await(ctx, rec.ID)
	if err != nil {
		e.logger.Warn("leg did not complete cleanly",
			slog.String("order_id", rec.ID),
			slog.String("venue", spec.Venue),
			slog.String("error", err.Error()),
		)
	}
	return final
}

// unwind places a compensating order for the open position. A positive
// imbalance means excess base was bought (sell it back on the buy venue); a
// negative imbalance means excess was sold (buy it back on the sell venue).
// The order is a marketable limit priced at the current opposite top of book.
func (e *Executor) unwind(ctx context.Context, attempt *domain.TradeAttempt, imbalance decimal.Decimal, log *slog.Logger) {
	attempt.Status = domain.AttemptUnwinding

	op := attempt.Opportunity
	var spec domain.OrderSpec
	if imbalance.IsPositive() {
		spec = domain.OrderSpec{
			Venue:         op.BuyVenue,
			Symbol:        op.Symbol,
			Side:          domain.OrderSideSell,
			Quantity:      imbalance,
			LimitPrice:    e.marketablePrice(op.BuyVenue, op.Symbol, domain.OrderSideSell, op.BuyPrice),
			CorrelationID: attempt.CorrelationID,
			Compensating:  true,
		}
	} else {
		spec = domain.OrderSpec{
			Venue:         op.SellVenue,
			Symbol:        op.Symbol,
			Side:          domain.OrderSideBuy,
			Quantity:      imbalance.Neg(),
			LimitPrice:    e.marketablePrice(op.SellVenue, op.Symbol, domain.OrderSideBuy, op.SellPrice),
			CorrelationID: attempt.CorrelationID,
			Compensating:  true,
		}
	}

	log.Info("unwinding position",
		slog.String("venue", spec.Venue),
		slog.String("side", string(spec.Side)),
		slog.String("quantity", spec.Quantity.String()),
		slog.String("limit", spec.LimitPrice.String()),
	)

	rec := e.runLeg(ctx, spec)
	attempt.UnwindLeg = &rec

	if rec.FilledQuantity.Equal(spec.Quantity) {
		attempt.Status = domain.AttemptUnwound
		log.Info("position unwound", slog.String("avg_price", rec.AvgFillPrice.String()))
		return
	}

	attempt.Status = domain.AttemptUnwindFailed
	residual := spec.Quantity.Sub(rec.FilledQuantity)
	log.Error("unwind failed, residual position remains",
		slog.String("venue", spec.Venue),
		slog.String("residual", residual.String()),
	)
	e.br.ForceOpen(spec.Venue)
	if e.alerts != nil {
		e.alerts.Alert(ctx, "unwind_failure", fmt.Sprintf(
			"unwind failed on %s: residual %s %s (correlation %s), manual intervention required",
			spec.Venue, residual.String(), op.Symbol, attempt.CorrelationID,
		))
	}
}

// marketablePrice returns a limit price expected to cross immediately: the
// current bid when selling, the current ask when buying. Falls back to the
// original leg price if no fresh book is available.
func (e *Executor) marketablePrice(venueName, symbol string, side domain.OrderSide, fallback decimal.Decimal) decimal.Decimal {
	snap, ok := e.books.Get(venueName, symbol)
	if !ok || !snap.Valid() {
		return fallback
	}
	if side == domain.OrderSideSell {
		return snap.Bid.Price
	}
	return snap.Ask.Price
}

// finish records the realized outcome, releases the risk slot, and runs the
// emergency-stop check. Each of these happens exactly once per attempt.
func (e *Executor) finish(ctx context.Context, attempt *domain.TradeAttempt, log *slog.Logger) {
	attempt.CompletedAt = time.Now().UTC()

	cash, fees := e.realized(attempt.BuyLeg, attempt.SellLeg, attempt.UnwindLeg)
	outcome := domain.TradeOutcome{
		CorrelationID: attempt.CorrelationID,
		Symbol:        attempt.Opportunity.Symbol,
		PnL:           cash.Sub(fees),
		Fees:          fees,
		Status:        attempt.Status,
		Timestamp:     attempt.CompletedAt,
	}

	if err := e.tracker.Record(ctx, outcome); err != nil {
		// The ledger write failed, so the running total no longer reflects
		// this trade. Halt rather than keep trading on an understated loss.
		log.Error("failed to record outcome", slog.String("error", err.Error()))
		e.riskMgr.Halt(fmt.Sprintf("ledger write failed for %s: %v", attempt.CorrelationID, err))
	}

	e.riskMgr.Release()

	if e.riskMgr.CheckEmergencyStop(e.tracker.Cumulative()) {
		log.Error("emergency stop engaged after attempt",
			slog.String("cumulative", e.tracker.Cumulative().String()),
		)
	}

	log.Info("attempt closed",
		slog.String("status", string(attempt.Status)),
		slog.String("pnl", outcome.PnL.String()),
		slog.String("fees", outcome.Fees.String()),
	)
}

// realized sums the cash flow and fees of every filled quantity across the
// given orders. Sells add proceeds, buys subtract cost; fees accrue on filled
// notional at each venue's taker rate. A residual position after a failed
// unwind is valued at zero, which understates rather than overstates PnL.
func (e *Executor) realized(recs ...*domain.OrderRecord) (cash, fees decimal.Decimal) {
	for _, rec := range recs {
		if rec == nil || !rec.AcquiredPosition() {
			continue
		}
		notional := rec.AvgFillPrice.Mul(rec.FilledQuantity)
		fees = fees.Add(notional.Mul(e.fees[rec.Spec.Venue]))
		if rec.Spec.Side == domain.OrderSideSell {
			cash = cash.Add(notional)
		} else {
			cash = cash.Sub(notional)
		}
	}
	return cash, fees
}
