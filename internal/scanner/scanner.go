// Package scanner detects cross-venue arbitrage opportunities from top-of-book
// snapshots.
package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbot-dev/arbot/internal/book"
	"github.com/arbot-dev/arbot/internal/breaker"
	"github.com/arbot-dev/arbot/internal/config"
	"github.com/arbot-dev/arbot/internal/domain"
)

// Scanner evaluates venue pairs for a symbol whenever its book changes,
// subject to a per-symbol cooldown, and emits opportunities whose net profit
// clears the threshold. Stale books and venues with an open circuit never
// participate in an evaluation.
type Scanner struct {
	store  *book.Store
	br     *breaker.Breaker
	cfg    config.ScannerConfig
	logger *slog.Logger

	// fees maps venue name to its taker fee fraction.
	fees map[string]decimal.Decimal
	// maxNotional caps trade sizing in quote currency.
	maxNotional decimal.Decimal

	updates chan string
	out     chan domain.Opportunity

	mu       sync.Mutex
	lastScan map[string]time.Time
	symbols  map[string]struct{}

	now func() time.Time
}

// New creates a Scanner. fees maps each venue name to its taker fee fraction;
// maxTradeSize is the per-trade notional cap used for sizing.
func New(store *book.Store, br *breaker.Breaker, cfg config.ScannerConfig, fees map[string]float64, maxTradeSize float64, logger *slog.Logger) *Scanner {
	feeMap := make(map[string]decimal.Decimal, len(fees))
	for name, f := range fees {
		feeMap[name] = decimal.NewFromFloat(f)
	}
	return &Scanner{
		store:       store,
		br:          br,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "scanner")),
		fees:        feeMap,
		maxNotional: decimal.NewFromFloat(maxTradeSize),
		updates:     make(chan string, 256),
		out:         make(chan domain.Opportunity, 64),
		lastScan:    make(map[string]time.Time),
		symbols:     make(map[string]struct{}),
		now:         time.Now,
	}
}

// Opportunities returns the channel of detected opportunities.
func (s *Scanner) Opportunities() <-chan domain.Opportunity {
	return s.out
}

// Notify signals that the book for symbol changed. Never blocks; a full
// queue drops the signal, which is safe because the safety poll rescans
// every symbol anyway.
func (s *Scanner) Notify(symbol string) {
	s.mu.Lock()
	s.symbols[symbol] = struct{}{}
	s.mu.Unlock()

	select {
	case s.updates <- symbol:
	default:
	}
}

// Run consumes update signals and periodically rescans every known symbol
// until the context is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SafetyInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(s.out)
			return ctx.Err()
		case symbol := <-s.updates:
			s.scan(symbol)
		case <-ticker.C:
			for _, symbol := range s.knownSymbols() {
				s.scan(symbol)
			}
		}
	}
}

func (s *Scanner) knownSymbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// scan evaluates the symbol unless it is still in cooldown, and emits the
// best qualifying opportunity.
func (s *Scanner) scan(symbol string) {
	now := s.now()

	s.mu.Lock()
	if last, ok := s.lastScan[symbol]; ok && now.Sub(last) < s.cfg.Cooldown() {
		s.mu.Unlock()
		return
	}
	s.lastScan[symbol] = now
	s.mu.Unlock()

	op, ok := s.Evaluate(symbol, now)
	if !ok {
		return
	}

	s.logger.Info("opportunity detected",
		slog.String("id", op.ID),
		slog.String("symbol", op.Symbol),
		slog.String("buy_venue", op.BuyVenue),
		slog.String("sell_venue", op.SellVenue),
		slog.String("buy_price", op.BuyPrice.String()),
		slog.String("sell_price", op.SellPrice.String()),
		slog.String("size", op.TradeSize.String()),
		slog.String("net_profit_pct", op.NetProfitPct.String()),
	)

	select {
	case s.out <- op:
	default:
		s.logger.Warn("opportunity dropped, consumer behind", slog.String("id", op.ID))
	}
}

// Evaluate computes the best opportunity for the symbol across all fresh,
// usable venue books at the given instant. Returns false when no pair clears
// the profit threshold.
func (s *Scanner) Evaluate(symbol string, now time.Time) (domain.Opportunity, bool) {
	snaps := s.store.BySymbol(symbol)

	fresh := snaps[:0]
	for _, snap := range snaps {
		if !snap.Valid() {
			continue
		}
		if snap.Age(now) > s.cfg.MaxQuoteAge() {
			continue
		}
		if !s.br.Usable(snap.Venue) {
			continue
		}
		fresh = append(fresh, snap)
	}
	if len(fresh) < 2 {
		return domain.Opportunity{}, false
	}

	var best domain.Opportunity
	found := false
	for _, buySnap := range fresh {
		for _, sellSnap := range fresh {
			if buySnap.Venue == sellSnap.Venue {
				continue
			}
			op, ok := s.evaluatePair(symbol, buySnap, sellSnap, now)
			if !ok {
				continue
			}
			if !found || op.NetProfitPct.GreaterThan(best.NetProfitPct) {
				best = op
				found = true
			}
		}
	}
	return best, found
}

// evaluatePair prices buying at buySnap's ask and selling at sellSnap's bid.
// Net profit is gross spread minus both taker fees minus the slippage buffer,
// expressed as a fraction of buy notional.
func (s *Scanner) evaluatePair(symbol string, buySnap, sellSnap domain.BookSnapshot, now time.Time) (domain.Opportunity, bool) {
	buyPrice := buySnap.Ask.Price
	sellPrice := sellSnap.Bid.Price
	if buyPrice.LessThanOrEqual(decimal.Zero) || sellPrice.LessThanOrEqual(buyPrice) {
		return domain.Opportunity{}, false
	}

	// Size: min of both displayed sizes, capped so buy notional stays within
	// the per-trade limit.
	size := buySnap.Ask.Size
	if sellSnap.Bid.Size.LessThan(size) {
		size = sellSnap.Bid.Size
	}
	if sizeCap := s.maxNotional.Div(buyPrice); sizeCap.LessThan(size) {
		size = sizeCap
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return domain.Opportunity{}, false
	}

	buyNotional := buyPrice.Mul(size)
	sellNotional := sellPrice.Mul(size)

	fees := buyNotional.Mul(s.fees[buySnap.Venue]).Add(sellNotional.Mul(s.fees[sellSnap.Venue]))
	slippage := buyNotional.Mul(decimal.NewFromFloat(s.cfg.MaxSlippage))

	net := sellNotional.Sub(buyNotional).Sub(fees).Sub(slippage)
	netPct := net.Div(buyNotional)

	if netPct.LessThan(decimal.NewFromFloat(s.cfg.MinProfitThreshold)) {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		ID:           uuid.New().String(),
		Symbol:       symbol,
		BuyVenue:     buySnap.Venue,
		SellVenue:    sellSnap.Venue,
		BuyPrice:     buyPrice,
		SellPrice:    sellPrice,
		TradeSize:    size,
		EstFees:      fees,
		EstSlippage:  slippage,
		NetProfitPct: netPct,
		DetectedAt:   now,
	}, true
}
