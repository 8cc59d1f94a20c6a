// Package orders tracks the lifecycle of every order placed on a venue, from
// submission to terminal status.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbot-dev/arbot/internal/breaker"
	"github.com/arbot-dev/arbot/internal/domain"
	"github.com/arbot-dev/arbot/internal/venue"
)

// Config holds order lifecycle parameters.
type Config struct {
	// OrderWait is the maximum wait for a terminal status before a cancel is
	// issued and the order is treated as failed.
	OrderWait time.Duration
	// PollInterval drives the venue status poll for non-terminal orders.
	PollInterval time.Duration
}

// tracked pairs the record with its completion signal.
type tracked struct {
	rec  domain.OrderRecord
	done chan struct{}
}

// Manager owns every OrderRecord. Records are mutated only through venue
// events (Apply) or timeouts; status application is idempotent and never
// regresses from a terminal state.
type Manager struct {
	venues *venue.Registry
	br     *breaker.Breaker
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	records   map[string]*tracked // client order id
	byVenueID map[string]string   // venue + "/" + venueOrderID -> client id
}

// NewManager creates a Manager placing orders through the given registry.
func NewManager(venues *venue.Registry, br *breaker.Breaker, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		venues:    venues,
		br:        br,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "order_manager")),
		records:   make(map[string]*tracked),
		byVenueID: make(map[string]string),
	}
}

// Submit places the order on its venue and begins tracking it. On placement
// failure the returned record is already terminal (Failed).
func (m *Manager) Submit(ctx context.Context, spec domain.OrderSpec) (domain.OrderRecord, error) {
	v, err := m.venues.Get(spec.Venue)
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("orders: submit: %w", err)
	}

	now := time.Now().UTC()
	t := &tracked{
		rec: domain.OrderRecord{
			ID:          uuid.New().String(),
			Spec:        spec,
			Status:      domain.OrderStatusPending,
			SubmittedAt: now,
			LastUpdated: now,
		},
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.records[t.rec.ID] = t
	m.mu.Unlock()

	log := m.logger.With(
		slog.String("order_id", t.rec.ID),
		slog.String("venue", spec.Venue),
		slog.String("symbol", spec.Symbol),
		slog.String("side", string(spec.Side)),
	)

	ack, err := v.PlaceOrder(ctx, spec)
	if err != nil {
		log.Warn("order placement failed", slog.String("error", err.Error()))
		m.applyLocked(t.rec.ID, domain.OrderUpdate{Status: domain.OrderStatusFailed, Timestamp: time.Now().UTC()})
		return m.Get(t.rec.ID), fmt.Errorf("orders: place on %s: %w", spec.Venue, err)
	}

	m.mu.Lock()
	t.rec.VenueOrderID = ack.VenueOrderID
	if ack.Status != "" && ack.Status.Supersedes(t.rec.Status) {
		t.rec.Status = ack.Status
	} else if t.rec.Status == domain.OrderStatusPending {
		t.rec.Status = domain.OrderStatusOpen
	}
	t.rec.LastUpdated = time.Now().UTC()
	m.byVenueID[venueKey(spec.Venue, ack.VenueOrderID)] = t.rec.ID
	terminal := t.rec.Status.Terminal()
	rec := t.rec
	m.mu.Unlock()

	if terminal {
		close(t.done)
	}

	log.Info("order placed",
		slog.String("venue_order_id", ack.VenueOrderID),
		slog.String("status", string(rec.Status)),
	)
	return rec, nil
}

func venueKey(venueName, venueOrderID string) string {
	return venueName + "/" + venueOrderID
}

// Apply folds a venue-reported event into the order's record. Duplicate or
// out-of-order events are no-ops: a later-or-equal status wins and terminal
// states are never left. Fill quantities only move forward.
func (m *Manager) Apply(venueName string, upd domain.OrderUpdate) {
	m.mu.Lock()
	id, ok := m.byVenueID[venueKey(venueName, upd.VenueOrderID)]
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("update for unknown order",
			slog.String("venue", venueName),
			slog.String("venue_order_id", upd.VenueOrderID),
		)
		return
	}
	m.applyLocked(id, upd)
}

// applyLocked applies an update to the record identified by client id.
func (m *Manager) applyLocked(id string, upd domain.OrderUpdate) {
	m.mu.Lock()
	t, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return
	}

	if !upd.Status.Supersedes(t.rec.Status) {
		m.mu.Unlock()
		return
	}

	prev := t.rec.Status
	t.rec.Status = upd.Status
	if upd.FilledQuantity.GreaterThan(t.rec.FilledQuantity) {
		t.rec.FilledQuantity = upd.FilledQuantity
		t.rec.AvgFillPrice = upd.AvgFillPrice
	}
	t.rec.LastUpdated = time.Now().UTC()
	terminal := t.rec.Status.Terminal() && !prev.Terminal()
	rec := t.rec
	m.mu.Unlock()

	if terminal {
		close(t.done)
		m.logger.Info("order terminal",
			slog.String("order_id", rec.ID),
			slog.String("venue", rec.Spec.Venue),
			slog.String("status", string(rec.Status)),
			slog.String("filled", rec.FilledQuantity.String()),
		)
	}
}

// Get returns a copy of the record.
func (m *Manager) Get(id string) domain.OrderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.records[id]; ok {
		return t.rec
	}
	return domain.OrderRecord{}
}

// Await blocks until the order reaches a terminal status or the configured
// wait elapses. On timeout a cancel is issued; the order is then treated as
// failed for executor purposes once cancellation (or a fill that raced the
// cancel) is confirmed.
func (m *Manager) Await(ctx context.Context, id string) (domain.OrderRecord, error) {
	m.mu.Lock()
	t, ok := m.records[id]
	m.mu.Unlock()
	if !ok {
		return domain.OrderRecord{}, fmt.Errorf("orders: await %q: %w", id, domain.ErrNotFound)
	}

	select {
	case <-t.done:
		return m.Get(id), nil
	case <-ctx.Done():
		return m.Get(id), ctx.Err()
	case <-time.After(m.cfg.OrderWait):
	}

	// No terminal status in time: cancel and treat as a venue failure.
	rec := m.Get(id)
	m.logger.Warn("order wait timed out, cancelling",
		slog.String("order_id", id),
		slog.String("venue", rec.Spec.Venue),
	)
	m.br.RecordFailure(rec.Spec.Venue)
	m.cancel(ctx, rec)

	// Give the venue one more wait window to confirm the cancel (or report a
	// fill that beat it).
	select {
	case <-t.done:
		return m.Get(id), nil
	case <-ctx.Done():
		return m.Get(id), ctx.Err()
	case <-time.After(m.cfg.OrderWait):
	}

	m.applyLocked(id, domain.OrderUpdate{Status: domain.OrderStatusFailed, Timestamp: time.Now().UTC()})
	return m.Get(id), domain.ErrOrderTimeout
}

// cancel issues a cancel request for the order, best effort.
func (m *Manager) cancel(ctx context.Context, rec domain.OrderRecord) {
	if rec.VenueOrderID == "" {
		m.applyLocked(rec.ID, domain.OrderUpdate{Status: domain.OrderStatusFailed, Timestamp: time.Now().UTC()})
		return
	}
	v, err := m.venues.Get(rec.Spec.Venue)
	if err != nil {
		return
	}
	if err := v.CancelOrder(ctx, rec.VenueOrderID, rec.Spec.Symbol); err != nil {
		m.logger.Warn("cancel request failed",
			slog.String("order_id", rec.ID),
			slog.String("venue", rec.Spec.Venue),
			slog.String("error", err.Error()),
		)
	}
}

// CancelOpen issues cancel requests for every order that has not yet filled
// anything (Pending or Open). Used when the kill switch engages. Compensating
// orders are left working: cancelling an in-flight unwind would abandon an
// unhedged position.
func (m *Manager) CancelOpen(ctx context.Context) int {
	m.mu.Lock()
	var open []domain.OrderRecord
	for _, t := range m.records {
		if t.rec.Spec.Compensating {
			continue
		}
		switch t.rec.Status {
		case domain.OrderStatusPending, domain.OrderStatusOpen:
			open = append(open, t.rec)
		}
	}
	m.mu.Unlock()

	for _, rec := range open {
		m.cancel(ctx, rec)
	}
	if len(open) > 0 {
		m.logger.Info("cancel requested for open orders", slog.Int("count", len(open)))
	}
	return len(open)
}

// recordRetention is how long a terminal order stays queryable before Cleanup
// evicts it.
const recordRetention = 15 * time.Minute

// Cleanup evicts orders that reached a terminal status more than the
// retention window ago. Called periodically so a long-running process does
// not accumulate records without bound.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, t := range m.records {
		if !t.rec.Status.Terminal() || now.Sub(t.rec.LastUpdated) < recordRetention {
			continue
		}
		delete(m.records, id)
		if t.rec.VenueOrderID != "" {
			delete(m.byVenueID, venueKey(t.rec.Spec.Venue, t.rec.VenueOrderID))
		}
	}
}

// Run polls venue order status for every non-terminal order until the context
// is cancelled. Venues that push updates (via Apply) are simply confirmed by
// the poll.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

// pollOnce fetches status for each non-terminal order with a venue id.
func (m *Manager) pollOnce(ctx context.Context) {
	m.mu.Lock()
	var pending []domain.OrderRecord
	for _, t := range m.records {
		if !t.rec.Status.Terminal() && t.rec.VenueOrderID != "" {
			pending = append(pending, t.rec)
		}
	}
	m.mu.Unlock()

	for _, rec := range pending {
		v, err := m.venues.Get(rec.Spec.Venue)
		if err != nil {
			continue
		}
		upd, err := v.FetchOrderStatus(ctx, rec.VenueOrderID, rec.Spec.Symbol)
		if err != nil {
			m.logger.Debug("status poll failed",
				slog.String("order_id", rec.ID),
				slog.String("venue", rec.Spec.Venue),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.Apply(rec.Spec.Venue, upd)
	}
}
