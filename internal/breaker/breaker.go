// Package breaker implements the per-venue circuit breaker gating whether a
// venue may currently be used.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/arbot-dev/arbot/internal/domain"
)

// State is the circuit state for one venue.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds breaker tuning parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	FailureThreshold int
	// BackoffBase is the open-state duration after the threshold is first
	// reached; it doubles with every further failure.
	BackoffBase time.Duration
	// BackoffMax caps the backoff interval.
	BackoffMax time.Duration
}

type venueState struct {
	state               State
	consecutiveFailures int
	openedAt            time.Time
	nextRetryAt         time.Time
	trialInFlight       bool
}

// Breaker tracks failure state per venue. Closed passes calls through; Open
// rejects them until the backoff elapses; HalfOpen permits exactly one trial
// call. The clock is injectable so transitions are testable without waiting
// on real backoff intervals.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	now    func() time.Time
	venues map[string]*venueState
	logger *slog.Logger
}

// New creates a Breaker with the given config. All venues start Closed.
func New(cfg Config, logger *slog.Logger) *Breaker {
	return &Breaker{
		cfg:    cfg,
		now:    time.Now,
		venues: make(map[string]*venueState),
		logger: logger.With(slog.String("component", "breaker")),
	}
}

// WithClock replaces the time source. Must be called before use; intended for
// tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

func (b *Breaker) venue(name string) *venueState {
	vs, ok := b.venues[name]
	if !ok {
		vs = &venueState{state: StateClosed}
		b.venues[name] = vs
	}
	return vs
}

// Allow reports whether a call to the venue may proceed right now. In
// HalfOpen only a single trial call is admitted until its outcome is
// recorded.
func (b *Breaker) Allow(venue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	vs := b.venue(venue)
	b.maybeHalfOpen(venue, vs)

	switch vs.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if vs.trialInFlight {
			return domain.ErrVenueUnavailable
		}
		vs.trialInFlight = true
		return nil
	default:
		return domain.ErrVenueUnavailable
	}
}

// maybeHalfOpen transitions Open→HalfOpen once the backoff has elapsed.
// Caller holds the lock.
func (b *Breaker) maybeHalfOpen(venue string, vs *venueState) {
	if vs.state == StateOpen && !b.now().Before(vs.nextRetryAt) {
		vs.state = StateHalfOpen
		vs.trialInFlight = false
		b.logger.Info("circuit half-open", slog.String("venue", venue))
	}
}

// RecordSuccess resets the venue to Closed.
func (b *Breaker) RecordSuccess(venue string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vs := b.venue(venue)
	if vs.state != StateClosed {
		b.logger.Info("circuit closed", slog.String("venue", venue))
	}
	vs.state = StateClosed
	vs.consecutiveFailures = 0
	vs.trialInFlight = false
}

// RecordFailure notes a venue-call failure. At the configured threshold the
// circuit opens with exponential backoff; a failed HalfOpen trial re-opens it
// with the backoff increased.
func (b *Breaker) RecordFailure(venue string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vs := b.venue(venue)
	vs.consecutiveFailures++
	vs.trialInFlight = false

	if vs.state == StateHalfOpen || vs.consecutiveFailures >= b.cfg.FailureThreshold {
		b.open(venue, vs)
	}
}

// ForceOpen opens the circuit immediately regardless of failure count. Used
// when an unwind order fails: the venue is unusable until an operator or the
// backoff interval says otherwise.
func (b *Breaker) ForceOpen(venue string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vs := b.venue(venue)
	if vs.consecutiveFailures < b.cfg.FailureThreshold {
		vs.consecutiveFailures = b.cfg.FailureThreshold
	}
	b.open(venue, vs)
}

// open transitions to Open and schedules the retry. Caller holds the lock.
func (b *Breaker) open(venue string, vs *venueState) {
	now := b.now()
	backoff := b.backoff(vs.consecutiveFailures)
	vs.state = StateOpen
	vs.openedAt = now
	vs.nextRetryAt = now.Add(backoff)
	vs.trialInFlight = false
	b.logger.Warn("circuit open",
		slog.String("venue", venue),
		slog.Int("consecutive_failures", vs.consecutiveFailures),
		slog.Duration("backoff", backoff),
	)
}

// backoff returns base·2^(failures−threshold), capped at the maximum.
func (b *Breaker) backoff(failures int) time.Duration {
	d := b.cfg.BackoffBase
	for i := b.cfg.FailureThreshold; i < failures; i++ {
		d *= 2
		if d >= b.cfg.BackoffMax {
			return b.cfg.BackoffMax
		}
	}
	if d > b.cfg.BackoffMax {
		return b.cfg.BackoffMax
	}
	return d
}

// State returns the venue's current state, applying any due Open→HalfOpen
// transition first.
func (b *Breaker) State(venue string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	vs := b.venue(venue)
	b.maybeHalfOpen(venue, vs)
	return vs.state
}

// Usable reports whether the venue may be considered for new opportunities
// (Closed or HalfOpen).
func (b *Breaker) Usable(venue string) bool {
	s := b.State(venue)
	return s == StateClosed || s == StateHalfOpen
}

// Snapshot returns the current state of every known venue.
func (b *Breaker) Snapshot() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]State, len(b.venues))
	for name, vs := range b.venues {
		b.maybeHalfOpen(name, vs)
		out[name] = vs.state
	}
	return out
}
