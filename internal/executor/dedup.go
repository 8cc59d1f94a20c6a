package executor

import (
	"sync"
	"time"

	"github.com/arbot-dev/arbot/internal/domain"
)

// Dedup suppresses repeated execution of the same spread. The scanner can
// re-emit an opportunity on every book tick while the discrepancy persists;
// keying on (symbol, buy venue, sell venue) keeps the engine from stacking
// attempts on one spread within the TTL window. Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // spread key -> last executed
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup that considers a spread a duplicate if it was
// executed within the given ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

func spreadKey(op domain.Opportunity) string {
	return op.Symbol + "|" + op.BuyVenue + "|" + op.SellVenue
}

// IsDuplicate returns true if the opportunity's spread was executed within
// the TTL window. Otherwise the spread is recorded and false is returned.
func (d *Dedup) IsDuplicate(op domain.Opportunity) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	key := spreadKey(op)
	if last, ok := d.seen[key]; ok {
		if now.Sub(last) < d.ttl {
			return true
		}
	}

	d.seen[key] = now
	return false
}

// Cleanup removes entries older than the TTL. Called periodically to prevent
// unbounded growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
