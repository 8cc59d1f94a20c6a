// Package book holds the latest top-of-book snapshot per (venue, symbol).
package book

import (
	"sync"

	"github.com/arbot-dev/arbot/internal/domain"
)

type key struct {
	venue  string
	symbol string
}

// Store keeps the most recent snapshot for every (venue, symbol) pair.
// Snapshots only ever move forward in time: an update older than or equal to
// the stored snapshot for the same key is discarded. Reads are concurrent;
// writes are serialized.
type Store struct {
	mu    sync.RWMutex
	books map[key]domain.BookSnapshot
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{books: make(map[key]domain.BookSnapshot)}
}

// Update replaces the stored snapshot for (venue, symbol) iff the new one is
// strictly newer. It returns whether the update was applied and, when a
// previous snapshot existed, that snapshot.
func (s *Store) Update(snap domain.BookSnapshot) (applied bool, prev domain.BookSnapshot, hadPrev bool) {
	k := key{venue: snap.Venue, symbol: snap.Symbol}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hadPrev = s.books[k]
	if hadPrev && !snap.Timestamp.After(prev.Timestamp) {
		return false, prev, hadPrev
	}
	s.books[k] = snap
	return true, prev, hadPrev
}

// Get returns the latest snapshot for (venue, symbol), or false when absent.
func (s *Store) Get(venue, symbol string) (domain.BookSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.books[key{venue: venue, symbol: symbol}]
	return snap, ok
}

// BySymbol returns the latest snapshot of every venue quoting the symbol.
func (s *Store) BySymbol(symbol string) []domain.BookSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []domain.BookSnapshot
	for k, snap := range s.books {
		if k.symbol == symbol {
			snaps = append(snaps, snap)
		}
	}
	return snaps
}
