// Package venue provides the registry of market venues and the
// circuit-breaker gating applied to every venue call.
package venue

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arbot-dev/arbot/internal/breaker"
	"github.com/arbot-dev/arbot/internal/domain"
)

// Registry holds the venues the engine may trade on, each wrapped with
// breaker gating. Registration happens during wiring (paper mode) or by the
// embedding process before start (live mode).
type Registry struct {
	mu     sync.RWMutex
	venues map[string]*Gated
	br     *breaker.Breaker
}

// NewRegistry creates an empty Registry whose venues share the given breaker.
func NewRegistry(br *breaker.Breaker) *Registry {
	return &Registry{
		venues: make(map[string]*Gated),
		br:     br,
	}
}

// Register adds a venue, wrapping it with breaker gating. Registering the
// same name twice is an error.
func (r *Registry) Register(v domain.MarketVenue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := v.Name()
	if _, exists := r.venues[name]; exists {
		return fmt.Errorf("venue: %q already registered", name)
	}
	r.venues[name] = NewGated(v, r.br)
	return nil
}

// Get returns the gated venue by name.
func (r *Registry) Get(name string) (*Gated, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.venues[name]
	if !ok {
		return nil, fmt.Errorf("venue: %q: %w", name, domain.ErrNotFound)
	}
	return v, nil
}

// Names returns all registered venue names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.venues))
	for name := range r.venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered venues.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.venues)
}
