package tariff

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry manages registered tariff providers in priority order.
// The first registered provider is consulted first.
type Registry struct {
	providers map[string]Provider
	order     []string
	mu        sync.RWMutex
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry. Registering a name twice replaces the
// provider but keeps its original priority.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; !exists {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
}

// All returns all registered providers in priority order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.providers[name])
	}
	return result
}

// Names returns the names of all registered providers in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// ProbeAll asks every provider for its province list in parallel and reports
// each provider's outcome. A nil entry means the provider answered.
// Errors from individual providers don't fail the whole probe.
func (r *Registry) ProbeAll(ctx context.Context) map[string]error {
	providers := r.All()
	results := make(map[string]error, len(providers))
	mu := &sync.Mutex{}

	g, ctx := errgroup.WithContext(ctx)

	for _, p := range providers {
		g.Go(func() error {
			_, err := p.ListProvinces(ctx)
			mu.Lock()
			defer mu.Unlock()
			results[p.Name()] = err
			return nil // keep probing the other providers
		})
	}

	_ = g.Wait()
	return results
}
