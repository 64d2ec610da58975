// Package cache memoizes provider responses for a bounded duration per data category.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tournevent/tarif/internal/clock"
)

// Category groups cached data sharing a TTL.
type Category string

const (
	// CategoryReference holds province and commune lists.
	CategoryReference Category = "reference"
	// CategoryFees holds fee tables.
	CategoryFees Category = "fees"
	// CategorySearch holds commune search results.
	CategorySearch Category = "search"
)

// TTLs configures per-category lifetimes. Reference data changes far less often
// than computed fees, hence the different defaults.
type TTLs struct {
	Reference time.Duration
	Fees      time.Duration
	Search    time.Duration
}

// DefaultTTLs returns the stock lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Reference: 30 * time.Minute,
		Fees:      60 * time.Minute,
		Search:    5 * time.Minute,
	}
}

// For returns the TTL of a category.
func (t TTLs) For(c Category) time.Duration {
	switch c {
	case CategoryReference:
		return t.Reference
	case CategoryFees:
		return t.Fees
	case CategorySearch:
		return t.Search
	default:
		return 0
	}
}

// Entry is a cached value and the time it was fetched.
type Entry[V any] struct {
	Data      V
	FetchedAt time.Time
}

// TTLCache is a concurrency-safe map whose entries are fresh for ttl after being set.
// Expiry is lazy; StartJanitor adds an optional sweep.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]Entry[V]
}

// NewTTLCache creates a cache whose entries are fresh for ttl.
func NewTTLCache[V any](ttl time.Duration, clk clock.Clock) *TTLCache[V] {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &TTLCache[V]{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]Entry[V]),
	}
}

// Get returns the value for key if it is still fresh.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.clock.Now().Sub(e.FetchedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return e.Data, true
}

// GetStale returns the entry for key regardless of age. Degraded mode serves
// stale data in preference to static data.
func (c *TTLCache[V]) GetStale(key string) (Entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Set stores value under key, replacing any previous entry.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry[V]{Data: value, FetchedAt: c.clock.Now()}
}

// Invalidate drops one key.
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll drops every entry.
func (c *TTLCache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry[V])
}

// Len returns the number of entries, fresh or stale.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes entries older than maxAge and returns how many were removed.
func (c *TTLCache[V]) Sweep(maxAge time.Duration) int {
	cutoff := c.clock.Now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.FetchedAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps entries older than maxAge every interval until ctx is done.
// maxAge should exceed the TTL when stale entries are still wanted for degraded mode.
func (c *TTLCache[V]) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Sweep(maxAge)
			}
		}
	}()
}

// Key joins parts into a normalized cache key.
func Key(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}

// Invalidator is anything that can drop all of its entries.
type Invalidator interface {
	InvalidateAll()
}

// Group invalidates a set of caches together, e.g. on force reload or after a
// write that changes tariff data.
type Group struct {
	mu      sync.Mutex
	members []Invalidator
}

// Add registers caches with the group.
func (g *Group) Add(members ...Invalidator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members = append(g.members, members...)
}

// InvalidateAll drops every entry of every member.
func (g *Group) InvalidateAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.members {
		m.InvalidateAll()
	}
}
