// Package quote provides the price-observation seam the scheduler polls
// through and the short-lived cache that keeps repeated lookups for the
// same symbol from hitting the upstream source every check cycle.
package quote

import (
	"context"
	"sync"
	"time"
)

// Source fetches a current price for a symbol from an upstream feed.
type Source interface {
	FetchPrice(ctx context.Context, symbol string) (price float64, observedAt time.Time, err error)
}

// Quote is one cached price observation.
type Quote struct {
	Price      float64
	ObservedAt time.Time
}

// Cache holds the most recent observation per symbol for a short TTL,
// so a scheduling tick covering many triggers on the same symbol issues
// one upstream fetch instead of one per trigger.
type Cache struct {
	ttl        time.Duration
	sweepEvery time.Duration
	mu         sync.RWMutex
	entries    map[string]Quote
	lastSwept  time.Time
}

// NewCache builds a cache with the given per-symbol freshness window.
// Entries older than 6x the TTL are reclaimed on an opportunistic sweep,
// throttled to run at most once per minute.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:        ttl,
		sweepEvery: time.Minute,
		entries:    make(map[string]Quote),
	}
}

// Get returns a cached quote if it is still within the TTL.
func (c *Cache) Get(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.entries[symbol]
	if !ok || time.Since(q.ObservedAt) > c.ttl {
		return Quote{}, false
	}
	return q, true
}

// Put stores a fresh observation, overwriting any existing entry.
func (c *Cache) Put(symbol string, price float64, observedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = Quote{Price: price, ObservedAt: observedAt}
}

// Sweep reclaims entries older than 6x the TTL, but only actually scans
// the map if it has been at least sweepEvery since the last sweep. The
// scheduler calls this on every tick; most calls are a no-op.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastSwept) < c.sweepEvery {
		return
	}
	c.lastSwept = time.Now()

	staleAfter := 6 * c.ttl
	for symbol, q := range c.entries {
		if time.Since(q.ObservedAt) > staleAfter {
			delete(c.entries, symbol)
		}
	}
}
