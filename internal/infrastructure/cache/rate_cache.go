// Package cache holds small in-memory caches for values that are expensive
// to look up and stable over a run: exchange-rate quotes and folder ids.
package cache

import (
	"sync"
	"time"

	"adva/ms_conciliacion_core/internal/core/rates"
)

type rateEntry struct {
	quote     rates.Quote
	expiresAt time.Time
}

// RateCache provides thread-safe caching of daily exchange-rate quotes keyed
// by date. Historical quotes never change, but a generous TTL keeps the cache
// from growing without bound across long runs.
type RateCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]rateEntry
}

// NewRateCache creates a rate cache with the given entry TTL.
func NewRateCache(ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RateCache{
		ttl:     ttl,
		entries: make(map[string]rateEntry),
	}
}

func dateKey(date time.Time) string {
	return date.Format("2006-01-02")
}

// Get returns the cached quote for a date if it's still valid.
func (c *RateCache) Get(date time.Time) (rates.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[dateKey(date)]
	if !ok || time.Now().After(entry.expiresAt) {
		return rates.Quote{}, false
	}
	return entry.quote, true
}

// Set stores a quote for a date.
func (c *RateCache) Set(date time.Time, quote rates.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[dateKey(date)] = rateEntry{
		quote:     quote,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Clear removes all cached quotes.
func (c *RateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]rateEntry)
}

// Len returns the number of cached entries, expired ones included.
func (c *RateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
