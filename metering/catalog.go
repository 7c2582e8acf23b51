// Copyright 2025 ChatLens
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"context"
	"sync"
	"time"
)

// PriceStore is the slice of the repository the catalog needs
type PriceStore interface {
	ListActivePrices(ctx context.Context) ([]ModelPrice, error)
}

// Catalog caches active model prices keyed by "provider:model_id" with a
// bounded TTL. On a refresh failure it serves the last-known cache rather
// than propagating the error; only a cold-start failure surfaces. The clock
// is injectable so TTL expiry is deterministic under test.
type Catalog struct {
	store PriceStore
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	prices    map[string]ModelPrice
	fetchedAt time.Time
}

// NewCatalog creates a price catalog cache with the given TTL
func NewCatalog(store PriceStore, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// NewCatalogWithClock creates a catalog with an injected clock for testing
func NewCatalogWithClock(store PriceStore, ttl time.Duration, now func() time.Time) *Catalog {
	c := NewCatalog(store, ttl)
	if now != nil {
		c.now = now
	}
	return c
}

// Prices returns the cached price map, refreshing it when the TTL has
// elapsed. A refresh failure with a warm cache returns the stale map.
func (c *Catalog) Prices(ctx context.Context) (map[string]ModelPrice, error) {
	c.mu.RLock()
	if c.prices != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		cached := c.prices
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the write lock in case another goroutine refreshed
	if c.prices != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.prices, nil
	}

	rows, err := c.store.ListActivePrices(ctx)
	if err != nil {
		if c.prices != nil {
			// Stale-but-available beats failing the caller
			return c.prices, nil
		}
		return nil, ErrCatalogUnavailable
	}

	prices := make(map[string]ModelPrice, len(rows))
	for _, p := range rows {
		prices[PriceKey(p.Provider, p.ModelID)] = p
	}

	c.prices = prices
	c.fetchedAt = c.now()
	return prices, nil
}

// Lookup returns the price for a provider/model pair and whether one exists
func (c *Catalog) Lookup(ctx context.Context, provider, modelID string) (ModelPrice, bool, error) {
	prices, err := c.Prices(ctx)
	if err != nil {
		return ModelPrice{}, false, err
	}
	price, ok := prices[PriceKey(provider, modelID)]
	return price, ok, nil
}

// Invalidate forces the next Prices call to refetch, e.g. after an admin
// edits model prices.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices = nil
	c.fetchedAt = time.Time{}
}
