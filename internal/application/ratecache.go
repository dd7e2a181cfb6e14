package application

import (
	"encoding/json"
	"log/slog"

	"github.com/coocood/freecache"

	"github.com/ericfisherdev/campaignwatch/internal/domain/model"
)

// defaultRateCacheSize is enough for several years of daily rate tables.
const defaultRateCacheSize = 8 * 1024 * 1024

// RateCache is the in-process exchange-rate cache, keyed by ISO date. Tables are
// stored JSON-encoded in a freecache segment map, so concurrent fetch workers
// can share it without extra locking. Entries do not expire.
type RateCache struct {
	cache *freecache.Cache
}

// NewRateCache creates a RateCache of size bytes. A size of zero uses the default.
func NewRateCache(size int) *RateCache {
	if size <= 0 {
		size = defaultRateCacheSize
	}
	return &RateCache{cache: freecache.NewCache(size)}
}

// Get returns the cached table for date, or nil when absent.
func (c *RateCache) Get(date string) model.RateTable {
	data, err := c.cache.Get([]byte(date))
	if err != nil {
		return nil
	}

	var rates model.RateTable
	if err := json.Unmarshal(data, &rates); err != nil {
		slog.Warn("discarding corrupt cached rate table", "date", date, "error", err)
		c.cache.Del([]byte(date))
		return nil
	}
	return rates
}

// Set stores the table for date. The last writer wins.
func (c *RateCache) Set(date string, rates model.RateTable) {
	data, err := json.Marshal(rates)
	if err != nil {
		slog.Warn("cannot cache rate table", "date", date, "error", err)
		return
	}
	if err := c.cache.Set([]byte(date), data, 0); err != nil {
		slog.Warn("cannot cache rate table", "date", date, "error", err)
	}
}

// Len returns the number of cached tables.
func (c *RateCache) Len() int64 {
	return c.cache.EntryCount()
}
