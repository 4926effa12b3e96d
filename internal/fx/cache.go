package fx

import (
	"strings"
	"sync"
	"time"

	"fuzzy-reconciliation-service/internal/models"
)

// Key builds the cache key date|from|to.
func Key(date time.Time, from, to string) string {
	return date.Format(models.DateLayout) + "|" + strings.ToUpper(from) + "|" + strings.ToUpper(to)
}

// Cache holds resolved rates. Entries are never evicted or refreshed.
// The zero value is not usable; use NewCache.
type Cache struct {
	mu    sync.RWMutex
	rates map[string]models.FXRate
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{rates: make(map[string]models.FXRate)}
}

// Get returns the cached rate for key.
func (c *Cache) Get(key string) (models.FXRate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rates[key]
	return r, ok
}

// SetIfAbsent stores rate under key unless a value is already present and
// returns whichever value the cache holds afterwards.
func (c *Cache) SetIfAbsent(key string, rate models.FXRate) models.FXRate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.rates[key]; ok {
		return existing
	}
	c.rates[key] = rate
	return rate
}

// Len returns the number of cached rates.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rates)
}
