package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/pkg/clock"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
)

// WeatherCache stores snapshots by router key. Get returns
// appErrors.ErrCacheMiss when no live entry exists.
type WeatherCache interface {
	Get(ctx context.Context, key string) (models.WeatherSnapshot, error)
	Set(ctx context.Context, key string, snapshot models.WeatherSnapshot, ttl time.Duration) error
	Evict(ctx context.Context) error
}

const defaultWeatherCacheMaxEntries = 100

type weatherCacheEntry struct {
	snapshot  models.WeatherSnapshot
	expiresAt time.Time
}

// MemoryWeatherCache is a process-wide TTL cache. Once it holds more than
// maxEntries items every write sweeps expired entries.
type MemoryWeatherCache struct {
	mu         sync.RWMutex
	entries    map[string]weatherCacheEntry
	maxEntries int
	clock      clock.Clock
}

// NewMemoryWeatherCache constructs an in-memory cache.
func NewMemoryWeatherCache(maxEntries int, clk clock.Clock) *MemoryWeatherCache {
	if maxEntries <= 0 {
		maxEntries = defaultWeatherCacheMaxEntries
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryWeatherCache{
		entries:    make(map[string]weatherCacheEntry),
		maxEntries: maxEntries,
		clock:      clk,
	}
}

// Get returns the live snapshot stored under key.
func (c *MemoryWeatherCache) Get(_ context.Context, key string) (models.WeatherSnapshot, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.clock.Now().Before(entry.expiresAt) {
		return models.WeatherSnapshot{}, appErrors.ErrCacheMiss
	}
	return entry.snapshot, nil
}

// Set stores snapshot under key for ttl.
func (c *MemoryWeatherCache) Set(ctx context.Context, key string, snapshot models.WeatherSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = weatherCacheEntry{snapshot: snapshot, expiresAt: c.clock.Now().Add(ttl)}
	over := len(c.entries) > c.maxEntries
	c.mu.Unlock()
	if over {
		return c.Evict(ctx)
	}
	return nil
}

// Evict drops expired entries.
func (c *MemoryWeatherCache) Evict(context.Context) error {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryWeatherCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
