package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
)

// WeatherCacheRepository stores weather snapshots in Redis so several
// workers share one cache.
type WeatherCacheRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewWeatherCacheRepository constructs a Redis-backed weather cache.
func NewWeatherCacheRepository(client *redis.Client, prefix string, logger *zap.Logger) *WeatherCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherCacheRepository{client: client, prefix: prefix, logger: logger}
}

func (r *WeatherCacheRepository) key(key string) string {
	return r.prefix + key
}

// Get retrieves the cached snapshot or appErrors.ErrCacheMiss. Entries that no
// longer decode are removed and reported as a miss.
func (r *WeatherCacheRepository) Get(ctx context.Context, key string) (models.WeatherSnapshot, error) {
	if r.client == nil {
		return models.WeatherSnapshot{}, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.WeatherSnapshot{}, appErrors.ErrCacheMiss
		}
		return models.WeatherSnapshot{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	var snapshot models.WeatherSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		r.logger.Warn("dropping undecodable weather cache entry", zap.String("key", key), zap.Error(err))
		if delErr := r.client.Del(ctx, r.key(key)).Err(); delErr != nil {
			r.logger.Warn("failed to delete weather cache entry", zap.String("key", key), zap.Error(delErr))
		}
		return models.WeatherSnapshot{}, appErrors.ErrCacheMiss
	}
	return snapshot, nil
}

// Set marshals the snapshot and stores it with the given TTL.
func (r *WeatherCacheRepository) Set(ctx context.Context, key string, snapshot models.WeatherSnapshot, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, r.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Evict is a no-op; Redis expires keys by TTL.
func (r *WeatherCacheRepository) Evict(context.Context) error {
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *WeatherCacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
