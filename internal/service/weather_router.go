package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/pkg/clock"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
)

// WeatherProvider fetches a point forecast for a coordinate and time.
type WeatherProvider interface {
	Name() string
	FetchWeather(ctx context.Context, latitude, longitude float64, target time.Time) (models.WeatherSnapshot, error)
}

// WeatherRouterConfig tunes provider selection and caching.
type WeatherRouterConfig struct {
	HighResLeadTime time.Duration
	CacheTTL        time.Duration
	Timeout         time.Duration
}

const (
	defaultHighResLeadTime = 96 * time.Hour
	defaultWeatherCacheTTL = 30 * time.Minute
	defaultUpstreamTimeout = 5 * time.Second
)

// WeatherRouter picks a provider by lead time and caches its snapshots.
type WeatherRouter struct {
	highRes  WeatherProvider
	forecast WeatherProvider
	cache    WeatherCache
	cfg      WeatherRouterConfig
	clock    clock.Clock
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewWeatherRouter constructs a router. A nil cache disables caching.
func NewWeatherRouter(highRes, forecast WeatherProvider, cache WeatherCache, cfg WeatherRouterConfig, clk clock.Clock, metrics *MetricsService, logger *zap.Logger) *WeatherRouter {
	if cfg.HighResLeadTime <= 0 {
		cfg.HighResLeadTime = defaultHighResLeadTime
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultWeatherCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultUpstreamTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherRouter{
		highRes:  highRes,
		forecast: forecast,
		cache:    cache,
		cfg:      cfg,
		clock:    clk,
		metrics:  metrics,
		logger:   logger,
	}
}

// Fetch returns the snapshot for location at target and the source it came from.
func (r *WeatherRouter) Fetch(ctx context.Context, location models.Location, target time.Time) (models.WeatherSnapshot, string, error) {
	provider := r.providerFor(target)
	if provider == nil {
		return models.WeatherSnapshot{}, "", appErrors.Upstream(errors.New("no weather provider configured"), "weather provider unavailable")
	}
	source := provider.Name()
	key := weatherCacheKey(source, location.Latitude, location.Longitude, target)

	if snapshot, ok := r.cached(ctx, key); ok {
		return snapshot, source, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := r.clock.Now()
	snapshot, err := provider.FetchWeather(callCtx, location.Latitude, location.Longitude, target)
	r.metrics.ObserveUpstreamCall(source, err == nil, r.clock.Since(start))
	if err != nil {
		r.logger.Warn("weather fetch failed",
			zap.String("source", source),
			zap.String("location", location.Name),
			zap.Time("target", target),
			zap.Error(err),
		)
		return models.WeatherSnapshot{}, source, appErrors.Upstream(err, fmt.Sprintf("weather provider %s unavailable", source))
	}
	if snapshot.Source == "" {
		snapshot.Source = source
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, snapshot, r.cfg.CacheTTL); err != nil {
			r.logger.Warn("weather cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return snapshot, source, nil
}

func (r *WeatherRouter) providerFor(target time.Time) WeatherProvider {
	if target.Sub(r.clock.Now()) < r.cfg.HighResLeadTime {
		return r.highRes
	}
	return r.forecast
}

func (r *WeatherRouter) cached(ctx context.Context, key string) (models.WeatherSnapshot, bool) {
	if r.cache == nil {
		return models.WeatherSnapshot{}, false
	}
	start := time.Now()
	snapshot, err := r.cache.Get(ctx, key)
	r.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			r.logger.Warn("weather cache get failed", zap.String("key", key), zap.Error(err))
		}
		return models.WeatherSnapshot{}, false
	}
	return snapshot, true
}

func weatherCacheKey(source string, latitude, longitude float64, target time.Time) string {
	return fmt.Sprintf("weather:%s:%.2f:%.2f:%d", source, round2(latitude), round2(longitude), target.UTC().Truncate(time.Hour).Unix())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
