package integration

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

type weatherFetcher interface {
	Name() string
	FetchWeather(ctx context.Context, latitude, longitude float64, target time.Time) (models.WeatherSnapshot, error)
}

// RateLimitedWeatherProvider wraps a provider with a token bucket so sweeps
// stay inside the provider's request quota.
type RateLimitedWeatherProvider struct {
	provider weatherFetcher
	limiter  *rate.Limiter
}

// NewRateLimitedWeatherProvider creates a limiter of rps requests per second
// (fractional values allowed) with the given burst.
func NewRateLimitedWeatherProvider(provider weatherFetcher, rps float64, burst int) *RateLimitedWeatherProvider {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &RateLimitedWeatherProvider{
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Name returns the wrapped provider's name so cache keys stay stable.
func (r *RateLimitedWeatherProvider) Name() string {
	return r.provider.Name()
}

// FetchWeather waits for a token or context cancellation, then forwards.
func (r *RateLimitedWeatherProvider) FetchWeather(ctx context.Context, latitude, longitude float64, target time.Time) (models.WeatherSnapshot, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("rate limit wait canceled: %w", err)
	}
	return r.provider.FetchWeather(ctx, latitude, longitude, target)
}
