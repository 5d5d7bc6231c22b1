package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
	"github.com/noah-isme/flightwx-scheduler/pkg/clock"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
)

type providerStub struct {
	name  string
	mu    sync.Mutex
	calls int
	err   error
	block bool
}

func (p *providerStub) Name() string { return p.name }

func (p *providerStub) FetchWeather(ctx context.Context, lat, lon float64, target time.Time) (models.WeatherSnapshot, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.block {
		<-ctx.Done()
		return models.WeatherSnapshot{}, ctx.Err()
	}
	if p.err != nil {
		return models.WeatherSnapshot{}, p.err
	}
	return models.WeatherSnapshot{Visibility: 10, WindSpeed: 5, Timestamp: target}, nil
}

func (p *providerStub) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var kpao = models.Location{Name: "Palo Alto", Latitude: 37.4611, Longitude: -122.1130}

func newTestRouter(clk clock.Clock, highRes, forecast WeatherProvider, cfg WeatherRouterConfig) (*WeatherRouter, *MemoryWeatherCache) {
	cache := NewMemoryWeatherCache(100, clk)
	return NewWeatherRouter(highRes, forecast, cache, cfg, clk, NewMetricsService(), nil), cache
}

func TestWeatherRouterCachesWithinTTL(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	highRes := &providerStub{name: "open-meteo"}
	router, _ := newTestRouter(clk, highRes, &providerStub{name: "openweathermap"}, WeatherRouterConfig{})
	target := now.Add(26 * time.Hour)

	first, source, err := router.Fetch(context.Background(), kpao, target)
	require.NoError(t, err)
	assert.Equal(t, "open-meteo", source)
	assert.Equal(t, "open-meteo", first.Source)

	clk.Advance(20 * time.Minute)
	second, _, err := router.Fetch(context.Background(), kpao, target.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, highRes.Calls())

	clk.Advance(11 * time.Minute)
	_, _, err = router.Fetch(context.Background(), kpao, target)
	require.NoError(t, err)
	assert.Equal(t, 2, highRes.Calls())

	snapshot := router.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(2), snapshot.CacheMisses)
}

type slowProvider struct {
	clk   *clock.Mock
	delay time.Duration
}

func (p *slowProvider) Name() string { return "open-meteo" }

func (p *slowProvider) FetchWeather(_ context.Context, _, _ float64, target time.Time) (models.WeatherSnapshot, error) {
	p.clk.Advance(p.delay)
	return models.WeatherSnapshot{Visibility: 10, Timestamp: target}, nil
}

func TestWeatherRouterMeasuresUpstreamLatencyOnClock(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	router, _ := newTestRouter(clk, &slowProvider{clk: clk, delay: 250 * time.Millisecond}, &providerStub{name: "openweathermap"}, WeatherRouterConfig{})

	_, _, err := router.Fetch(context.Background(), kpao, now.Add(26*time.Hour))
	require.NoError(t, err)

	snapshot := router.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.UpstreamCalls)
	assert.InDelta(t, 250.0, snapshot.AverageUpstreamDurationMs, 1e-9)
}

func TestWeatherRouterSelectsProviderByLeadTime(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	highRes := &providerStub{name: "open-meteo"}
	forecast := &providerStub{name: "openweathermap"}
	router, _ := newTestRouter(clk, highRes, forecast, WeatherRouterConfig{})

	_, source, err := router.Fetch(context.Background(), kpao, now.Add(95*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "open-meteo", source)

	_, source, err = router.Fetch(context.Background(), kpao, now.Add(96*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "openweathermap", source)

	assert.Equal(t, 1, highRes.Calls())
	assert.Equal(t, 1, forecast.Calls())
}

func TestWeatherRouterKeyRoundsCoordinates(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	highRes := &providerStub{name: "open-meteo"}
	router, _ := newTestRouter(clk, highRes, &providerStub{name: "openweathermap"}, WeatherRouterConfig{})
	target := now.Add(4 * time.Hour)

	near := models.Location{Name: "Palo Alto", Latitude: 37.4649, Longitude: -122.1149}
	_, _, err := router.Fetch(context.Background(), kpao, target)
	require.NoError(t, err)
	_, _, err = router.Fetch(context.Background(), near, target)
	require.NoError(t, err)
	assert.Equal(t, 1, highRes.Calls())

	assert.Equal(t,
		weatherCacheKey("open-meteo", 37.4611, -122.1130, target),
		weatherCacheKey("open-meteo", 37.4649, -122.1149, target.Add(59*time.Minute)))
	assert.NotEqual(t,
		weatherCacheKey("open-meteo", 37.4611, -122.1130, target),
		weatherCacheKey("openweathermap", 37.4611, -122.1130, target))
}

func TestWeatherRouterUpstreamFailure(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	highRes := &providerStub{name: "open-meteo", err: errors.New("boom")}
	router, cache := newTestRouter(clk, highRes, &providerStub{name: "openweathermap"}, WeatherRouterConfig{})

	_, _, err := router.Fetch(context.Background(), kpao, now.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUpstream))
	assert.Equal(t, 0, cache.Len())

	_, _, err = router.Fetch(context.Background(), kpao, now.Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, 2, highRes.Calls())
}

func TestWeatherRouterTimeout(t *testing.T) {
	now := time.Now().UTC()
	highRes := &providerStub{name: "open-meteo", block: true}
	router, _ := newTestRouter(clock.NewMock(now), highRes, &providerStub{name: "openweathermap"}, WeatherRouterConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, _, err := router.Fetch(context.Background(), kpao, now.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUpstream))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(1), router.metrics.Snapshot().UpstreamFailures)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) (models.WeatherSnapshot, error) {
	return models.WeatherSnapshot{}, errors.New("redis down")
}

func (failingCache) Set(context.Context, string, models.WeatherSnapshot, time.Duration) error {
	return errors.New("redis down")
}

func (failingCache) Evict(context.Context) error { return nil }

func TestWeatherRouterCacheErrorsDegradeToMiss(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	highRes := &providerStub{name: "open-meteo"}
	router := NewWeatherRouter(highRes, &providerStub{name: "openweathermap"}, failingCache{}, WeatherRouterConfig{}, clk, nil, nil)

	snapshot, _, err := router.Fetch(context.Background(), kpao, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 10.0, snapshot.Visibility)
}

func TestMemoryWeatherCacheEvictsExpiredOverCapacity(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	cache := NewMemoryWeatherCache(2, clk)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", models.WeatherSnapshot{}, time.Minute))
	require.NoError(t, cache.Set(ctx, "b", models.WeatherSnapshot{}, time.Hour))
	clk.Advance(2 * time.Minute)

	_, err := cache.Get(ctx, "a")
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Set(ctx, "c", models.WeatherSnapshot{}, time.Hour))
	assert.Equal(t, 2, cache.Len())

	_, err = cache.Get(ctx, "b")
	assert.NoError(t, err)
}
