package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
	appErrors "github.com/noah-isme/flightwx-scheduler/pkg/errors"
)

// memoryRedis answers GET, SET and DEL from a map so commands never reach the network.
type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (m *memoryRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (m *memoryRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		args := cmd.Args()
		switch c := cmd.(type) {
		case *redis.StringCmd:
			value, ok := m.data[args[1].(string)]
			if !ok {
				c.SetErr(redis.Nil)
				return redis.Nil
			}
			c.SetVal(value)
		case *redis.StatusCmd:
			switch v := args[2].(type) {
			case []byte:
				m.data[args[1].(string)] = string(v)
			case string:
				m.data[args[1].(string)] = v
			}
			c.SetVal("OK")
		case *redis.IntCmd:
			var removed int64
			for _, arg := range args[1:] {
				if _, ok := m.data[arg.(string)]; ok {
					delete(m.data, arg.(string))
					removed++
				}
			}
			c.SetVal(removed)
		default:
			return next(ctx, cmd)
		}
		return nil
	}
}

func newMemoryRedisClient() (*redis.Client, *memoryRedis) {
	store := &memoryRedis{data: map[string]string{}}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(store)
	return client, store
}

func TestWeatherCacheRepositorySetGet(t *testing.T) {
	client, store := newMemoryRedisClient()
	repo := NewWeatherCacheRepository(client, "flightwx:", nil)
	ctx := context.Background()

	_, err := repo.Get(ctx, "open-meteo|37.46|-122.11|2026-06-02T15")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)

	direction := 300.0
	snapshot := models.WeatherSnapshot{
		Visibility:    6,
		WindSpeed:     12,
		WindDirection: &direction,
		Conditions:    "Partly cloudy",
		Timestamp:     time.Date(2026, 6, 2, 15, 0, 0, 0, time.UTC),
		Source:        "open-meteo:gfs_seamless",
	}
	require.NoError(t, repo.Set(ctx, "open-meteo|37.46|-122.11|2026-06-02T15", snapshot, 30*time.Minute))
	assert.Contains(t, store.data, "flightwx:open-meteo|37.46|-122.11|2026-06-02T15")

	got, err := repo.Get(ctx, "open-meteo|37.46|-122.11|2026-06-02T15")
	require.NoError(t, err)
	assert.Equal(t, snapshot.WindSpeed, got.WindSpeed)
	require.NotNil(t, got.WindDirection)
	assert.Equal(t, direction, *got.WindDirection)
	assert.True(t, snapshot.Timestamp.Equal(got.Timestamp))
}

func TestWeatherCacheRepositoryDropsUndecodableEntry(t *testing.T) {
	client, store := newMemoryRedisClient()
	store.data["flightwx:broken"] = "{not json"
	core, logs := observer.New(zapcore.WarnLevel)
	repo := NewWeatherCacheRepository(client, "flightwx:", zap.New(core))

	_, err := repo.Get(context.Background(), "broken")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.NotContains(t, store.data, "flightwx:broken")

	entries := logs.FilterMessage("dropping undecodable weather cache entry").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].ContextMap()["key"])
}
