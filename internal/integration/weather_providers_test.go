package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

func TestOpenMeteoClientFetchWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.Equal(t, "gfs_seamless", r.URL.Query().Get("models"))
		assert.Equal(t, "kn", r.URL.Query().Get("wind_speed_unit"))
		assert.Equal(t, "2026-06-02T15:00", r.URL.Query().Get("start_hour"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hourly":{
			"time":["2026-06-02T15:00","2026-06-02T16:00"],
			"temperature_2m":[18.5,19.0],
			"wind_speed_10m":[12.0,14.0],
			"wind_direction_10m":[300,null],
			"wind_gusts_10m":[null,22.0],
			"visibility":[16093.44,8046.72],
			"cloud_cover":[40,90],
			"cloud_cover_low":[10,75],
			"precipitation":[0,1.2],
			"weather_code":[2,95]
		}}`))
	}))
	defer srv.Close()

	client := NewOpenMeteoClient(srv.URL, "", time.Second)
	snapshot, err := client.FetchWeather(context.Background(), 37.46, -122.11, time.Date(2026, 6, 2, 15, 10, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "open-meteo:gfs_seamless", snapshot.Source)
	assert.Equal(t, 12.0, snapshot.WindSpeed)
	require.NotNil(t, snapshot.WindDirection)
	assert.Equal(t, 300.0, *snapshot.WindDirection)
	assert.Nil(t, snapshot.WindGust)
	assert.InDelta(t, 10.0, snapshot.Visibility, 1e-6)
	assert.Equal(t, "Partly cloudy", snapshot.Conditions)
	assert.Nil(t, snapshot.Ceiling)

	snapshot, err = client.FetchWeather(context.Background(), 37.46, -122.11, time.Date(2026, 6, 2, 15, 50, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 2, 16, 0, 0, 0, time.UTC), snapshot.Timestamp)
	assert.Nil(t, snapshot.WindDirection)
	assert.InDelta(t, 5.0, snapshot.Visibility, 1e-6)
	assert.Equal(t, "Thunderstorm", snapshot.Conditions)
	assert.Equal(t, "rain", snapshot.PrecipitationType)
	require.NotNil(t, snapshot.Ceiling)
}

func TestOpenMeteoClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOpenMeteoClient(srv.URL, "gfs_hrrr", time.Second).FetchWeather(context.Background(), 1, 2, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status: 503")
}

func TestOpenMeteoClientRejectsUncoveredHour(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hourly":{
			"time":["2026-06-04T15:00","2026-06-04T16:00"],
			"temperature_2m":[null,null],
			"wind_speed_10m":[null,null],
			"wind_direction_10m":[null,null],
			"wind_gusts_10m":[null,null],
			"visibility":[null,null],
			"cloud_cover":[null,null],
			"cloud_cover_low":[null,null],
			"precipitation":[null,null],
			"weather_code":[null,null]
		}}`))
	}))
	defer srv.Close()

	_, err := NewOpenMeteoClient(srv.URL, "gfs_hrrr", time.Second).FetchWeather(context.Background(), 37.46, -122.11, time.Date(2026, 6, 4, 15, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not covered by model gfs_hrrr")
}

func TestOpenMeteoClientRejectsDistantHour(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hourly":{
			"time":["2026-06-02T15:00"],
			"wind_speed_10m":[5],
			"visibility":[16093.44],
			"weather_code":[0]
		}}`))
	}))
	defer srv.Close()

	_, err := NewOpenMeteoClient(srv.URL, "", time.Second).FetchWeather(context.Background(), 37.46, -122.11, time.Date(2026, 6, 3, 15, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hourly data")
}

func TestOpenWeatherMapClientFetchWeather(t *testing.T) {
	target := time.Date(2026, 6, 8, 14, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("appid"))
		payload := map[string]interface{}{
			"list": []map[string]interface{}{
				{
					"dt":         target.Add(-3 * time.Hour).Unix(),
					"main":       map[string]interface{}{"temp": 15.0},
					"weather":    []map[string]interface{}{{"main": "Clear", "description": "clear sky"}},
					"wind":       map[string]interface{}{"speed": 2.0, "deg": 180},
					"clouds":     map[string]interface{}{"all": 0},
					"visibility": 10000,
				},
				{
					"dt":         target.Add(time.Hour).Unix(),
					"main":       map[string]interface{}{"temp": 16.0},
					"weather":    []map[string]interface{}{{"main": "Rain", "description": "moderate rain"}},
					"wind":       map[string]interface{}{"speed": 10.0, "deg": 270, "gust": 15.0},
					"clouds":     map[string]interface{}{"all": 95},
					"visibility": 4828,
					"rain":       map[string]interface{}{"3h": 6.0},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	client := NewOpenWeatherMapClient(srv.URL, "secret", time.Second)
	snapshot, err := client.FetchWeather(context.Background(), 37.46, -122.11, target)
	require.NoError(t, err)
	assert.Equal(t, "openweathermap", snapshot.Source)
	assert.InDelta(t, 19.44, snapshot.WindSpeed, 0.01)
	require.NotNil(t, snapshot.WindGust)
	assert.InDelta(t, 29.16, *snapshot.WindGust, 0.01)
	assert.InDelta(t, 3.0, snapshot.Visibility, 0.01)
	assert.Equal(t, "moderate rain", snapshot.Conditions)
	assert.Equal(t, "rain", snapshot.PrecipitationType)
	assert.InDelta(t, 2.0, snapshot.PrecipitationIntensity, 1e-9)
}

func TestOpenWeatherMapClientRejectsTargetBeyondForecast(t *testing.T) {
	last := time.Date(2026, 6, 5, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]interface{}{
			"list": []map[string]interface{}{
				{
					"dt":         last.Unix(),
					"main":       map[string]interface{}{"temp": 15.0},
					"wind":       map[string]interface{}{"speed": 2.0, "deg": 180},
					"visibility": 10000,
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	client := NewOpenWeatherMapClient(srv.URL, "secret", time.Second)
	_, err := client.FetchWeather(context.Background(), 37.46, -122.11, time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no slot within")

	snapshot, err := client.FetchWeather(context.Background(), 37.46, -122.11, last.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, last, snapshot.Timestamp)
}

func TestOpenWeatherMapClientRequiresKey(t *testing.T) {
	_, err := NewOpenWeatherMapClient("http://127.0.0.1:1", "", time.Second).FetchWeather(context.Background(), 1, 2, time.Now())
	require.Error(t, err)
}

type countingFetcher struct {
	calls int32
}

func (c *countingFetcher) Name() string { return "counting" }

func (c *countingFetcher) FetchWeather(context.Context, float64, float64, time.Time) (models.WeatherSnapshot, error) {
	atomic.AddInt32(&c.calls, 1)
	return models.WeatherSnapshot{}, nil
}

func TestRateLimitedWeatherProviderHonoursContext(t *testing.T) {
	inner := &countingFetcher{}
	limited := NewRateLimitedWeatherProvider(inner, 0.001, 1)
	assert.Equal(t, "counting", limited.Name())

	_, err := limited.FetchWeather(context.Background(), 0, 0, time.Now())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.FetchWeather(ctx, 0, 0, time.Now())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}
