package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

const defaultOpenWeatherMapBaseURL = "https://api.openweathermap.org/data/2.5"

// maxForecastSlotDistance bounds how far the chosen forecast slot may sit from
// the requested time. Beyond it the target is outside the forecast range.
const maxForecastSlotDistance = 90 * time.Minute

// OpenWeatherMapClient fetches 5-day/3-hour forecasts for longer lead times.
type OpenWeatherMapClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenWeatherMapClient constructs a forecast client.
func NewOpenWeatherMapClient(baseURL, apiKey string, timeout time.Duration) *OpenWeatherMapClient {
	if baseURL == "" {
		baseURL = defaultOpenWeatherMapBaseURL
	}
	return &OpenWeatherMapClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  newHTTPClient(timeout),
	}
}

// Name returns the source tag stamped on snapshots.
func (c *OpenWeatherMapClient) Name() string {
	return "openweathermap"
}

type openWeatherMapForecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64  `json:"speed"`
			Deg   *float64 `json:"deg"`
			Gust  *float64 `json:"gust"`
		} `json:"wind"`
		Clouds struct {
			All float64 `json:"all"`
		} `json:"clouds"`
		Visibility *float64 `json:"visibility"`
		Rain       *struct {
			ThreeHour float64 `json:"3h"`
		} `json:"rain"`
		Snow *struct {
			ThreeHour float64 `json:"3h"`
		} `json:"snow"`
	} `json:"list"`
}

// FetchWeather returns the forecast slot closest to target.
func (c *OpenWeatherMapClient) FetchWeather(ctx context.Context, latitude, longitude float64, target time.Time) (models.WeatherSnapshot, error) {
	if c.apiKey == "" {
		return models.WeatherSnapshot{}, fmt.Errorf("openweathermap: api key not configured")
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(latitude, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(longitude, 'f', 4, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/forecast?"+q.Encode(), nil)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("build openweathermap request: %w", err)
	}
	var payload openWeatherMapForecast
	if err := doJSON(ctx, c.client, req, &payload); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("openweathermap forecast: %w", err)
	}
	if len(payload.List) == 0 {
		return models.WeatherSnapshot{}, fmt.Errorf("openweathermap forecast: empty list")
	}

	target = target.UTC()
	best := 0
	bestDiff := absDuration(time.Unix(payload.List[0].Dt, 0).Sub(target))
	for i := 1; i < len(payload.List); i++ {
		if diff := absDuration(time.Unix(payload.List[i].Dt, 0).Sub(target)); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if bestDiff > maxForecastSlotDistance {
		return models.WeatherSnapshot{}, fmt.Errorf("openweathermap forecast: no slot within %s of %s", maxForecastSlotDistance, target.Format(time.RFC3339))
	}
	item := payload.List[best]

	snapshot := models.WeatherSnapshot{
		Temperature: item.Main.Temp,
		WindSpeed:   item.Wind.Speed * knotsPerMeterPerSec,
		Visibility:  10,
		CloudCover:  item.Clouds.All,
		Timestamp:   time.Unix(item.Dt, 0).UTC(),
		Source:      c.Name(),
	}
	if item.Wind.Deg != nil {
		deg := *item.Wind.Deg
		snapshot.WindDirection = &deg
	}
	if item.Wind.Gust != nil {
		gust := *item.Wind.Gust * knotsPerMeterPerSec
		snapshot.WindGust = &gust
	}
	if item.Visibility != nil {
		snapshot.Visibility = *item.Visibility / metersPerStatuteMile
	}
	if len(item.Weather) > 0 {
		snapshot.Conditions = item.Weather[0].Description
		if snapshot.Conditions == "" {
			snapshot.Conditions = item.Weather[0].Main
		}
	}
	switch {
	case item.Snow != nil && item.Snow.ThreeHour > 0:
		snapshot.PrecipitationType = "snow"
		snapshot.PrecipitationIntensity = item.Snow.ThreeHour / 3
	case item.Rain != nil && item.Rain.ThreeHour > 0:
		snapshot.PrecipitationType = "rain"
		snapshot.PrecipitationIntensity = item.Rain.ThreeHour / 3
	}
	return snapshot, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
