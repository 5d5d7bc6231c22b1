package integration

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/flightwx-scheduler/internal/models"
)

const (
	defaultOpenMeteoBaseURL = "https://api.open-meteo.com/v1"
	defaultOpenMeteoModel   = "gfs_seamless"
	openMeteoHourly         = "temperature_2m,wind_speed_10m,wind_direction_10m,wind_gusts_10m,visibility,cloud_cover,cloud_cover_low,precipitation,weather_code"
)

// OpenMeteoClient fetches high-resolution model forecasts from Open-Meteo.
type OpenMeteoClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenMeteoClient constructs a client for the given model. The seamless GFS
// model blends HRRR into the first 48 hours and runs out to 16 days.
func NewOpenMeteoClient(baseURL, model string, timeout time.Duration) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = defaultOpenMeteoBaseURL
	}
	if model == "" {
		model = defaultOpenMeteoModel
	}
	return &OpenMeteoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(timeout),
	}
}

// Name returns the source tag stamped on snapshots.
func (c *OpenMeteoClient) Name() string {
	return "open-meteo:" + c.model
}

type openMeteoResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		Temperature   []*float64 `json:"temperature_2m"`
		WindSpeed     []*float64 `json:"wind_speed_10m"`
		WindDirection []*float64 `json:"wind_direction_10m"`
		WindGusts     []*float64 `json:"wind_gusts_10m"`
		Visibility    []*float64 `json:"visibility"`
		CloudCover    []*float64 `json:"cloud_cover"`
		CloudCoverLow []*float64 `json:"cloud_cover_low"`
		Precipitation []*float64 `json:"precipitation"`
		WeatherCode   []*int     `json:"weather_code"`
	} `json:"hourly"`
}

// FetchWeather returns the hourly forecast closest to target.
func (c *OpenMeteoClient) FetchWeather(ctx context.Context, latitude, longitude float64, target time.Time) (models.WeatherSnapshot, error) {
	target = target.UTC()
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(longitude, 'f', 4, 64))
	q.Set("hourly", openMeteoHourly)
	q.Set("models", c.model)
	q.Set("wind_speed_unit", "kn")
	q.Set("timezone", "UTC")
	q.Set("start_hour", target.Truncate(time.Hour).Format("2006-01-02T15:04"))
	q.Set("end_hour", target.Truncate(time.Hour).Add(time.Hour).Format("2006-01-02T15:04"))

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/forecast?"+q.Encode(), nil)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("build open-meteo request: %w", err)
	}
	var payload openMeteoResponse
	if err := doJSON(ctx, c.client, req, &payload); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("open-meteo forecast: %w", err)
	}

	h := payload.Hourly
	idx, ts := -1, time.Time{}
	best := time.Duration(math.MaxInt64)
	for i, raw := range h.Time {
		stamp, err := time.Parse("2006-01-02T15:04", raw)
		if err != nil {
			continue
		}
		diff := stamp.Sub(target)
		if diff < 0 {
			diff = -diff
		}
		if diff < best {
			idx, ts, best = i, stamp, diff
		}
	}
	if idx < 0 || best > maxForecastSlotDistance {
		return models.WeatherSnapshot{}, fmt.Errorf("open-meteo forecast: no hourly data for %s", target.Format(time.RFC3339))
	}

	// Hours outside the model's coverage come back as null.
	wind := ptrAt(h.WindSpeed, idx)
	vis := ptrAt(h.Visibility, idx)
	code := ptrAt(h.WeatherCode, idx)
	if wind == nil || vis == nil || code == nil {
		return models.WeatherSnapshot{}, fmt.Errorf("open-meteo forecast: %s not covered by model %s", ts.Format(time.RFC3339), c.model)
	}

	snapshot := models.WeatherSnapshot{
		Temperature:   valueAt(h.Temperature, idx),
		WindSpeed:     *wind,
		WindDirection: ptrAt(h.WindDirection, idx),
		WindGust:      ptrAt(h.WindGusts, idx),
		Visibility:    *vis / metersPerStatuteMile,
		CloudCover:    valueAt(h.CloudCover, idx),
		Timestamp:     ts,
		Source:        c.Name(),
	}
	snapshot.Conditions = wmoConditions(*code)
	snapshot.PrecipitationType = wmoPrecipitation(*code)
	snapshot.PrecipitationIntensity = valueAt(h.Precipitation, idx)
	// Low cloud cover above broken implies a low ceiling.
	if valueAt(h.CloudCoverLow, idx) >= 60 {
		ceiling := 1500.0
		snapshot.Ceiling = &ceiling
	}
	return snapshot, nil
}

func valueAt(values []*float64, idx int) float64 {
	if v := ptrAt(values, idx); v != nil {
		return *v
	}
	return 0
}

func ptrAt[T any](values []*T, idx int) *T {
	if idx < len(values) && values[idx] != nil {
		v := *values[idx]
		return &v
	}
	return nil
}

// wmoConditions maps a WMO weather interpretation code to text.
func wmoConditions(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code >= 1 && code <= 3:
		return "Partly cloudy"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Rain showers"
	case code == 85 || code == 86:
		return "Snow showers"
	case code == 95:
		return "Thunderstorm"
	case code == 96 || code == 99:
		return "Thunderstorm with hail"
	default:
		return "Unknown"
	}
}

func wmoPrecipitation(code int) string {
	switch {
	case code >= 51 && code <= 67, code >= 80 && code <= 82, code >= 95:
		return "rain"
	case code >= 71 && code <= 77, code == 85, code == 86:
		return "snow"
	default:
		return ""
	}
}
