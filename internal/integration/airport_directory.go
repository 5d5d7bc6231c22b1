package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAirportDirectoryURL = "https://aviationweather.gov/api/data"

// AirportDirectory resolves runway alignments from the aviationweather.gov
// airport API.
type AirportDirectory struct {
	baseURL string
	client  *http.Client
}

// NewAirportDirectory constructs a directory client.
func NewAirportDirectory(baseURL string, timeout time.Duration) *AirportDirectory {
	if baseURL == "" {
		baseURL = defaultAirportDirectoryURL
	}
	return &AirportDirectory{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient(timeout)}
}

type airportRecord struct {
	ICAOID  string `json:"icaoId"`
	Runways []struct {
		ID        string          `json:"id"`
		Dimension string          `json:"dimension"`
		Alignment json.RawMessage `json:"alignment"`
	} `json:"runways"`
}

// RunwayHeading returns the true heading of the airport's longest runway.
// A nil heading with a nil error means the airport publishes no usable
// runway data.
func (d *AirportDirectory) RunwayHeading(ctx context.Context, icao string) (*float64, error) {
	icao = strings.ToUpper(strings.TrimSpace(icao))
	if icao == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("ids", icao)
	q.Set("format", "json")
	req, err := http.NewRequest(http.MethodGet, d.baseURL+"/airport?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build airport request: %w", err)
	}
	var records []airportRecord
	if err := doJSON(ctx, d.client, req, &records); err != nil {
		return nil, fmt.Errorf("airport lookup %s: %w", icao, err)
	}

	var (
		heading *float64
		longest = -1.0
	)
	for _, record := range records {
		for _, rwy := range record.Runways {
			h, ok := runwayAlignment(rwy.Alignment, rwy.ID)
			if !ok {
				continue
			}
			length := runwayLength(rwy.Dimension)
			if length > longest {
				value := h
				heading, longest = &value, length
			}
		}
	}
	return heading, nil
}

// runwayAlignment reads the published alignment, falling back to the runway
// designator ("13/31" means 130 degrees magnetic, close enough for wind limits).
func runwayAlignment(raw json.RawMessage, designator string) (float64, bool) {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if v, err := strconv.ParseFloat(text, 64); err == nil && v >= 0 && v <= 360 {
		return v, true
	}
	end := strings.Split(designator, "/")[0]
	end = strings.TrimRight(end, "LRCW")
	if n, err := strconv.Atoi(end); err == nil && n >= 1 && n <= 36 {
		return math.Mod(float64(n*10), 360), true
	}
	return 0, false
}

func runwayLength(dimension string) float64 {
	parts := strings.SplitN(strings.ToLower(dimension), "x", 2)
	v, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0
	}
	return v
}
