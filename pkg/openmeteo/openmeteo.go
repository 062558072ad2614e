// Package openmeteo wraps the Open-Meteo public HTTP APIs: current weather
// by coordinates and place-name geocoding. Both endpoints are
// unauthenticated GETs with query parameters.
package openmeteo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Default endpoint bases. Overridable for tests.
const (
	DefaultForecastBase  = "https://api.open-meteo.com/v1"
	DefaultGeocodingBase = "https://geocoding-api.open-meteo.com/v1"
)

// Current is the current-weather reading for a location.
type Current struct {
	Temperature float64 `json:"temperature"`
	WeatherCode int     `json:"weatherCode"`
}

// Location is one geocoding candidate.
type Location struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Region    string  `json:"region,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Client talks to the Open-Meteo forecast and geocoding endpoints.
type Client struct {
	ForecastBase  string
	GeocodingBase string
	HTTPClient    *http.Client
}

// NewClient returns a client against the public endpoints.
func NewClient() *Client {
	return &Client{
		ForecastBase:  DefaultForecastBase,
		GeocodingBase: DefaultGeocodingBase,
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

// Forecast fetches the current temperature and weather condition code for
// the given coordinates.
func (c *Client) Forecast(ctx context.Context, lat, lon float64) (Current, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current", "temperature_2m,weather_code")
	q.Set("timezone", "auto")

	var out forecastResponse
	if err := c.get(ctx, c.ForecastBase+"/forecast?"+q.Encode(), &out); err != nil {
		return Current{}, err
	}
	return Current{Temperature: out.Current.Temperature, WeatherCode: out.Current.WeatherCode}, nil
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Admin1    string  `json:"admin1"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

// Geocode resolves a free-text place name to up to count candidates. An
// unknown place returns an empty slice, not an error.
func (c *Client) Geocode(ctx context.Context, name string, count int) ([]Location, error) {
	if count <= 0 {
		count = 1
	}
	q := url.Values{}
	q.Set("name", name)
	q.Set("count", strconv.Itoa(count))
	q.Set("language", "en")
	q.Set("format", "json")

	var out geocodingResponse
	if err := c.get(ctx, c.GeocodingBase+"/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	locs := make([]Location, 0, len(out.Results))
	for _, r := range out.Results {
		locs = append(locs, Location{
			Name:      r.Name,
			Country:   r.Country,
			Region:    r.Admin1,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
		})
	}
	return locs, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open-meteo returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
