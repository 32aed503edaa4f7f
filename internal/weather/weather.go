// Package weather is a thin OpenWeatherMap client covering the two queries
// the assistant answers: current conditions and a short forecast.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ForecastEntries is how many forecast slots are reported. The API returns
// 3-hour steps, so five entries cover the rest of the day.
const ForecastEntries = 5

// Conditions is one observed or forecast weather state.
type Conditions struct {
	// Location is the resolved place name.
	Location string `json:"location"`

	// Time is the forecast slot, empty for current conditions.
	Time string `json:"time,omitempty"`

	// Description is the human-readable summary ("light rain").
	Description string `json:"description"`

	// TempC is the temperature in degrees Celsius.
	TempC float64 `json:"temperature_celsius"`

	// FeelsLikeC is the perceived temperature in degrees Celsius.
	FeelsLikeC float64 `json:"feels_like_celsius"`

	// Humidity is the relative humidity percentage.
	Humidity int `json:"humidity_percent"`

	// WindSpeed is the wind speed in metres per second.
	WindSpeed float64 `json:"wind_speed_ms"`
}

// Client queries the OpenWeatherMap REST API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// Option is a functional option for [NewClient].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Client) { w.client = c }
}

// WithBaseURL overrides the API endpoint (tests).
func WithBaseURL(base string) Option {
	return func(w *Client) { w.baseURL = base }
}

// NewClient returns a Client using apiKey against the public API.
func NewClient(apiKey string, opts ...Option) *Client {
	w := &Client{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: "https://api.openweathermap.org",
		apiKey:  apiKey,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// LoadAPIKey reads the key from a secret file, trimming whitespace.
func LoadAPIKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("weather: read api key: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("weather: api key file %s is empty", path)
	}
	return key, nil
}

// owmWeather is the subset of the API response both endpoints share.
type owmWeather struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (o owmWeather) conditions(location string) Conditions {
	c := Conditions{
		Location:   location,
		TempC:      o.Main.Temp,
		FeelsLikeC: o.Main.FeelsLike,
		Humidity:   o.Main.Humidity,
		WindSpeed:  o.Wind.Speed,
	}
	if len(o.Weather) > 0 {
		c.Description = o.Weather[0].Description
	}
	return c
}

// Current returns the present conditions at location.
func (w *Client) Current(ctx context.Context, location string) (Conditions, error) {
	var decoded struct {
		owmWeather
		Name string `json:"name"`
		COD  any    `json:"cod"`
	}
	if err := w.getJSON(ctx, "/data/2.5/weather", location, &decoded); err != nil {
		return Conditions{}, err
	}
	name := decoded.Name
	if name == "" {
		name = location
	}
	return decoded.conditions(name), nil
}

// Forecast returns the next ForecastEntries slots for location.
func (w *Client) Forecast(ctx context.Context, location string) ([]Conditions, error) {
	var decoded struct {
		List []struct {
			owmWeather
			DtTxt string `json:"dt_txt"`
		} `json:"list"`
		City struct {
			Name string `json:"name"`
		} `json:"city"`
	}
	if err := w.getJSON(ctx, "/data/2.5/forecast", location, &decoded); err != nil {
		return nil, err
	}

	name := decoded.City.Name
	if name == "" {
		name = location
	}

	entries := decoded.List
	if len(entries) > ForecastEntries {
		entries = entries[:ForecastEntries]
	}
	out := make([]Conditions, 0, len(entries))
	for _, e := range entries {
		c := e.conditions(name)
		c.Time = e.DtTxt
		out = append(out, c)
	}
	return out, nil
}

func (w *Client) getJSON(ctx context.Context, path, location string, into any) error {
	v := url.Values{}
	v.Set("q", location)
	v.Set("units", "metric")
	v.Set("appid", w.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+path+"?"+v.Encode(), nil)
	if err != nil {
		return fmt.Errorf("weather: build request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("weather: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("weather: unknown location %q", location)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: get %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("weather: decode response: %w", err)
	}
	return nil
}
