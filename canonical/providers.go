package canonical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrMissingCredential is returned by providers whose API key is not set.
var ErrMissingCredential = errors.New("missing credential")

// Geocoder resolves an address or place name.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Coordinates, error)
}

// WeatherProvider reports the current temperature at a position.
type WeatherProvider interface {
	CurrentTempC(ctx context.Context, at Coordinates) (float64, error)
}

// SatelliteTracker reports satellite positions at the given instants.
type SatelliteTracker interface {
	Positions(ctx context.Context, timestamps []int64) ([]TracePoint, error)
}

// RateProvider reports the exchange rate quote per unit of base.
type RateProvider interface {
	Rate(ctx context.Context, base, quote string) (float64, error)
}

// StatusError is a non-2xx response from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// NewHTTPClient returns an instrumented client for provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func getJSON(ctx context.Context, client *http.Client, provider, endpoint string, params url.Values, out interface{}) error {
	if client == nil {
		client = http.DefaultClient
	}
	u := endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}

// GoogleGeocoder calls the Google Geocoding API.
type GoogleGeocoder struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Geocode returns the first result's location.
func (g *GoogleGeocoder) Geocode(ctx context.Context, query string) (Coordinates, error) {
	if g.APIKey == "" {
		return Coordinates{}, fmt.Errorf("google_geocoding: %w: GOOGLE_GEOCODING_API_KEY", ErrMissingCredential)
	}
	endpoint := g.BaseURL
	if endpoint == "" {
		endpoint = googleGeocodeURL
	}
	var payload struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
		Results      []struct {
			Geometry struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	params := url.Values{"address": {query}, "key": {g.APIKey}}
	if err := getJSON(ctx, g.Client, "google_geocoding", endpoint, params, &payload); err != nil {
		return Coordinates{}, err
	}
	if payload.Status != "OK" || len(payload.Results) == 0 {
		return Coordinates{}, fmt.Errorf("google_geocoding: geocoding failed: %s %s", payload.Status, payload.ErrorMessage)
	}
	loc := payload.Results[0].Geometry.Location
	return Coordinates{Lat: loc.Lat, Lon: loc.Lng}, nil
}

// OpenWeather calls the OpenWeather current-weather API in metric units.
type OpenWeather struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

const openWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// CurrentTempC returns main.temp.
func (w *OpenWeather) CurrentTempC(ctx context.Context, at Coordinates) (float64, error) {
	if w.APIKey == "" {
		return 0, fmt.Errorf("openweather: %w: OPENWEATHER_API_KEY", ErrMissingCredential)
	}
	endpoint := w.BaseURL
	if endpoint == "" {
		endpoint = openWeatherURL
	}
	var payload struct {
		Main struct {
			Temp *float64 `json:"temp"`
		} `json:"main"`
	}
	params := url.Values{
		"lat":   {strconv.FormatFloat(at.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(at.Lon, 'f', -1, 64)},
		"appid": {w.APIKey},
		"units": {"metric"},
	}
	if err := getJSON(ctx, w.Client, "openweather", endpoint, params, &payload); err != nil {
		return 0, err
	}
	if payload.Main.Temp == nil {
		return 0, errors.New("openweather: response missing temperature")
	}
	return *payload.Main.Temp, nil
}

// WhereTheISS calls the wheretheiss.at positions endpoint.
type WhereTheISS struct {
	BaseURL     string
	SatelliteID int
	Client      *http.Client
}

const whereTheISSURL = "https://api.wheretheiss.at/v1/satellites"

// ISSNoradID is the NORAD catalog number of the ISS.
const ISSNoradID = 25544

// Positions returns the trace sorted by timestamp.
func (w *WhereTheISS) Positions(ctx context.Context, timestamps []int64) ([]TracePoint, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}
	base := w.BaseURL
	if base == "" {
		base = whereTheISSURL
	}
	id := w.SatelliteID
	if id == 0 {
		id = ISSNoradID
	}
	ts := make([]string, len(timestamps))
	for i, t := range timestamps {
		ts[i] = strconv.FormatInt(t, 10)
	}

	var payload []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timestamp int64   `json:"timestamp"`
	}
	endpoint := fmt.Sprintf("%s/%d/positions", strings.TrimSuffix(base, "/"), id)
	params := url.Values{"timestamps": {strings.Join(ts, ",")}, "units": {"kilometers"}}
	if err := getJSON(ctx, w.Client, "wheretheiss", endpoint, params, &payload); err != nil {
		return nil, err
	}

	trace := make([]TracePoint, len(payload))
	for i, p := range payload {
		trace[i] = TracePoint{TimestampUnix: p.Timestamp, Lat: p.Latitude, Lon: p.Longitude}
	}
	sort.Slice(trace, func(i, j int) bool { return trace[i].TimestampUnix < trace[j].TimestampUnix })
	return trace, nil
}

// Frankfurter calls a Frankfurter-compatible /latest endpoint.
type Frankfurter struct {
	BaseURL string
	Client  *http.Client
}

const frankfurterURL = "https://api.frankfurter.app"

// Rate returns rates[quote] for one unit of base.
func (f *Frankfurter) Rate(ctx context.Context, base, quote string) (float64, error) {
	root := f.BaseURL
	if root == "" {
		root = frankfurterURL
	}
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	var payload struct {
		Amount float64            `json:"amount"`
		Rates  map[string]float64 `json:"rates"`
	}
	params := url.Values{"from": {base}, "to": {quote}}
	if err := getJSON(ctx, f.Client, "frankfurter", strings.TrimSuffix(root, "/")+"/latest", params, &payload); err != nil {
		return 0, err
	}
	rate, ok := payload.Rates[quote]
	if !ok {
		return 0, fmt.Errorf("frankfurter: no rate for %s/%s", base, quote)
	}
	if payload.Amount > 0 && payload.Amount != 1 {
		rate /= payload.Amount
	}
	return rate, nil
}
