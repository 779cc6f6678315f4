package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movinture/latent-logic/canonical"
)

func TestExtractTemperatureC(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"It is 15°C in San Francisco.", 15},
		{"Currently -3.5 c and snowing", -3.5},
		{"about 59 °F right now", 15},
		{"The temperature is 21.4C, humidity 80%", 21.4},
		{"It is 68 Fahrenheit in Paris.", 20},
		{"Expect 20 Celsius this afternoon", 20},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, err := ExtractTemperatureC(tc.text)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestExtractTemperatureNotFound(t *testing.T) {
	for _, text := range []string{"It is warm and sunny.", "humidity is 80%"} {
		_, err := ExtractTemperatureC(text)
		var ee *ExtractionError
		require.True(t, errors.As(err, &ee), text)
		assert.Equal(t, ReasonNoTemperatureFound, ee.Reason)
	}
}

func TestExtractCoordinates(t *testing.T) {
	cases := []struct {
		name string
		text string
		want canonical.Coordinates
	}{
		{"hemispheres", "Times Square is at 40.7580° N, 73.9855° W.", canonical.Coordinates{Lat: 40.758, Lon: -73.9855}},
		{"southern eastern", "Sydney: 33.8688 S 151.2093 E", canonical.Coordinates{Lat: -33.8688, Lon: 151.2093}},
		{"decimals", "Coordinates: 37.7749, -122.4194", canonical.Coordinates{Lat: 37.7749, Lon: -122.4194}},
		{"lowercase", "51.5074n, 0.1278w", canonical.Coordinates{Lat: 51.5074, Lon: -0.1278}},
		{"spelled out", "The Empire State Building is at 40.7484 North, 73.9857 West.", canonical.Coordinates{Lat: 40.7484, Lon: -73.9857}},
		{"spelled out south east", "Cape Town lies at 33.9249 South, 18.4241 East", canonical.Coordinates{Lat: -33.9249, Lon: 18.4241}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractCoordinates(tc.text)
			require.NoError(t, err)
			assert.InDelta(t, tc.want.Lat, got.Lat, 1e-9)
			assert.InDelta(t, tc.want.Lon, got.Lon, 1e-9)
		})
	}
}

func TestExtractCoordinatesFailures(t *testing.T) {
	for _, text := range []string{"somewhere in the city", "only 40.71 here", "123.4, 200.5"} {
		_, err := ExtractCoordinates(text)
		var ee *ExtractionError
		require.True(t, errors.As(err, &ee), text)
		assert.Equal(t, ReasonNoCoordinatesFound, ee.Reason)
	}
}

func TestExtractRate(t *testing.T) {
	cases := []struct {
		text  string
		quote string
		want  float64
	}{
		{"1 USD = 0.9213 EUR", "EUR", 0.9213},
		{"The rate is EUR 0.92 per dollar", "eur", 0.92},
		{"USD/EUR is trading at 0.91", "EUR", 0.91},
		{"1 USD buys 151.2 JPY today", "JPY", 151.2},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, err := ExtractRate(tc.text, tc.quote)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}

	_, err := ExtractRate("no idea", "EUR")
	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, ReasonNoRateFound, ee.Reason)
}
