package canonical

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/movinture/latent-logic/agentloop"
)

type fakeGeocoder struct {
	calls int
	known map[string]Coordinates
}

func (f *fakeGeocoder) Geocode(_ context.Context, query string) (Coordinates, error) {
	f.calls++
	c, ok := f.known[query]
	if !ok {
		return Coordinates{}, errors.New("no results")
	}
	return c, nil
}

type fakeWeather struct {
	calls int
	temp  float64
}

func (f *fakeWeather) CurrentTempC(context.Context, Coordinates) (float64, error) {
	f.calls++
	return f.temp, nil
}

type fakeTracker struct {
	calls      int
	timestamps []int64
	empty      bool
}

func (f *fakeTracker) Positions(_ context.Context, ts []int64) ([]TracePoint, error) {
	f.calls++
	f.timestamps = append([]int64(nil), ts...)
	if f.empty {
		return nil, nil
	}
	out := make([]TracePoint, len(ts))
	for i, t := range ts {
		out[i] = TracePoint{TimestampUnix: t, Lat: float64(i), Lon: float64(10 * i)}
	}
	return out, nil
}

type fakeRates struct {
	calls int
	err   error
}

func (f *fakeRates) Rate(context.Context, string, string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 0.92, nil
}

var asOf = time.Unix(1_700_000_000, 0)

func testSet() agentloop.PromptSet {
	return agentloop.PromptSet{
		Version: "v1",
		Prompts: []agentloop.Prompt{
			{ID: "where_sf", Type: agentloop.PromptLocation, Text: "Where is San Francisco?", Query: "San Francisco"},
			{ID: "weather_sf", Type: agentloop.PromptWeather, Text: "Weather in SF?", Query: "San Francisco"},
			{ID: "temp_sf", Type: agentloop.PromptTemperature, Text: "Temperature in SF?", Query: "san francisco "},
			{ID: "iss_now", Type: agentloop.PromptISS, Text: "Where is the ISS?"},
			{ID: "iss_again", Type: agentloop.PromptISS, Text: "ISS position?"},
			{ID: "usd_eur", Type: agentloop.PromptExchangeRate, Text: "USD to EUR?", Base: "usd", Quote: "eur"},
		},
	}
}

func newTestBuilder(t *testing.T) (*Builder, *fakeGeocoder, *fakeWeather, *fakeTracker, *fakeRates) {
	geo := &fakeGeocoder{known: map[string]Coordinates{
		"San Francisco": {Lat: 37.7749, Lon: -122.4194},
	}}
	weather := &fakeWeather{temp: 14.5}
	tracker := &fakeTracker{}
	rates := &fakeRates{}
	b := &Builder{
		Geocoder:  geo,
		Weather:   weather,
		Satellite: tracker,
		Rates:     rates,
		Logger:    zaptest.NewLogger(t),
		Now:       func() time.Time { return asOf.Add(5 * time.Second) },
	}
	return b, geo, weather, tracker, rates
}

func TestBuildAllTypes(t *testing.T) {
	b, _, _, _, _ := newTestBuilder(t)
	snap, err := b.Build(context.Background(), testSet(), asOf)
	require.NoError(t, err)

	assert.Equal(t, "v1", snap.PromptVersion)
	assert.Equal(t, asOf.Unix(), snap.AsOfUnix)
	assert.Equal(t, asOf.Unix()+5, snap.FetchedAtUnix)
	assert.Empty(t, snap.Failures)
	assert.Equal(t, []string{"iss_again", "iss_now", "temp_sf", "usd_eur", "weather_sf", "where_sf"}, snap.PromptIDs())

	loc, ok := snap.Entry("where_sf")
	require.True(t, ok)
	c, ok := loc.Coordinates()
	require.True(t, ok)
	assert.Equal(t, Coordinates{Lat: 37.7749, Lon: -122.4194}, c)
	assert.Nil(t, loc.TempC)

	w, _ := snap.Entry("weather_sf")
	require.NotNil(t, w.TempC)
	assert.Equal(t, 14.5, *w.TempC)

	fx, _ := snap.Entry("usd_eur")
	assert.Equal(t, "USD", fx.Base)
	assert.Equal(t, "EUR", fx.Quote)
	require.NotNil(t, fx.Rate)
	assert.Equal(t, 0.92, *fx.Rate)

	iss, _ := snap.Entry("iss_now")
	assert.Len(t, iss.Trace, 5)
}

func TestBuildMemoizesProviderCalls(t *testing.T) {
	b, geo, weather, tracker, rates := newTestBuilder(t)
	_, err := b.Build(context.Background(), testSet(), asOf)
	require.NoError(t, err)

	// "San Francisco" and "san francisco " normalize to the same key.
	assert.Equal(t, 1, geo.calls)
	assert.Equal(t, 1, weather.calls)
	assert.Equal(t, 1, tracker.calls)
	assert.Equal(t, 1, rates.calls)
}

func TestBuildISSTraceWindow(t *testing.T) {
	b, _, _, tracker, _ := newTestBuilder(t)
	_, err := b.Build(context.Background(), testSet(), asOf)
	require.NoError(t, err)

	base := asOf.Unix()
	assert.Equal(t, []int64{base - 120, base - 60, base, base + 60, base + 120}, tracker.timestamps)
}

func TestBuildISSTraceCustomWindow(t *testing.T) {
	b, _, _, tracker, _ := newTestBuilder(t)
	b.TraceStep = 30 * time.Second
	b.TraceRadius = 1
	_, err := b.Build(context.Background(), testSet(), asOf)
	require.NoError(t, err)

	base := asOf.Unix()
	assert.Equal(t, []int64{base - 30, base, base + 30}, tracker.timestamps)
}

func TestBuildRecordsFailures(t *testing.T) {
	b, _, _, tracker, rates := newTestBuilder(t)
	tracker.empty = true
	rates.err = &StatusError{Provider: "frankfurter", StatusCode: 503, Body: "down"}

	set := testSet()
	set.Prompts = append(set.Prompts,
		agentloop.Prompt{ID: "where_atlantis", Type: agentloop.PromptLocation, Query: "Atlantis"},
		agentloop.Prompt{ID: "stock", Type: agentloop.PromptType("stock_price"), Text: "AAPL?"},
		agentloop.Prompt{ID: "bad_pair", Type: agentloop.PromptExchangeRate, Text: "rate?"},
	)

	snap, err := b.Build(context.Background(), set, asOf)
	require.NoError(t, err)

	for _, id := range []string{"iss_now", "iss_again", "usd_eur", "where_atlantis", "stock", "bad_pair"} {
		_, ok := snap.Entry(id)
		assert.False(t, ok, id)
	}
	_, ok := snap.Entry("where_sf")
	assert.True(t, ok)

	reasons := map[string]string{}
	for _, f := range snap.Failures {
		reasons[f.PromptID] = f.Reason
	}
	assert.Len(t, reasons, 6)
	assert.Contains(t, reasons["iss_now"], "empty trace")
	assert.Contains(t, reasons["usd_eur"], "HTTP 503")
	assert.Contains(t, reasons["stock"], "unsupported prompt type")
	assert.Contains(t, reasons["bad_pair"], "currency pair")

	// Failed lookups are memoized too.
	assert.Equal(t, 1, tracker.calls)
	assert.Equal(t, 1, rates.calls)
}

func TestBuildMissingProviders(t *testing.T) {
	b := &Builder{Logger: zaptest.NewLogger(t)}
	snap, err := b.Build(context.Background(), testSet(), asOf)
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
	require.Len(t, snap.Failures, len(testSet().Prompts))
	for _, f := range snap.Failures {
		assert.Contains(t, f.Reason, "no provider configured")
	}
}

func TestBuildEmptySet(t *testing.T) {
	b, _, _, _, _ := newTestBuilder(t)
	_, err := b.Build(context.Background(), agentloop.PromptSet{Version: "v0"}, asOf)
	require.Error(t, err)
}

type slowTracker struct{}

func (slowTracker) Positions(ctx context.Context, _ []int64) ([]TracePoint, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBuildPerCallTimeout(t *testing.T) {
	b := &Builder{Satellite: slowTracker{}, Timeout: 10 * time.Millisecond, Logger: zaptest.NewLogger(t)}
	set := agentloop.PromptSet{Version: "v1", Prompts: []agentloop.Prompt{{ID: "iss", Type: agentloop.PromptISS}}}
	snap, err := b.Build(context.Background(), set, asOf)
	require.NoError(t, err)
	require.Len(t, snap.Failures, 1)
	assert.Contains(t, snap.Failures[0].Reason, context.DeadlineExceeded.Error())
}
