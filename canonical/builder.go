// Package canonical fetches ground truth for a prompt set and assembles it
// into an immutable Snapshot.
package canonical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/movinture/latent-logic/agentloop"
)

// Defaults for Builder.
const (
	DefaultTimeout     = 20 * time.Second
	DefaultTraceStep   = 60 * time.Second
	DefaultTraceRadius = 2
)

// Builder issues provider calls for a prompt set. A nil provider makes the
// prompt types it serves unavailable.
type Builder struct {
	Geocoder  Geocoder
	Weather   WeatherProvider
	Satellite SatelliteTracker
	Rates     RateProvider

	// Timeout bounds every provider call.
	Timeout time.Duration
	// TraceStep and TraceRadius select ISS positions at
	// as_of + k*TraceStep for k in [-TraceRadius, TraceRadius].
	TraceStep   time.Duration
	TraceRadius int

	Logger *zap.Logger
	// Now stamps FetchedAtUnix; defaults to time.Now.
	Now func() time.Time
}

// errNoProvider marks a prompt type with no configured provider.
var errNoProvider = errors.New("no provider configured")

// Build fetches ground truth for every prompt in set. Provider failures
// omit the affected entries and are listed in Snapshot.Failures; Build only
// fails on an empty set.
func (b *Builder) Build(ctx context.Context, set agentloop.PromptSet, asOf time.Time) (*Snapshot, error) {
	if len(set.Prompts) == 0 {
		return nil, fmt.Errorf("canonical: prompt set %q has no prompts", set.Version)
	}
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.Now
	if now == nil {
		now = time.Now
	}

	f := &fetcher{b: b, geo: map[string]result[Coordinates]{}, temps: map[string]result[float64]{}, rates: map[string]result[float64]{}}
	snap := &Snapshot{
		PromptVersion: set.Version,
		AsOfUnix:      asOf.Unix(),
		Entries:       map[string]Entry{},
	}

	for _, p := range set.Prompts {
		entry, err := f.entry(ctx, p, asOf)
		if err != nil {
			logger.Warn("canonical entry unavailable",
				zap.String("prompt_id", p.ID),
				zap.String("type", string(p.Type)),
				zap.Error(err),
			)
			snap.Failures = append(snap.Failures, Failure{PromptID: p.ID, Type: p.Type, Reason: err.Error()})
			continue
		}
		snap.Entries[p.ID] = entry
	}

	snap.FetchedAtUnix = now().Unix()
	logger.Info("canonical snapshot built",
		zap.String("prompt_version", set.Version),
		zap.Int("entries", len(snap.Entries)),
		zap.Int("failures", len(snap.Failures)),
	)
	return snap, nil
}

type result[T any] struct {
	value T
	err   error
}

// fetcher memoizes provider calls so each distinct (type, query) is fetched
// once per build, failures included.
type fetcher struct {
	b     *Builder
	geo   map[string]result[Coordinates]
	temps map[string]result[float64]
	rates map[string]result[float64]
	trace *result[[]TracePoint]
}

func (f *fetcher) call(ctx context.Context, fn func(ctx context.Context) error) error {
	timeout := f.b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func (f *fetcher) geocode(ctx context.Context, query string) (Coordinates, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if r, ok := f.geo[key]; ok {
		return r.value, r.err
	}
	var r result[Coordinates]
	if f.b.Geocoder == nil {
		r.err = fmt.Errorf("geocoding: %w", errNoProvider)
	} else {
		r.err = f.call(ctx, func(ctx context.Context) error {
			var err error
			r.value, err = f.b.Geocoder.Geocode(ctx, query)
			return err
		})
	}
	f.geo[key] = r
	return r.value, r.err
}

func (f *fetcher) temperature(ctx context.Context, query string, at Coordinates) (float64, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	if r, ok := f.temps[key]; ok {
		return r.value, r.err
	}
	var r result[float64]
	if f.b.Weather == nil {
		r.err = fmt.Errorf("weather: %w", errNoProvider)
	} else {
		r.err = f.call(ctx, func(ctx context.Context) error {
			var err error
			r.value, err = f.b.Weather.CurrentTempC(ctx, at)
			return err
		})
	}
	f.temps[key] = r
	return r.value, r.err
}

func (f *fetcher) issTrace(ctx context.Context, asOf time.Time) ([]TracePoint, error) {
	if f.trace != nil {
		return f.trace.value, f.trace.err
	}
	r := &result[[]TracePoint]{}
	f.trace = r
	if f.b.Satellite == nil {
		r.err = fmt.Errorf("satellite: %w", errNoProvider)
		return nil, r.err
	}
	step := f.b.TraceStep
	if step <= 0 {
		step = DefaultTraceStep
	}
	radius := f.b.TraceRadius
	if radius <= 0 {
		radius = DefaultTraceRadius
	}
	timestamps := make([]int64, 0, 2*radius+1)
	for k := -radius; k <= radius; k++ {
		timestamps = append(timestamps, asOf.Add(time.Duration(k)*step).Unix())
	}
	r.err = f.call(ctx, func(ctx context.Context) error {
		var err error
		r.value, err = f.b.Satellite.Positions(ctx, timestamps)
		return err
	})
	if r.err == nil && len(r.value) == 0 {
		r.err = errors.New("satellite: empty trace")
	}
	return r.value, r.err
}

func (f *fetcher) rate(ctx context.Context, base, quote string) (float64, error) {
	key := strings.ToUpper(base) + "/" + strings.ToUpper(quote)
	if r, ok := f.rates[key]; ok {
		return r.value, r.err
	}
	var r result[float64]
	if f.b.Rates == nil {
		r.err = fmt.Errorf("exchange rate: %w", errNoProvider)
	} else {
		r.err = f.call(ctx, func(ctx context.Context) error {
			var err error
			r.value, err = f.b.Rates.Rate(ctx, base, quote)
			return err
		})
	}
	f.rates[key] = r
	return r.value, r.err
}

func (f *fetcher) entry(ctx context.Context, p agentloop.Prompt, asOf time.Time) (Entry, error) {
	switch p.Type {
	case agentloop.PromptLocation:
		query := p.LookupQuery()
		c, err := f.geocode(ctx, query)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Type: p.Type, Query: query, Lat: float64Ptr(c.Lat), Lon: float64Ptr(c.Lon),
			Providers: []string{"google_geocoding"}}, nil

	case agentloop.PromptWeather, agentloop.PromptTemperature:
		query := p.LookupQuery()
		c, err := f.geocode(ctx, query)
		if err != nil {
			return Entry{}, err
		}
		temp, err := f.temperature(ctx, query, c)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Type: p.Type, Query: query, Lat: float64Ptr(c.Lat), Lon: float64Ptr(c.Lon),
			TempC: float64Ptr(temp), Providers: []string{"google_geocoding", "openweather"}}, nil

	case agentloop.PromptISS:
		trace, err := f.issTrace(ctx, asOf)
		if err != nil {
			return Entry{}, err
		}
		out := make([]TracePoint, len(trace))
		copy(out, trace)
		return Entry{Type: p.Type, Trace: out, Providers: []string{"wheretheiss"}}, nil

	case agentloop.PromptExchangeRate:
		if p.Base == "" || p.Quote == "" {
			return Entry{}, errors.New("exchange rate: prompt has no currency pair")
		}
		rate, err := f.rate(ctx, p.Base, p.Quote)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Type: p.Type, Base: strings.ToUpper(p.Base), Quote: strings.ToUpper(p.Quote),
			Rate: float64Ptr(rate), Providers: []string{"frankfurter"}}, nil

	default:
		return Entry{}, fmt.Errorf("unsupported prompt type %q", p.Type)
	}
}
