package cohort

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/canonical"
	"github.com/movinture/latent-logic/config"
	"github.com/movinture/latent-logic/unifiedllm"
)

// NewLimiter returns the shared provider limiter, or nil when limiting is
// disabled.
func NewLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// NewClient builds the completion client for a cohort. The
// OpenAI-compatible endpoint is registered under pc.Name; a gollm provider
// is added when gc.Provider is set. Middleware order, outermost first:
// logging, retry, rate limit, per-call timeout.
func NewClient(pc config.ProviderConfig, gc config.GollmConfig, limiter *rate.Limiter, logger *zap.Logger) (*unifiedllm.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	openaiAdapter, err := unifiedllm.NewOpenAIAdapter(unifiedllm.OpenAIConfig{
		Name:              pc.Name,
		APIKey:            pc.APIKey,
		BaseURL:           pc.BaseURL,
		TextOnlyToolCalls: pc.TextOnlyToolCalls,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", pc.Name, err)
	}

	policy := pc.Retry.Policy()
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Info("retrying provider call",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("kind", unifiedllm.ErrorKind(err)),
			zap.Error(err))
	}

	opts := []unifiedllm.ClientOption{
		unifiedllm.WithProvider(openaiAdapter.Name(), openaiAdapter),
		unifiedllm.WithMiddleware(
			unifiedllm.LoggingMiddleware(logger),
			unifiedllm.RetryMiddleware(policy),
			unifiedllm.RateLimitMiddleware(limiter),
			unifiedllm.TimeoutMiddleware(pc.RequestTimeout),
		),
		unifiedllm.WithStreamMiddleware(
			unifiedllm.RetryStreamMiddleware(policy),
			unifiedllm.RateLimitStreamMiddleware(limiter),
			unifiedllm.TimeoutStreamMiddleware(pc.RequestTimeout),
		),
	}

	if gc.Provider != "" {
		gollmAdapter, err := unifiedllm.NewGollmAdapter(gc.Provider, gc.APIKey,
			unifiedllm.WithGollmModel(gc.Model),
			unifiedllm.WithGollmMaxTokens(gc.MaxTokens))
		if err != nil {
			return nil, fmt.Errorf("failed to create gollm provider: %w", err)
		}
		opts = append(opts, unifiedllm.WithProvider(gollmAdapter.Name(), gollmAdapter))
	}

	def := pc.DefaultProvider
	if def == "" {
		def = openaiAdapter.Name()
	}
	opts = append(opts, unifiedllm.WithDefaultProvider(def))
	return unifiedllm.NewClient(opts...), nil
}

// Client is what both frameworks need from a completion client.
type Client interface {
	agentloop.Completer
	agentloop.Streamer
}

// NewFramework returns the agent loop registered under name.
func NewFramework(name string, client Client, maxParallelTools int) (agentloop.Framework, error) {
	switch name {
	case agentloop.ScratchFrameworkName:
		return agentloop.NewScratchLoop(client), nil
	case agentloop.StrandsFrameworkName:
		return agentloop.NewStrandsLoop(client, agentloop.WithMaxParallelTools(maxParallelTools)), nil
	default:
		return nil, &config.ConfigError{
			Field:   "framework",
			Message: fmt.Sprintf("unknown framework %q (want %s or %s)", name, agentloop.ScratchFrameworkName, agentloop.StrandsFrameworkName),
		}
	}
}

// NewBuilder wires the canonical providers from cfg. Keyless providers are
// always present; keyed ones report ErrMissingCredential on use when their
// key is unset.
func NewBuilder(cfg config.CanonicalConfig, logger *zap.Logger) *canonical.Builder {
	client := canonical.NewHTTPClient(cfg.Timeout)
	return &canonical.Builder{
		Geocoder:    &canonical.GoogleGeocoder{APIKey: cfg.GoogleAPIKey, BaseURL: cfg.GeocodeURL, Client: client},
		Weather:     &canonical.OpenWeather{APIKey: cfg.OpenWeatherAPIKey, BaseURL: cfg.WeatherURL, Client: client},
		Satellite:   &canonical.WhereTheISS{BaseURL: cfg.ISSURL, Client: client},
		Rates:       &canonical.Frankfurter{BaseURL: cfg.RatesURL, Client: client},
		Timeout:     cfg.Timeout,
		TraceStep:   cfg.TraceStep,
		TraceRadius: cfg.TraceRadius,
		Logger:      logger,
	}
}
