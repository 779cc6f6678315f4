// Package config loads harness configuration with viper and prompt sets
// from YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/movinture/latent-logic/unifiedllm"
	"github.com/movinture/latent-logic/validation"
)

const (
	// DefaultConfigFileName is searched for as latentlogic.yaml.
	DefaultConfigFileName = "latentlogic"
	// EnvPrefix prefixes environment overrides (LATENT_PROVIDER_API_KEY, ...).
	EnvPrefix = "LATENT"
)

// Config is the full harness configuration.
type Config struct {
	OutputDir string `mapstructure:"output_dir"`
	// Prompts is the prompt set file.
	Prompts string `mapstructure:"prompts"`
	// Models is the default model list for run and compare.
	Models []string `mapstructure:"models"`

	Provider   ProviderConfig        `mapstructure:"provider"`
	Gollm      GollmConfig           `mapstructure:"gollm"`
	Agent      AgentConfig           `mapstructure:"agent"`
	Cohort     CohortConfig          `mapstructure:"cohort"`
	Canonical  CanonicalConfig       `mapstructure:"canonical"`
	Validation validation.Tolerances `mapstructure:"validation"`
	Tools      ToolsConfig           `mapstructure:"tools"`
	Logging    LoggingConfig         `mapstructure:"logging"`
}

// ProviderConfig describes the OpenAI-compatible completion endpoint.
type ProviderConfig struct {
	Name              string          `mapstructure:"name"`
	BaseURL           string          `mapstructure:"base_url"`
	APIKey            string          `mapstructure:"api_key"`
	TextOnlyToolCalls bool            `mapstructure:"text_only_tool_calls"`
	DefaultProvider   string          `mapstructure:"default_provider"`
	RequestTimeout    time.Duration   `mapstructure:"request_timeout"`
	Retry             RetryConfig     `mapstructure:"retry"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit"`
}

// RetryConfig mirrors unifiedllm.RetryPolicy.
type RetryConfig struct {
	MaxRetries        int     `mapstructure:"max_retries"`
	BaseDelay         float64 `mapstructure:"base_delay"`
	MaxDelay          float64 `mapstructure:"max_delay"`
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	Jitter            bool    `mapstructure:"jitter"`
}

// Policy converts the config into a retry policy.
func (r RetryConfig) Policy() unifiedllm.RetryPolicy {
	return unifiedllm.RetryPolicy{
		MaxRetries:        r.MaxRetries,
		BaseDelay:         r.BaseDelay,
		MaxDelay:          r.MaxDelay,
		BackoffMultiplier: r.BackoffMultiplier,
		Jitter:            r.Jitter,
	}
}

// RateLimitConfig bounds provider request rate. Zero RequestsPerSecond
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// GollmConfig registers a gollm-backed text-only provider when Provider is
// set.
type GollmConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// AgentConfig tunes the agent loops.
type AgentConfig struct {
	MaxTurns         int      `mapstructure:"max_turns"`
	LoopWindow       int      `mapstructure:"loop_window"`
	MaxParallelTools int      `mapstructure:"max_parallel_tools"`
	ToolCallMode     string   `mapstructure:"tool_call_mode"`
	Temperature      *float64 `mapstructure:"temperature"`
}

// CohortConfig bounds cross-unit concurrency.
type CohortConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	UnitTimeout time.Duration `mapstructure:"unit_timeout"`
}

// CanonicalConfig configures the ground-truth providers.
type CanonicalConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	GoogleAPIKey      string        `mapstructure:"google_api_key"`
	OpenWeatherAPIKey string        `mapstructure:"openweather_api_key"`
	GeocodeURL        string        `mapstructure:"geocode_url"`
	WeatherURL        string        `mapstructure:"weather_url"`
	ISSURL            string        `mapstructure:"iss_url"`
	RatesURL          string        `mapstructure:"rates_url"`
	TraceStep         time.Duration `mapstructure:"trace_step"`
	TraceRadius       int           `mapstructure:"trace_radius"`
}

// ToolsConfig configures the http_request tool.
type ToolsConfig struct {
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	MaxBodyChars   int           `mapstructure:"max_body_chars"`
	AllowedEnvVars []string      `mapstructure:"allowed_env_vars"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConfigError reports an unusable configuration. It is fatal at cohort
// start.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "results")
	v.SetDefault("prompts", "prompts.yaml")

	v.SetDefault("models", []string{})

	// Keys without a meaningful default are still registered so that
	// AutomaticEnv can populate them during Unmarshal.
	for _, key := range []string{
		"provider.base_url", "provider.api_key",
		"gollm.provider", "gollm.model", "gollm.api_key",
		"canonical.google_api_key", "canonical.openweather_api_key",
		"canonical.geocode_url", "canonical.weather_url", "canonical.iss_url", "canonical.rates_url",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("provider.text_only_tool_calls", false)
	v.SetDefault("gollm.max_tokens", 2048)

	v.SetDefault("provider.name", "foundry")
	v.SetDefault("provider.default_provider", "foundry")
	v.SetDefault("provider.request_timeout", 120*time.Second)
	v.SetDefault("provider.retry.max_retries", 2)
	v.SetDefault("provider.retry.base_delay", 1.0)
	v.SetDefault("provider.retry.max_delay", 30.0)
	v.SetDefault("provider.retry.backoff_multiplier", 2.0)
	v.SetDefault("provider.retry.jitter", true)
	v.SetDefault("provider.rate_limit.requests_per_second", 0.0)
	v.SetDefault("provider.rate_limit.burst", 1)

	v.SetDefault("agent.max_turns", 8)
	v.SetDefault("agent.loop_window", 4)
	v.SetDefault("agent.max_parallel_tools", 4)
	v.SetDefault("agent.tool_call_mode", "")

	v.SetDefault("cohort.concurrency", 4)
	v.SetDefault("cohort.unit_timeout", 5*time.Minute)

	v.SetDefault("canonical.timeout", 20*time.Second)
	v.SetDefault("canonical.trace_step", 60*time.Second)
	v.SetDefault("canonical.trace_radius", 2)

	tol := validation.DefaultTolerances()
	v.SetDefault("validation.max_km", tol.MaxKm)
	v.SetDefault("validation.max_diff_c", tol.MaxDiffC)
	v.SetDefault("validation.max_diff", tol.MaxDiff)
	v.SetDefault("validation.iss.base_km", tol.ISS.BaseKm)
	v.SetDefault("validation.iss.km_per_second", tol.ISS.KmPerSecond)
	v.SetDefault("validation.iss.max_km", tol.ISS.MaxKm)

	v.SetDefault("tools.http_timeout", 30*time.Second)
	v.SetDefault("tools.max_body_chars", 5000)
	v.SetDefault("tools.allowed_env_vars", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load reads configuration into a Config. Priority, highest first: flags
// bound on v, environment (LATENT_*), the config file, defaults. With an
// empty cfgFile, latentlogic.yaml is searched in . and $HOME/.latentlogic;
// a missing file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".latentlogic"))
		}
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyCredentialEnv()
	return &cfg, nil
}

// applyCredentialEnv falls back to the provider variables the canonical
// services document.
func (c *Config) applyCredentialEnv() {
	if c.Canonical.GoogleAPIKey == "" {
		c.Canonical.GoogleAPIKey = os.Getenv("GOOGLE_GEOCODING_API_KEY")
	}
	if c.Canonical.OpenWeatherAPIKey == "" {
		c.Canonical.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	}
}

// Validate checks the settings a cohort cannot run without.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return &ConfigError{Field: "output_dir", Message: "must not be empty"}
	}
	if c.Agent.MaxTurns <= 0 {
		return &ConfigError{Field: "agent.max_turns", Message: "must be positive"}
	}
	if c.Cohort.Concurrency <= 0 {
		return &ConfigError{Field: "cohort.concurrency", Message: "must be positive"}
	}
	if c.Agent.ToolCallMode != "" {
		if _, ok := unifiedllm.ParseToolCallMode(c.Agent.ToolCallMode); !ok {
			return &ConfigError{Field: "agent.tool_call_mode", Message: fmt.Sprintf("unknown mode %q", c.Agent.ToolCallMode)}
		}
	}
	if c.Validation.MaxKm < 0 || c.Validation.MaxDiffC < 0 || c.Validation.MaxDiff < 0 {
		return &ConfigError{Field: "validation", Message: "tolerances must not be negative"}
	}
	return nil
}

// RequireCohort checks the inputs that make a cohort meaningful.
func RequireCohort(models []string, promptCount int) error {
	if len(models) == 0 {
		return &ConfigError{Field: "models", Message: "at least one model is required"}
	}
	if promptCount == 0 {
		return &ConfigError{Field: "prompts", Message: "prompt set has no prompts"}
	}
	return nil
}
