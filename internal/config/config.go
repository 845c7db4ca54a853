// Package config loads saffron's settings from viper into the typed configs
// of each component.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/engine"
	"github.com/Veraticus/saffron/internal/guardrail"
	"github.com/Veraticus/saffron/internal/learning"
	"github.com/Veraticus/saffron/internal/llm"
	"github.com/Veraticus/saffron/internal/signals"
	"github.com/spf13/viper"
)

// ProviderNone disables Pass-2. The engine then runs on rules alone.
const ProviderNone = "none"

// Config is the complete, validated application configuration.
type Config struct {
	Database   DatabaseConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	RulesPath  string
	LLM        llm.Config
	Guardrail  guardrail.Config
	Learning   learning.Config
	Embeddings EmbeddingConfig
	Engine     engine.Config
}

// EmbeddingConfig controls the embedding-similarity extractor.
type EmbeddingConfig struct {
	Enabled   bool
	Threshold float64
	CacheSize int
}

// SignalOptions returns the extractor options implied by the config.
func (c *Config) SignalOptions() []signals.Option {
	if !c.Embeddings.Enabled {
		return nil
	}
	return []signals.Option{signals.WithEmbeddings(signals.EmbeddingOptions{
		Threshold: c.Embeddings.Threshold,
		CacheSize: c.Embeddings.CacheSize,
	})}
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string
}

// LLMEnabled reports whether a Pass-2 provider is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLM.Provider != ProviderNone
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	eng := engine.DefaultConfig()
	lrn := learning.DefaultConfig()
	grd := guardrail.DefaultConfig()

	v.SetDefault("database.path", "~/.local/share/saffron/saffron.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("rules.path", "")

	v.SetDefault("engine.hybrid_threshold", eng.HybridThreshold)
	v.SetDefault("engine.llm_timeout", eng.LLMTimeout)
	v.SetDefault("engine.max_retries", eng.MaxRetries)
	v.SetDefault("engine.backoff_base", eng.BackoffBase)
	v.SetDefault("engine.max_backoff", eng.MaxBackoff)
	v.SetDefault("engine.concurrency", eng.Concurrency)
	v.SetDefault("engine.auto_apply_threshold", eng.AutoApplyThreshold)
	v.SetDefault("engine.oscillation_threshold", eng.OscillationThreshold)
	v.SetDefault("engine.oscillation_lookback", eng.OscillationLookback)

	v.SetDefault("llm.provider", llm.ProviderAnthropic)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.default_slug", "")
	v.SetDefault("llm.cache_ttl", "24h")
	v.SetDefault("llm.http_timeout", "30s")
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 300)

	v.SetDefault("guardrail.refund_category", grd.RefundCategorySlug)
	v.SetDefault("guardrail.clearing_category", grd.ClearingCategorySlug)
	v.SetDefault("guardrail.fallback_category", grd.FallbackSlug)
	v.SetDefault("guardrail.processors", grd.Processors)
	v.SetDefault("guardrail.max_corrected_confidence", grd.MaxCorrectedConfidence)

	v.SetDefault("embeddings.enabled", true)
	v.SetDefault("embeddings.threshold", signals.DefaultSimilarityThreshold)
	v.SetDefault("embeddings.cache_size", signals.DefaultEmbeddingCacheSize)

	v.SetDefault("learning.canary_sample_size", lrn.CanarySampleSize)
	v.SetDefault("learning.accuracy_threshold", lrn.AccuracyThreshold)
	v.SetDefault("learning.learned_rule_confidence", lrn.LearnedRuleConfidence)
}

// Load reads the configuration from v. Keys missing from v take their
// defaults, API keys fall back to the provider's usual environment variable,
// and the result is validated before it is returned.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)

	cfg := &Config{
		Database: DatabaseConfig{Path: ExpandPath(v.GetString("database.path"))},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Metrics:   MetricsConfig{Addr: v.GetString("metrics.addr")},
		RulesPath: ExpandPath(v.GetString("rules.path")),
		Engine: engine.Config{
			HybridThreshold:      v.GetFloat64("engine.hybrid_threshold"),
			LLMTimeout:           v.GetDuration("engine.llm_timeout"),
			MaxRetries:           v.GetInt("engine.max_retries"),
			BackoffBase:          v.GetDuration("engine.backoff_base"),
			MaxBackoff:           v.GetDuration("engine.max_backoff"),
			Concurrency:          v.GetInt("engine.concurrency"),
			AutoApplyThreshold:   v.GetFloat64("engine.auto_apply_threshold"),
			OscillationThreshold: v.GetInt("engine.oscillation_threshold"),
			OscillationLookback:  v.GetDuration("engine.oscillation_lookback"),
		},
		LLM: llm.Config{
			Provider:    strings.ToLower(strings.TrimSpace(v.GetString("llm.provider"))),
			APIKey:      v.GetString("llm.api_key"),
			Model:       v.GetString("llm.model"),
			BaseURL:     v.GetString("llm.base_url"),
			DefaultSlug: v.GetString("llm.default_slug"),
			CacheTTL:    v.GetDuration("llm.cache_ttl"),
			HTTPTimeout: v.GetDuration("llm.http_timeout"),
			RateLimit:   v.GetInt("llm.rate_limit"),
			Temperature: v.GetFloat64("llm.temperature"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
		},
		Guardrail: guardrail.Config{
			RefundCategorySlug:     v.GetString("guardrail.refund_category"),
			ClearingCategorySlug:   v.GetString("guardrail.clearing_category"),
			FallbackSlug:           v.GetString("guardrail.fallback_category"),
			Processors:             v.GetStringSlice("guardrail.processors"),
			MaxCorrectedConfidence: v.GetFloat64("guardrail.max_corrected_confidence"),
		},
	}

	cfg.Embeddings = EmbeddingConfig{
		Enabled:   v.GetBool("embeddings.enabled"),
		Threshold: v.GetFloat64("embeddings.threshold"),
		CacheSize: v.GetInt("embeddings.cache_size"),
	}

	// Oscillation settings are shared so the engine and the learning loop
	// agree on what counts as flapping.
	cfg.Learning = learning.Config{
		CanarySampleSize:      v.GetInt("learning.canary_sample_size"),
		AccuracyThreshold:     v.GetFloat64("learning.accuracy_threshold"),
		OscillationThreshold:  cfg.Engine.OscillationThreshold,
		OscillationLookback:   cfg.Engine.OscillationLookback,
		LearnedRuleConfidence: v.GetFloat64("learning.learned_rule_confidence"),
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKeyFromEnv(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", common.ErrInvalidConfig, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format must be text or json, got %q", common.ErrInvalidConfig, c.Logging.Format)
	}
	switch c.LLM.Provider {
	case ProviderNone:
	case llm.ProviderAnthropic, llm.ProviderOpenAI:
		if c.LLM.RateLimit < 0 {
			return fmt.Errorf("%w: llm.rate_limit must not be negative, got %d", common.ErrInvalidConfig, c.LLM.RateLimit)
		}
		if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
			return fmt.Errorf("%w: llm.temperature must be in [0, 1], got %v", common.ErrInvalidConfig, c.LLM.Temperature)
		}
	default:
		return fmt.Errorf("%w: llm.provider %q", common.ErrInvalidConfig, c.LLM.Provider)
	}
	if m := c.Guardrail.MaxCorrectedConfidence; m <= 0 || m > 1 {
		return fmt.Errorf("%w: guardrail.max_corrected_confidence must be in (0, 1], got %v", common.ErrInvalidConfig, m)
	}
	if c.Embeddings.Enabled {
		if t := c.Embeddings.Threshold; t <= 0 || t > 1 {
			return fmt.Errorf("%w: embeddings.threshold must be in (0, 1], got %v", common.ErrInvalidConfig, t)
		}
		if c.Embeddings.CacheSize < 1 {
			return fmt.Errorf("%w: embeddings.cache_size must be positive, got %d", common.ErrInvalidConfig, c.Embeddings.CacheSize)
		}
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	return c.Learning.Validate()
}

func providerKeyFromEnv(provider string) string {
	switch provider {
	case llm.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case llm.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// ExpandPath resolves a leading ~ to the home directory and expands $VAR
// references. Empty paths are returned unchanged.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
