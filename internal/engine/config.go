package engine

import (
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/common"
)

// Config holds the orchestrator's tunables. Build it once, validate it once
// and treat it as immutable afterwards.
type Config struct {
	// HybridThreshold is the calibrated Pass-1 confidence at or above which
	// Pass-2 is skipped.
	HybridThreshold float64
	LLMTimeout      time.Duration
	MaxRetries      int
	BackoffBase     time.Duration
	MaxBackoff      time.Duration
	Concurrency     int
	// AutoApplyThreshold is the confidence at or above which a decision is
	// applied without review.
	AutoApplyThreshold   float64
	OscillationThreshold int
	OscillationLookback  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HybridThreshold:      0.90,
		LLMTimeout:           5 * time.Second,
		MaxRetries:           3,
		BackoffBase:          time.Second,
		MaxBackoff:           30 * time.Second,
		Concurrency:          3,
		AutoApplyThreshold:   0.85,
		OscillationThreshold: 3,
		OscillationLookback:  30 * 24 * time.Hour,
	}
}

// Validate checks every field and reports the first problem.
func (c Config) Validate() error {
	switch {
	case c.HybridThreshold < 0.5 || c.HybridThreshold > 0.99:
		return invalid("hybrid_threshold", "must be between 0.5 and 0.99, got %v", c.HybridThreshold)
	case c.LLMTimeout <= 0 || c.LLMTimeout > 2*time.Minute:
		return invalid("llm_timeout", "must be between 0 and 2m, got %v", c.LLMTimeout)
	case c.MaxRetries < 1 || c.MaxRetries > 10:
		return invalid("max_retries", "must be between 1 and 10, got %d", c.MaxRetries)
	case c.BackoffBase < 0:
		return invalid("backoff_base", "must not be negative, got %v", c.BackoffBase)
	case c.MaxBackoff < c.BackoffBase:
		return invalid("max_backoff", "must be at least backoff_base, got %v", c.MaxBackoff)
	case c.Concurrency < 1 || c.Concurrency > 16:
		return invalid("concurrency", "must be between 1 and 16, got %d", c.Concurrency)
	case c.AutoApplyThreshold <= 0 || c.AutoApplyThreshold > 1:
		return invalid("auto_apply_threshold", "must be in (0, 1], got %v", c.AutoApplyThreshold)
	case c.OscillationThreshold < 2:
		return invalid("oscillation_threshold", "must be at least 2, got %d", c.OscillationThreshold)
	case c.OscillationLookback <= 0:
		return invalid("oscillation_lookback", "must be positive, got %v", c.OscillationLookback)
	}
	return nil
}

// RetryPolicy derives the Pass-2 retry policy from the config.
func (c Config) RetryPolicy() common.RetryPolicy {
	return common.RetryPolicy{
		MaxAttempts:    c.MaxRetries,
		BackoffBase:    c.BackoffBase,
		MaxDelay:       c.MaxBackoff,
		AttemptTimeout: c.LLMTimeout,
	}
}

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: engine.%s %s", common.ErrInvalidConfig, field, fmt.Sprintf(format, args...))
}
