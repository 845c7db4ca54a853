// Package learning runs the rule lifecycle: versioning, canary testing,
// promotion and rollback, effectiveness tracking, oscillation detection and
// reviewer corrections.
package learning

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/service"
	"github.com/Veraticus/saffron/internal/signals"
)

// Store is the persistence the learning loop needs.
type Store interface {
	service.TransactionStore
	service.DecisionStore
	service.RuleStore
	service.OscillationStore
}

// Config holds the learning loop's tunables.
type Config struct {
	CanarySampleSize      int
	AccuracyThreshold     float64
	OscillationThreshold  int
	OscillationLookback   time.Duration
	LearnedRuleConfidence float64
}

// DefaultConfig returns the standard learning configuration.
func DefaultConfig() Config {
	return Config{
		CanarySampleSize:      100,
		AccuracyThreshold:     0.8,
		OscillationThreshold:  3,
		OscillationLookback:   30 * 24 * time.Hour,
		LearnedRuleConfidence: 0.85,
	}
}

// Validate checks every field.
func (c Config) Validate() error {
	switch {
	case c.CanarySampleSize < 1:
		return fmt.Errorf("%w: learning.canary_sample_size must be positive, got %d", common.ErrInvalidConfig, c.CanarySampleSize)
	case c.AccuracyThreshold <= 0 || c.AccuracyThreshold > 1:
		return fmt.Errorf("%w: learning.accuracy_threshold must be in (0, 1], got %v", common.ErrInvalidConfig, c.AccuracyThreshold)
	case c.OscillationThreshold < 2:
		return fmt.Errorf("%w: learning.oscillation_threshold must be at least 2, got %d", common.ErrInvalidConfig, c.OscillationThreshold)
	case c.OscillationLookback <= 0:
		return fmt.Errorf("%w: learning.oscillation_lookback must be positive, got %v", common.ErrInvalidConfig, c.OscillationLookback)
	case c.LearnedRuleConfidence <= 0 || c.LearnedRuleConfidence > 1:
		return fmt.Errorf("%w: learning.learned_rule_confidence must be in (0, 1], got %v", common.ErrInvalidConfig, c.LearnedRuleConfidence)
	}
	return nil
}

// Service implements the learning loop on top of a Store.
type Service struct {
	store         Store
	tables        *rules.Tables
	taxonomy      *model.Taxonomy
	logger        *slog.Logger
	now           func() time.Time
	locks         *keyedMutex
	signalOptions []signals.Option
	cfg           Config
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSignalOptions passes options to the extractors built for canary tests,
// for example to enable embeddings.
func WithSignalOptions(opts ...signals.Option) Option {
	return func(s *Service) { s.signalOptions = append(s.signalOptions, opts...) }
}

// NewService validates cfg and returns a Service. tables supplies the
// penalty table canary tests run with; taxonomy resolves category ids.
func NewService(store Store, tables *rules.Tables, taxonomy *model.Taxonomy, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: learning store", common.ErrMissingConfig)
	}
	if taxonomy == nil || taxonomy.Len() == 0 {
		return nil, fmt.Errorf("%w: empty taxonomy", common.ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tables == nil {
		tables = rules.Empty()
	}

	s := &Service{
		store:    store,
		tables:   tables,
		taxonomy: taxonomy,
		cfg:      cfg,
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = common.LoggerOrDefault(s.logger)
	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }
