package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"golang.org/x/time/rate"
)

// Config holds the settings for the Pass-2 categorizer and its provider client.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	DefaultSlug string
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

func (c Config) temperature() float64 {
	if c.Temperature == 0 {
		return 0.2
	}
	return c.Temperature
}

func (c Config) maxTokens() int {
	if c.MaxTokens == 0 {
		return 300
	}
	return c.MaxTokens
}

func (c Config) defaultSlug() string {
	if c.DefaultSlug == "" {
		return rules.SlugUncategorized
	}
	return c.DefaultSlug
}

// Suggestion is the model's choice for one transaction. RawConfidence is the
// model's own number, before calibration.
type Suggestion struct {
	Attributes    map[string]string
	CategoryID    string
	Slug          string
	Reasoning     string
	RawConfidence float64
	// Neutral is set when the reply could not be used and the default
	// category was substituted.
	Neutral bool
	Cached  bool
}

func (s Suggestion) clone() Suggestion {
	if s.Attributes != nil {
		attrs := make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			attrs[k] = v
		}
		s.Attributes = attrs
	}
	return s
}

// Categorizer runs Pass-2 for single transactions.
type Categorizer struct {
	client      Client
	limiter     *rate.Limiter
	cache       *suggestionCache
	logger      *slog.Logger
	defaultSlug string
}

// NewCategorizer builds a Categorizer with the provider client named in cfg.
func NewCategorizer(cfg Config, logger *slog.Logger) (*Categorizer, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewCategorizerWithClient(client, cfg, logger), nil
}

// NewCategorizerWithClient builds a Categorizer around an existing client.
func NewCategorizerWithClient(client Client, cfg Config, logger *slog.Logger) *Categorizer {
	return &Categorizer{
		client:      client,
		limiter:     newRateLimiter(cfg.RateLimit),
		cache:       newSuggestionCache(cfg.CacheTTL),
		logger:      common.LoggerOrDefault(logger),
		defaultSlug: cfg.defaultSlug(),
	}
}

// Close releases the cache's background goroutine.
func (c *Categorizer) Close() {
	c.cache.close()
}

// Categorize asks the model to pick a category for tx from categories.
// Provider and transport failures are returned so the caller can retry;
// a reply that cannot be mapped onto the taxonomy yields the neutral default
// category with a raw confidence of zero.
func (c *Categorizer) Categorize(ctx context.Context, tx model.NormalizedTransaction, categories *model.Taxonomy) (Suggestion, error) {
	if categories == nil || categories.Len() == 0 {
		return Suggestion{}, common.Permanent(fmt.Errorf("%w: empty taxonomy", common.ErrMissingConfig))
	}

	key := tx.Fingerprint()
	if cached, ok := c.cache.get(key); ok {
		metrics.RecordLLMCall("cache_hit")
		cached.Cached = true
		return cached, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return Suggestion{}, err
		}
		return Suggestion{}, fmt.Errorf("%w: %w", common.ErrRateLimit, err)
	}

	text, err := c.client.Complete(ctx, BuildPrompt(tx, categories))
	if err != nil {
		metrics.RecordLLMCall("error")
		return Suggestion{}, err
	}

	parsed, err := parseReply(text)
	if err != nil {
		c.logger.Warn("unusable model reply, using default category",
			"transaction_id", tx.ID,
			"error", err)
		metrics.RecordLLMCall("fallback")
		return c.neutral(categories, "model reply could not be parsed"), nil
	}

	category, ok := lookup(categories, parsed.Slug)
	if !ok {
		c.logger.Warn("model chose unknown category, using default category",
			"transaction_id", tx.ID,
			"category", parsed.Slug)
		metrics.RecordLLMCall("fallback")
		return c.neutral(categories, fmt.Sprintf("model chose unknown category %q", parsed.Slug)), nil
	}

	suggestion := Suggestion{
		CategoryID:    category.ID,
		Slug:          category.Slug,
		RawConfidence: parsed.Confidence,
		Reasoning:     parsed.Reasoning,
		Attributes:    parsed.Attributes,
	}
	c.cache.set(key, suggestion)
	metrics.RecordLLMCall("success")

	c.logger.Debug("model suggestion",
		"transaction_id", tx.ID,
		"category", category.Slug,
		"raw_confidence", parsed.Confidence)
	return suggestion, nil
}

func (c *Categorizer) neutral(categories *model.Taxonomy, reason string) Suggestion {
	s := Suggestion{Neutral: true, Reasoning: reason}
	if category, ok := categories.BySlug(c.defaultSlug); ok {
		s.CategoryID = category.ID
		s.Slug = category.Slug
	}
	return s
}

// lookup accepts a slug, an id or a category name.
func lookup(categories *model.Taxonomy, ref string) (model.Category, bool) {
	if c, ok := categories.BySlug(ref); ok {
		return c, true
	}
	if c, ok := categories.ByID(ref); ok {
		return c, true
	}
	for _, c := range categories.All() {
		if strings.EqualFold(c.Name, ref) {
			return c, true
		}
	}
	return model.Category{}, false
}
