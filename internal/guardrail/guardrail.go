// Package guardrail enforces domain rules that no scorer or model is allowed
// to override, such as refunds never counting as revenue.
package guardrail

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

// Violation types.
const (
	ViolationRefundRevenue    = "refund_not_revenue"
	ViolationProcessorRevenue = "processor_not_revenue"
)

// Config controls where corrections redirect and how much confidence a
// corrected result may keep.
type Config struct {
	RefundCategorySlug     string
	ClearingCategorySlug   string
	FallbackSlug           string
	Processors             []string
	MaxCorrectedConfidence float64
}

// DefaultConfig returns the production guardrail configuration.
func DefaultConfig() Config {
	return Config{
		RefundCategorySlug:     rules.SlugRefunds,
		ClearingCategorySlug:   rules.SlugClearing,
		FallbackSlug:           rules.SlugUncategorized,
		Processors:             DefaultProcessors(),
		MaxCorrectedConfidence: 0.80,
	}
}

// DefaultProcessors lists payment processors whose deposits are clearing
// movements, not revenue.
func DefaultProcessors() []string {
	return []string{
		"stripe",
		"paypal",
		"square",
		"shopify payments",
		"adyen",
		"braintree",
		"authorize net",
		"worldpay",
		"klarna",
		"afterpay",
		"amazon payments",
		"venmo",
	}
}

// Outcome is the guardrail's verdict on a candidate.
type Outcome struct {
	CategoryID string
	Violations []model.Violation
	Rationale  []string
	Confidence float64
}

// Corrected reports whether any rule fired.
func (o Outcome) Corrected() bool {
	return len(o.Violations) > 0
}

// Validator applies the guardrail rules.
type Validator struct {
	taxonomy   *model.Taxonomy
	logger     *slog.Logger
	processors []string
	cfg        Config
}

// NewValidator creates a validator over the given taxonomy.
func NewValidator(cfg Config, taxonomy *model.Taxonomy, logger *slog.Logger) *Validator {
	processors := make([]string, 0, len(cfg.Processors))
	for _, p := range cfg.Processors {
		if n := rules.NormalizeVendor(p); n != "" {
			processors = append(processors, n)
		}
	}
	return &Validator{
		cfg:        cfg,
		taxonomy:   taxonomy,
		logger:     common.LoggerOrDefault(logger),
		processors: processors,
	}
}

// Check validates the candidate category for tx and returns the possibly
// corrected category and confidence. Corrections are not errors.
func (v *Validator) Check(tx model.NormalizedTransaction, categoryID string, confidence float64) Outcome {
	out := Outcome{CategoryID: categoryID, Confidence: confidence}
	if categoryID == "" {
		return out
	}

	if v.isRevenue(out.CategoryID) && tx.IsRefund() {
		v.correct(tx, &out, ViolationRefundRevenue, v.cfg.RefundCategorySlug,
			"refunds and negative amounts cannot be revenue")
	}

	if v.isRevenue(out.CategoryID) {
		if processor, ok := v.matchProcessor(tx); ok {
			v.correct(tx, &out, ViolationProcessorRevenue, v.cfg.ClearingCategorySlug,
				fmt.Sprintf("deposits from payment processor %q are clearing, not revenue", processor))
		}
	}

	return out
}

func (v *Validator) correct(tx model.NormalizedTransaction, out *Outcome, violationType, targetSlug, reason string) {
	from := out.CategoryID
	target, ok := v.lookup(targetSlug)
	if !ok {
		target, ok = v.lookup(v.cfg.FallbackSlug)
	}

	if ok {
		out.CategoryID = target.ID
		out.Confidence = math.Min(out.Confidence, v.cfg.MaxCorrectedConfidence)
		out.Rationale = append(out.Rationale, fmt.Sprintf("Guardrail %s: %s; moved to %s", violationType, reason, target.Name))
	} else {
		out.CategoryID = ""
		out.Confidence = 0
		out.Rationale = append(out.Rationale, fmt.Sprintf("Guardrail %s: %s; no redirect category, manual review required", violationType, reason))
	}
	out.Violations = append(out.Violations, model.Violation{Type: violationType, Reason: reason})

	metrics.RecordGuardrail(violationType)
	v.logger.Info("guardrail correction applied",
		"transaction_id", tx.ID,
		"violation", violationType,
		"from_category", from,
		"to_category", out.CategoryID)
}

func (v *Validator) isRevenue(categoryID string) bool {
	if v.taxonomy == nil {
		return false
	}
	c, ok := v.taxonomy.ByID(categoryID)
	return ok && c.Type == model.CategoryTypeRevenue
}

func (v *Validator) lookup(slug string) (model.Category, bool) {
	if v.taxonomy == nil || slug == "" {
		return model.Category{}, false
	}
	return v.taxonomy.BySlug(slug)
}

func (v *Validator) matchProcessor(tx model.NormalizedTransaction) (string, bool) {
	merchant := " " + rules.NormalizeVendor(tx.MerchantName) + " "
	description := " " + rules.NormalizeVendor(tx.Description) + " "
	for _, p := range v.processors {
		needle := " " + p + " "
		if strings.Contains(merchant, needle) || strings.Contains(description, needle) {
			return p, true
		}
	}
	return "", false
}
