// Package engine runs the hybrid categorization pipeline: rule-based Pass-1,
// an optional LLM Pass-2, reconciliation of the two and the guardrail checks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/llm"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/scoring"
)

// RationaleFailed is the rationale of a result that no engine could produce.
const RationaleFailed = "Categorization failed — manual review required"

// Pass2 suggests a category for transactions Pass-1 is unsure about.
type Pass2 interface {
	Categorize(ctx context.Context, tx model.NormalizedTransaction, categories *model.Taxonomy) (llm.Suggestion, error)
}

// Orchestrator categorizes single transactions. It holds no per-transaction
// state and is safe for concurrent use.
type Orchestrator struct {
	pass2      Pass2
	scorer     *scoring.Scorer
	calibrator *scoring.Calibrator
	logger     *slog.Logger
	retry      common.RetryPolicy
	cfg        Config
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithScorer replaces the default scorer.
func WithScorer(s *scoring.Scorer) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithCalibrator replaces the default calibrator.
func WithCalibrator(c *scoring.Calibrator) Option {
	return func(o *Orchestrator) { o.calibrator = c }
}

// WithSleep replaces the wait between Pass-2 attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.retry.Sleep = sleep }
}

// New validates cfg and builds an orchestrator. A nil pass2 disables the
// LLM fallback.
func New(cfg Config, pass2 Pass2, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		cfg:        cfg,
		pass2:      pass2,
		scorer:     scoring.NewScorer(scoring.DefaultParams()),
		calibrator: scoring.NewCalibrator(scoring.DefaultCalibrationParams()),
		retry:      cfg.RetryPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = common.LoggerOrDefault(o.logger)
	o.retry.Logger = o.logger
	return o, nil
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// candidate is one engine's proposal before guardrails.
type candidate struct {
	attributes     map[string]string
	categoryID     string
	rationale      []string
	ruleVersionIDs []string
	confidence     float64
	engine         model.Engine
}

// Categorize runs the pipeline for tx against snap. Pass-2 failures are
// absorbed into the result; an error is returned only for an unusable
// snapshot or when ctx is canceled.
func (o *Orchestrator) Categorize(ctx context.Context, tx model.NormalizedTransaction, snap *Snapshot) (model.CategorizationResult, error) {
	if err := snap.validate(); err != nil {
		return model.CategorizationResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.CategorizationResult{}, err
	}

	start := time.Now()
	result := model.CategorizationResult{TransactionID: tx.ID, Engine: model.EnginePass1}

	scored := o.scorer.Score(snap.Extractor.Extract(tx))
	pass1 := o.pass1Candidate(scored)
	result.Timings.Pass1 = time.Since(start)

	var chosen *candidate
	outcome := "accepted"
	switch {
	case pass1 != nil && pass1.confidence >= o.cfg.HybridThreshold:
		chosen = pass1
	case o.pass2 == nil:
		chosen = pass1
		outcome = "pass1_only"
	default:
		pass2Start := time.Now()
		suggestion, attempts, err := o.runPass2(ctx, tx, snap)
		result.Timings.Pass2 = time.Since(pass2Start)
		result.Pass2Attempts = attempts
		result.Engine = model.EngineLLM

		if err != nil {
			if ctx.Err() != nil {
				return model.CategorizationResult{}, ctx.Err()
			}
			o.logger.Warn("Pass-2 failed, falling back",
				"transaction_id", tx.ID,
				"attempts", attempts,
				"has_pass1", pass1 != nil,
				"error", err)
			chosen = pass1
			outcome = "fallback"
			if chosen != nil {
				chosen.rationale = append(chosen.rationale,
					fmt.Sprintf("LLM unavailable after %d attempts; kept rule-based result", attempts))
			}
		} else {
			chosen = o.reconcile(pass1, o.llmCandidate(suggestion, scored, snap), snap)
			outcome = "reconciled"
		}
	}

	if chosen == nil {
		result.Confidence = 0
		result.Rationale = []string{RationaleFailed}
		if len(scored.Rationale) > 0 {
			result.Rationale = append(result.Rationale, scored.Rationale...)
		}
		result.NeedsManualWork = true
		result.Timings.Total = time.Since(start)
		o.record(result, "failed")
		return result, nil
	}

	result.Engine = chosen.engine
	result.Attributes = chosen.attributes
	result.RuleVersionIDs = chosen.ruleVersionIDs

	guardStart := time.Now()
	result.CategoryID = chosen.categoryID
	result.Confidence = chosen.confidence
	result.Rationale = chosen.rationale
	if snap.Guardrail != nil {
		verdict := snap.Guardrail.Check(tx, chosen.categoryID, chosen.confidence)
		if verdict.Corrected() {
			result.CategoryID = verdict.CategoryID
			result.Confidence = verdict.Confidence
			result.Violations = verdict.Violations
			result.Rationale = append(result.Rationale, verdict.Rationale...)
			outcome = "corrected"
		}
	}
	result.Timings.Guardrail = time.Since(guardStart)

	if !result.HasCategory() {
		result.Confidence = 0
		result.NeedsManualWork = true
		result.Rationale = append(result.Rationale, RationaleFailed)
	}
	result.Timings.Total = time.Since(start)

	o.logger.Debug("transaction categorized",
		"transaction_id", tx.ID,
		"engine", result.Engine.String(),
		"category_id", result.CategoryID,
		"confidence", result.Confidence,
		"outcome", outcome)
	o.record(result, outcome)
	return result, nil
}

func (o *Orchestrator) pass1Candidate(scored model.ScoringResult) *candidate {
	best := scored.BestCategory
	if best == nil {
		return nil
	}
	calibrated := o.calibrator.Confidence(best.Confidence, len(best.Signals))

	rationale := make([]string, 0, len(scored.Rationale)+1)
	rationale = append(rationale, scored.Rationale...)
	rationale = append(rationale, fmt.Sprintf("Calibrated confidence: %.0f%% from %d signal(s)", calibrated*100, len(best.Signals)))

	return &candidate{
		engine:         model.EnginePass1,
		categoryID:     best.CategoryID,
		confidence:     calibrated,
		rationale:      rationale,
		ruleVersionIDs: ruleVersionIDs(best.Signals),
	}
}

func (o *Orchestrator) runPass2(ctx context.Context, tx model.NormalizedTransaction, snap *Snapshot) (llm.Suggestion, int, error) {
	var suggestion llm.Suggestion
	attempts, err := o.retry.Do(ctx, func(ctx context.Context) error {
		s, err := o.pass2.Categorize(ctx, tx, snap.Taxonomy)
		if err != nil {
			return err
		}
		suggestion = s
		return nil
	})
	if err != nil {
		return llm.Suggestion{}, attempts, err
	}
	if suggestion.CategoryID == "" {
		return llm.Suggestion{}, attempts, errors.New("model suggestion has no category")
	}
	return suggestion, attempts, nil
}

func (o *Orchestrator) llmCandidate(s llm.Suggestion, scored model.ScoringResult, snap *Snapshot) *candidate {
	strong := scored.HasStrongSignalFor(s.CategoryID)
	calibrated := o.calibrator.LLMConfidence(s.RawConfidence, strong)

	rationale := []string{fmt.Sprintf("LLM suggestion: %s (reported %.0f%%, calibrated %.0f%%)",
		categoryName(snap, s.CategoryID), s.RawConfidence*100, calibrated*100)}
	if s.Reasoning != "" {
		rationale = append(rationale, "LLM reasoning: "+s.Reasoning)
	}
	if strong {
		rationale = append(rationale, "Corroborated by a strong rule signal")
	}
	if s.Neutral {
		rationale = append(rationale, "LLM reply unusable; default category assigned")
	}

	return &candidate{
		engine:     model.EngineLLM,
		categoryID: s.CategoryID,
		confidence: calibrated,
		rationale:  rationale,
		attributes: s.Attributes,
	}
}

// reconcile picks the higher calibrated confidence. Ties keep Pass-1.
func (o *Orchestrator) reconcile(pass1, pass2 *candidate, snap *Snapshot) *candidate {
	winner := pickHigher(pass1, pass2)
	if pass1 == nil || pass2 == nil {
		return winner
	}
	loser := pass1
	if winner == pass1 {
		loser = pass2
	}
	winner.rationale = append(winner.rationale, fmt.Sprintf("Preferred over %s suggestion %s (%.0f%% vs %.0f%%)",
		loser.engine, categoryName(snap, loser.categoryID), winner.confidence*100, loser.confidence*100))
	return winner
}

func pickHigher(pass1, pass2 *candidate) *candidate {
	switch {
	case pass2 == nil:
		return pass1
	case pass1 == nil:
		return pass2
	case pass2.confidence > pass1.confidence:
		return pass2
	default:
		return pass1
	}
}

func (o *Orchestrator) record(r model.CategorizationResult, outcome string) {
	metrics.RecordCategorization(r.Engine.String(), outcome,
		r.Timings.Pass1, r.Timings.Pass2, r.Timings.Guardrail, r.Timings.Total)
}

func ruleVersionIDs(signals []model.Signal) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, s := range signals {
		id := s.Metadata.RuleVersionID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func categoryName(snap *Snapshot, id string) string {
	if c, ok := snap.Taxonomy.ByID(id); ok {
		return c.Name
	}
	return id
}
