package learning

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/signals"
)

// canaryCounts is the confusion tally of one rule version over a sample.
type canaryCounts struct {
	sampled   int
	applied   int
	correct   int
	positives int
}

// RunCanaryTest evaluates rule version id against the organization's most
// recently reviewed transactions and stores the result. The transaction a
// learned rule was proposed from is not part of the sample. It never changes
// which version is active.
func (s *Service) RunCanaryTest(ctx context.Context, id string) (result *model.CanaryTestResult, err error) {
	rejected := false
	defer func() { metrics.RecordRuleOperation("canary", err, rejected) }()

	v, err := s.store.GetRuleVersion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load rule version %s: %w", id, err)
	}
	heldOut := v.Metadata[rules.MetaSourceTx]
	limit := s.cfg.CanarySampleSize
	if heldOut != "" {
		limit++
	}
	sample, err := s.store.GetLabeledSample(ctx, v.OrgID, limit)
	if err != nil {
		return nil, fmt.Errorf("load labeled sample for %s: %w", v.OrgID, err)
	}
	sample = holdOut(sample, heldOut, s.cfg.CanarySampleSize)

	counts, err := s.evaluate(*v, sample)
	if err != nil {
		return nil, err
	}

	result = s.canaryResult(*v, counts)
	if err := s.store.SaveCanaryResult(ctx, result); err != nil {
		return nil, fmt.Errorf("save canary result for %s: %w", id, err)
	}

	rejected = !result.PassedThreshold
	metrics.RecordCanary(result.Accuracy)
	s.logger.Info("canary test finished",
		"rule_version_id", id,
		"sample", counts.sampled,
		"applied", counts.applied,
		"accuracy", result.Accuracy,
		"passed", result.PassedThreshold)
	return result, nil
}

// evaluate runs v alone over sample. A transaction counts as applied when v
// produced a signal for it, and as correct when its reviewed category is the
// category v predicts.
func (s *Service) evaluate(v model.RuleVersion, sample []model.TransactionRecord) (canaryCounts, error) {
	tables, err := s.tables.CompileRuleVersion(v, s.taxonomy)
	if err != nil {
		return canaryCounts{}, fmt.Errorf("compile rule version %s: %w", v.ID, err)
	}
	opts := append([]signals.Option{signals.WithLogger(s.logger)}, s.signalOptions...)
	set, err := signals.NewSet(tables, s.taxonomy, opts...)
	if err != nil {
		return canaryCounts{}, fmt.Errorf("build extractors for %s: %w", v.ID, err)
	}

	counts := canaryCounts{sampled: len(sample)}
	for _, rec := range sample {
		label := rec.CategoryID
		if label == v.CategoryID {
			counts.positives++
		}
		if !firedFor(set.Extract(rec.Transaction), v) {
			continue
		}
		counts.applied++
		if label == v.CategoryID {
			counts.correct++
		}
	}
	return counts, nil
}

func holdOut(sample []model.TransactionRecord, txID string, size int) []model.TransactionRecord {
	kept := sample[:0:0]
	for _, rec := range sample {
		if txID != "" && rec.Transaction.ID == txID {
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) > size {
		kept = kept[:size]
	}
	return kept
}

func firedFor(sigs []model.Signal, v model.RuleVersion) bool {
	for _, sig := range sigs {
		if sig.Metadata.RuleVersionID == v.ID && sig.CategoryID == v.CategoryID {
			return true
		}
	}
	return false
}

func (s *Service) canaryResult(v model.RuleVersion, c canaryCounts) *model.CanaryTestResult {
	r := &model.CanaryTestResult{
		RuleVersionID:  v.ID,
		TestSetSize:    c.sampled,
		CorrectCount:   c.correct,
		IncorrectCount: c.applied - c.correct,
		TestMetadata: map[string]string{
			"applied":           strconv.Itoa(c.applied),
			"labeled_positives": strconv.Itoa(c.positives),
			"threshold":         strconv.FormatFloat(s.cfg.AccuracyThreshold, 'f', -1, 64),
		},
		CreatedAt: s.now(),
	}

	if c.applied > 0 {
		r.Accuracy = float64(c.correct) / float64(c.applied)
		precision := r.Accuracy
		r.Precision = &precision
	}
	if c.positives > 0 {
		recall := float64(c.correct) / float64(c.positives)
		r.Recall = &recall
	}
	if r.Precision != nil && r.Recall != nil && *r.Precision+*r.Recall > 0 {
		f1 := 2 * *r.Precision * *r.Recall / (*r.Precision + *r.Recall)
		r.F1Score = &f1
	}
	r.PassedThreshold = c.applied > 0 && r.Accuracy >= s.cfg.AccuracyThreshold
	return r
}
