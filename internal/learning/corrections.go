package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/service"
	"github.com/google/uuid"
)

// Correction is a reviewer's verdict on a transaction's category.
type Correction struct {
	OrgID      string
	TxID       string
	CategoryID string
	Actor      string
	Note       string
}

// CorrectionOutcome reports what a correction changed.
type CorrectionOutcome struct {
	// ProposedRule is the learned vendor rule created for the merchant, if any.
	ProposedRule     *model.RuleVersion
	PreviousCategory string
	Changed          bool
}

// RecordCorrection applies a reviewer's category to a transaction. The rule
// versions behind the previous decision are scored as correct or incorrect,
// and when the merchant has no active vendor rule a learned one is proposed.
// Proposals stay inactive until a canary test passes and they are promoted.
func (s *Service) RecordCorrection(ctx context.Context, c Correction) (*CorrectionOutcome, error) {
	if c.OrgID == "" || c.TxID == "" || strings.TrimSpace(c.Actor) == "" {
		return nil, fmt.Errorf("%w: organization, transaction and actor are required", common.ErrInvalidInput)
	}
	category, ok := s.taxonomy.ByID(c.CategoryID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", common.ErrInvalidInput, c.CategoryID)
	}

	rec, err := s.store.GetTransaction(ctx, c.TxID)
	if err != nil {
		return nil, fmt.Errorf("load transaction %s: %w", c.TxID, err)
	}
	if rec.Transaction.OrgID != c.OrgID {
		return nil, fmt.Errorf("%w: transaction %s does not belong to organization %s", common.ErrUnauthorized, c.TxID, c.OrgID)
	}

	prior, err := s.lastCategorizedAudit(ctx, c.TxID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rationale := []string{fmt.Sprintf("Corrected to %s by %s", category.Name, c.Actor)}
	if note := strings.TrimSpace(c.Note); note != "" {
		rationale = append(rationale, note)
	}
	audit := model.DecisionAudit{
		ID:         uuid.NewString(),
		OrgID:      c.OrgID,
		TxID:       c.TxID,
		CategoryID: c.CategoryID,
		Source:     model.DecisionSourceManual,
		Confidence: 1,
		Rationale:  rationale,
		CreatedAt:  now,
	}
	update := service.DecisionUpdate{
		OrgID:      c.OrgID,
		TxID:       c.TxID,
		CategoryID: c.CategoryID,
		Confidence: 1,
		Reviewed:   true,
	}
	if err := s.store.ApplyDecision(ctx, update, audit); err != nil {
		return nil, fmt.Errorf("apply correction to %s: %w", c.TxID, err)
	}

	out := &CorrectionOutcome{Changed: true}
	if prior != nil {
		out.PreviousCategory = prior.CategoryID
		out.Changed = prior.CategoryID != c.CategoryID
		correct := !out.Changed
		for _, id := range prior.RuleVersionIDs {
			if err := s.store.RecordRuleOutcome(ctx, id, now, correct); err != nil {
				s.logger.Warn("failed to record rule outcome",
					"rule_version_id", id,
					"transaction_id", c.TxID,
					"error", err)
			}
		}
	}

	if out.Changed {
		proposed, err := s.proposeVendorRule(ctx, rec.Transaction, c)
		if err != nil {
			return nil, err
		}
		out.ProposedRule = proposed
	}

	s.logger.Info("recorded correction",
		"transaction_id", c.TxID,
		"previous_category", out.PreviousCategory,
		"category_id", c.CategoryID,
		"changed", out.Changed,
		"proposed_rule", out.ProposedRule != nil)
	return out, nil
}

func (s *Service) lastCategorizedAudit(ctx context.Context, txID string) (*model.DecisionAudit, error) {
	audits, err := s.store.GetDecisionAudits(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("load audit trail of %s: %w", txID, err)
	}
	for i := len(audits) - 1; i >= 0; i-- {
		if audits[i].CategoryID != "" {
			return &audits[i], nil
		}
	}
	return nil, nil
}

// proposeVendorRule creates an inactive learned vendor rule for the
// transaction's merchant unless one is already active or the latest version
// of that lineage already proposes the same category.
func (s *Service) proposeVendorRule(ctx context.Context, tx model.NormalizedTransaction, c Correction) (*model.RuleVersion, error) {
	merchant := rules.NormalizeVendor(tx.MerchantName)
	if merchant == "" {
		return nil, nil
	}

	key := model.RuleKey{OrgID: c.OrgID, RuleType: model.RuleVendor, RuleIdentifier: merchant}
	history, err := s.store.GetRuleVersionHistory(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load vendor rule history for %q: %w", merchant, err)
	}
	for _, v := range history {
		if v.IsActive {
			return nil, nil
		}
	}
	if n := len(history); n > 0 && history[n-1].CategoryID == c.CategoryID {
		return nil, nil
	}

	return s.CreateRuleVersion(ctx, model.RuleVersion{
		OrgID:          c.OrgID,
		RuleType:       model.RuleVendor,
		RuleIdentifier: merchant,
		CategoryID:     c.CategoryID,
		Confidence:     s.cfg.LearnedRuleConfidence,
		Source:         model.SourceLearned,
		Metadata: map[string]string{
			rules.MetaMatchType: string(rules.MatchExact),
			rules.MetaSourceTx:  tx.ID,
		},
		CreatedBy:      c.Actor,
	})
}
