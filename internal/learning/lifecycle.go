package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

// CreateRuleVersion stores draft as the next version of its lineage. Manual
// drafts become active immediately; system and learned drafts wait for a
// passing canary test.
func (s *Service) CreateRuleVersion(ctx context.Context, draft model.RuleVersion) (v *model.RuleVersion, err error) {
	defer func() { metrics.RecordRuleOperation("create", err, false) }()

	if err := rules.ValidateRuleVersion(draft, s.taxonomy); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(draft.Key().String())
	defer unlock()

	v, err = s.store.CreateRuleVersion(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("create rule version for %s: %w", draft.Key(), err)
	}
	s.logger.Info("created rule version",
		"rule_version_id", v.ID,
		"rule", v.Key().String(),
		"version", v.Version,
		"source", v.Source.String(),
		"active", v.IsActive)
	return v, nil
}

// PromoteRuleVersion activates id in place of its lineage's active version.
// The latest canary result of id must have passed.
func (s *Service) PromoteRuleVersion(ctx context.Context, id, actor string) (err error) {
	rejected := false
	defer func() { metrics.RecordRuleOperation("promote", err, rejected) }()

	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is required", common.ErrInvalidInput)
	}
	v, err := s.store.GetRuleVersion(ctx, id)
	if err != nil {
		return fmt.Errorf("load rule version %s: %w", id, err)
	}

	unlock := s.locks.Lock(v.Key().String())
	defer unlock()

	canary, err := s.store.GetLatestCanaryResult(ctx, id)
	if err != nil {
		return fmt.Errorf("load canary result for %s: %w", id, err)
	}
	if canary == nil || !canary.PassedThreshold {
		rejected = true
		s.logger.Warn("refused promotion without passing canary",
			"rule_version_id", id,
			"actor", actor)
		return fmt.Errorf("%w: rule version %s", common.ErrCanaryNotPassed, id)
	}

	if err := s.store.ActivateRuleVersion(ctx, id, actor); err != nil {
		return fmt.Errorf("activate rule version %s: %w", id, err)
	}
	s.logger.Info("promoted rule version",
		"rule_version_id", id,
		"rule", v.Key().String(),
		"version", v.Version,
		"actor", actor)
	return nil
}

// RollbackRuleVersion deactivates id and reactivates its parent. It returns
// false without changing anything when id is the first version of its
// lineage. reason is recorded in the rule event log.
func (s *Service) RollbackRuleVersion(ctx context.Context, id, reason, actor string) (rolledBack bool, err error) {
	defer func() { metrics.RecordRuleOperation("rollback", err, err == nil && !rolledBack) }()

	if strings.TrimSpace(reason) == "" {
		return false, fmt.Errorf("%w: rollback reason is required", common.ErrInvalidInput)
	}
	if strings.TrimSpace(actor) == "" {
		return false, fmt.Errorf("%w: actor is required", common.ErrInvalidInput)
	}
	v, err := s.store.GetRuleVersion(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load rule version %s: %w", id, err)
	}
	if v.ParentVersionID == nil {
		return false, nil
	}

	unlock := s.locks.Lock(v.Key().String())
	defer unlock()

	parent, err := s.store.RollbackRuleVersion(ctx, id, reason, actor)
	if err != nil {
		return false, fmt.Errorf("roll back rule version %s: %w", id, err)
	}
	if parent == nil {
		return false, nil
	}
	s.logger.Info("rolled back rule version",
		"rule_version_id", id,
		"restored_version_id", parent.ID,
		"rule", v.Key().String(),
		"reason", reason,
		"actor", actor)
	return true, nil
}

// GetActiveRuleVersions lists the active versions of orgID. A zero ruleType
// lists every type.
func (s *Service) GetActiveRuleVersions(ctx context.Context, orgID string, ruleType model.RuleType) ([]model.RuleVersion, error) {
	return s.store.GetActiveRuleVersions(ctx, orgID, ruleType)
}

// GetRuleVersionHistory lists every version of a lineage, oldest first.
func (s *Service) GetRuleVersionHistory(ctx context.Context, key model.RuleKey) ([]model.RuleVersion, error) {
	return s.store.GetRuleVersionHistory(ctx, key)
}

// GetRuleEvents returns the lifecycle log of a rule version.
func (s *Service) GetRuleEvents(ctx context.Context, id string) ([]model.RuleEvent, error) {
	return s.store.GetRuleEvents(ctx, id)
}

// GetRuleEffectiveness returns the daily metrics of a rule version between
// from and to. It has no side effects.
func (s *Service) GetRuleEffectiveness(ctx context.Context, id string, from, to time.Time) ([]model.RuleEffectiveness, error) {
	return s.store.GetRuleEffectiveness(ctx, id, from, to)
}

// RecordApplication counts one application of each rule version on today's
// measurement row.
func (s *Service) RecordApplication(ctx context.Context, ruleVersionIDs []string, confidence float64) error {
	day := s.now()
	var errs []error
	for _, id := range ruleVersionIDs {
		if err := s.store.RecordRuleApplication(ctx, id, day, confidence); err != nil {
			errs = append(errs, fmt.Errorf("rule version %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
