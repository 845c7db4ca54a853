package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
)

// OscillationReport is the outcome of DetectRuleOscillations.
type OscillationReport struct {
	TxIDs         []string
	IsOscillating bool
}

// DetectRuleOscillations flags every transaction of orgID whose category
// changed at least OscillationThreshold times within the lookback window.
// Flagged transactions are stored as unresolved oscillations.
func (s *Service) DetectRuleOscillations(ctx context.Context, orgID string) (OscillationReport, error) {
	now := s.now()
	history, err := s.store.GetCategoryHistory(ctx, orgID, now.Add(-s.cfg.OscillationLookback))
	if err != nil {
		return OscillationReport{}, fmt.Errorf("load category history for %s: %w", orgID, err)
	}

	txIDs := make([]string, 0, len(history))
	for txID := range history {
		txIDs = append(txIDs, txID)
	}
	sort.Strings(txIDs)

	var report OscillationReport
	for _, txID := range txIDs {
		seq := history[txID]
		changes := model.CountChanges(seq)
		if changes < s.cfg.OscillationThreshold {
			continue
		}
		o := &model.CategoryOscillation{
			OrgID:      orgID,
			TxID:       txID,
			Sequence:   seq,
			Count:      changes,
			DetectedAt: now,
		}
		if err := s.store.SaveOscillation(ctx, o); err != nil {
			return OscillationReport{}, fmt.Errorf("save oscillation for %s: %w", txID, err)
		}
		report.TxIDs = append(report.TxIDs, txID)
	}
	report.IsOscillating = len(report.TxIDs) > 0

	metrics.RecordOscillations("detected", len(report.TxIDs))
	if report.IsOscillating {
		s.logger.Warn("detected oscillating categorizations",
			"org_id", orgID,
			"count", len(report.TxIDs))
	}
	return report, nil
}

// GetUnresolvedOscillations lists open oscillations for operator triage.
func (s *Service) GetUnresolvedOscillations(ctx context.Context, orgID string) ([]model.CategoryOscillation, error) {
	return s.store.GetUnresolvedOscillations(ctx, orgID)
}

// ResolveOscillation settles an oscillation on categoryID. Only the first
// resolver wins; later calls return false and count nothing.
func (s *Service) ResolveOscillation(ctx context.Context, id, categoryID, actor string) (bool, error) {
	if strings.TrimSpace(actor) == "" {
		return false, fmt.Errorf("%w: actor is required", common.ErrInvalidInput)
	}
	if _, ok := s.taxonomy.ByID(categoryID); !ok {
		return false, fmt.Errorf("%w: unknown category %q", common.ErrInvalidInput, categoryID)
	}

	resolved, err := s.store.ResolveOscillation(ctx, id, categoryID, actor, s.now())
	if err != nil {
		return false, fmt.Errorf("resolve oscillation %s: %w", id, err)
	}
	if resolved {
		metrics.RecordOscillations("resolved", 1)
		s.logger.Info("resolved oscillation",
			"oscillation_id", id,
			"category_id", categoryID,
			"actor", actor)
	}
	return resolved, nil
}
