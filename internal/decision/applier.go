// Package decision applies categorization results to stored transactions.
package decision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/metrics"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
	"github.com/google/uuid"
)

// DefaultAutoApplyThreshold is the confidence at or above which a result is
// applied without review.
const DefaultAutoApplyThreshold = 0.85

// Decision modes reported to metrics.
const (
	ModeAutoApplied = "auto_applied"
	ModeNeedsReview = "needs_review"
	ModeRejected    = "rejected"
)

// Store is the storage the applier needs.
type Store interface {
	GetTransaction(ctx context.Context, id string) (*model.TransactionRecord, error)
	ApplyDecision(ctx context.Context, update service.DecisionUpdate, audit model.DecisionAudit) error
}

// ApplicationRecorder counts rule applications for effectiveness tracking.
type ApplicationRecorder interface {
	RecordApplication(ctx context.Context, ruleVersionIDs []string, confidence float64) error
}

// Applier writes results to transactions and appends their audit rows.
type Applier struct {
	store     Store
	recorder  ApplicationRecorder
	logger    *slog.Logger
	now       func() time.Time
	threshold float64
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Applier) { a.logger = l }
}

// WithApplicationRecorder records rule applications after each applied decision.
func WithApplicationRecorder(r ApplicationRecorder) Option {
	return func(a *Applier) { a.recorder = r }
}

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Applier) { a.now = now }
}

// NewApplier returns an Applier. A threshold outside (0, 1] falls back to
// DefaultAutoApplyThreshold.
func NewApplier(store Store, threshold float64, opts ...Option) *Applier {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAutoApplyThreshold
	}
	a := &Applier{
		store:     store,
		threshold: threshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = common.LoggerOrDefault(a.logger)
	return a
}

// DecideAndApply persists result on the transaction txID owned by orgID.
//
// Results at or above the auto-apply threshold, and every manual decision,
// clear the review flag. Anything else keeps the tentative category but is
// flagged for review with reason low_confidence. The transaction must exist
// and belong to orgID; otherwise nothing is written.
func (a *Applier) DecideAndApply(ctx context.Context, orgID, txID string, result model.CategorizationResult, source model.DecisionSource) error {
	if orgID == "" || txID == "" {
		a.reject()
		return fmt.Errorf("%w: organization and transaction are required", common.ErrInvalidInput)
	}

	rec, err := a.store.GetTransaction(ctx, txID)
	if err != nil {
		a.reject()
		return fmt.Errorf("load transaction %s: %w", txID, err)
	}
	if rec.Transaction.OrgID != orgID {
		a.reject()
		a.logger.Warn("rejected cross-organization decision",
			"transaction_id", txID,
			"org_id", orgID)
		return fmt.Errorf("%w: transaction %s does not belong to organization %s", common.ErrUnauthorized, txID, orgID)
	}

	auto := result.HasCategory() && (source == model.DecisionSourceManual || result.Confidence >= a.threshold)

	rationale := result.Rationale
	if len(rationale) == 0 && result.HasCategory() {
		rationale = []string{fmt.Sprintf("Categorized by %s", source)}
	}

	audit := model.DecisionAudit{
		ID:             uuid.NewString(),
		OrgID:          orgID,
		TxID:           txID,
		CategoryID:     result.CategoryID,
		Source:         source,
		Confidence:     result.Confidence,
		Rationale:      rationale,
		RuleVersionIDs: result.RuleVersionIDs,
		CreatedAt:      a.now(),
	}
	if !auto {
		audit.Reason = model.ReasonLowConfidence
	}

	update := service.DecisionUpdate{
		OrgID:       orgID,
		TxID:        txID,
		CategoryID:  result.CategoryID,
		Confidence:  result.Confidence,
		NeedsReview: !auto,
		Reviewed:    source == model.DecisionSourceManual,
	}
	if err := a.store.ApplyDecision(ctx, update, audit); err != nil {
		a.reject()
		return fmt.Errorf("apply decision to %s: %w", txID, err)
	}

	mode := ModeAutoApplied
	if !auto {
		mode = ModeNeedsReview
	}
	metrics.RecordDecision(mode)
	a.logger.Debug("applied decision",
		"transaction_id", txID,
		"category_id", result.CategoryID,
		"confidence", result.Confidence,
		"source", source,
		"mode", mode)

	if a.recorder != nil && result.HasCategory() && len(result.RuleVersionIDs) > 0 {
		if err := a.recorder.RecordApplication(ctx, result.RuleVersionIDs, result.Confidence); err != nil {
			a.logger.Warn("failed to record rule applications",
				"transaction_id", txID,
				"error", err)
		}
	}
	return nil
}

func (a *Applier) reject() {
	metrics.RecordDecision(ModeRejected)
}
