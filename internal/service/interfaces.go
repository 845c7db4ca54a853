// Package service defines the persistence contracts the engine depends on.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/saffron/internal/model"
)

// TransactionFilter narrows transaction queries. Zero values mean no filter.
type TransactionFilter struct {
	NeedsReview   *bool
	OrgID         string
	Limit         int
	Uncategorized bool
}

// DecisionUpdate is the set of transaction fields a decision writes.
// An empty CategoryID leaves the stored category unchanged.
type DecisionUpdate struct {
	OrgID       string
	TxID        string
	CategoryID  string
	Confidence  float64
	NeedsReview bool
	Reviewed    bool
}

// Storage is the full persistence contract.
type Storage interface {
	TransactionStore
	CategoryStore
	DecisionStore
	RuleStore
	OscillationStore

	Migrate(ctx context.Context) error
	Close() error
}

// TransactionStore reads and writes transactions.
type TransactionStore interface {
	SaveTransactions(ctx context.Context, transactions []model.NormalizedTransaction) error
	GetTransaction(ctx context.Context, id string) (*model.TransactionRecord, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.TransactionRecord, error)
	// GetLabeledSample returns the most recent reviewed transactions of an
	// organization. Their categories are treated as ground truth.
	GetLabeledSample(ctx context.Context, orgID string, limit int) ([]model.TransactionRecord, error)
}

// CategoryStore holds the taxonomy supplied by the category registry.
type CategoryStore interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
	SaveCategories(ctx context.Context, categories []model.Category) error
}

// DecisionStore applies decisions and keeps their append-only audit log.
type DecisionStore interface {
	// ApplyDecision updates the transaction and appends the audit row in one
	// database transaction.
	ApplyDecision(ctx context.Context, update DecisionUpdate, audit model.DecisionAudit) error
	GetDecisionAudits(ctx context.Context, txID string) ([]model.DecisionAudit, error)
	// GetCategoryHistory returns, per transaction id, the ordered categories
	// assigned since the given time and after the transaction's latest
	// oscillation resolution.
	GetCategoryHistory(ctx context.Context, orgID string, since time.Time) (map[string][]model.CategoryChange, error)
}

// RuleStore persists rule versions and everything measured about them.
type RuleStore interface {
	// CreateRuleVersion assigns the next version number for the draft's key
	// and links it to the previous version.
	CreateRuleVersion(ctx context.Context, draft model.RuleVersion) (*model.RuleVersion, error)
	GetRuleVersion(ctx context.Context, id string) (*model.RuleVersion, error)
	// GetActiveRuleVersions lists active versions for orgID. A zero ruleType
	// lists every type.
	GetActiveRuleVersions(ctx context.Context, orgID string, ruleType model.RuleType) ([]model.RuleVersion, error)
	GetRuleVersionHistory(ctx context.Context, key model.RuleKey) ([]model.RuleVersion, error)
	// ActivateRuleVersion makes id the only active version of its key.
	ActivateRuleVersion(ctx context.Context, id, actor string) error
	// RollbackRuleVersion deactivates id and reactivates its parent, which it
	// returns. It returns nil and changes nothing when id has no parent.
	RollbackRuleVersion(ctx context.Context, id, reason, actor string) (*model.RuleVersion, error)
	GetRuleEvents(ctx context.Context, ruleVersionID string) ([]model.RuleEvent, error)

	SaveCanaryResult(ctx context.Context, result *model.CanaryTestResult) error
	GetLatestCanaryResult(ctx context.Context, ruleVersionID string) (*model.CanaryTestResult, error)

	RecordRuleApplication(ctx context.Context, ruleVersionID string, day time.Time, confidence float64) error
	RecordRuleOutcome(ctx context.Context, ruleVersionID string, day time.Time, correct bool) error
	GetRuleEffectiveness(ctx context.Context, ruleVersionID string, from, to time.Time) ([]model.RuleEffectiveness, error)
}

// OscillationStore tracks unstable categorizations.
type OscillationStore interface {
	// SaveOscillation records an unresolved oscillation, updating the
	// existing unresolved row for the same transaction if there is one.
	SaveOscillation(ctx context.Context, o *model.CategoryOscillation) error
	GetUnresolvedOscillations(ctx context.Context, orgID string) ([]model.CategoryOscillation, error)
	// ResolveOscillation resolves an unresolved oscillation. It reports false
	// when the row was already resolved.
	ResolveOscillation(ctx context.Context, id, categoryID, resolvedBy string, at time.Time) (bool, error)
}
