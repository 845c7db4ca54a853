package model

import (
	"fmt"
	"time"
)

// RuleType identifies the table a rule version belongs to.
type RuleType int

// Rule types. The zero value is deliberately invalid.
const (
	RuleMCC RuleType = iota + 1
	RuleVendor
	RuleKeyword
	RuleEmbedding
)

// AllRuleTypes lists every valid rule type.
var AllRuleTypes = []RuleType{RuleMCC, RuleVendor, RuleKeyword, RuleEmbedding}

func (t RuleType) String() string {
	switch t {
	case RuleMCC:
		return "mcc"
	case RuleVendor:
		return "vendor"
	case RuleKeyword:
		return "keyword"
	case RuleEmbedding:
		return "embedding"
	default:
		return fmt.Sprintf("RuleType(%d)", int(t))
	}
}

// Valid reports whether t is a declared rule type.
func (t RuleType) Valid() bool {
	return t >= RuleMCC && t <= RuleEmbedding
}

// SignalType returns the signal type produced by rules of this type.
func (t RuleType) SignalType() SignalType {
	switch t {
	case RuleMCC:
		return SignalMCC
	case RuleVendor:
		return SignalVendor
	case RuleKeyword:
		return SignalKeyword
	case RuleEmbedding:
		return SignalEmbedding
	default:
		return 0
	}
}

// ParseRuleType converts a string into a RuleType.
func ParseRuleType(s string) (RuleType, error) {
	for _, t := range AllRuleTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown rule type %q", s)
}

// RuleSource indicates how a rule version was created.
type RuleSource int

// Rule sources. The zero value is deliberately invalid.
const (
	SourceSystem RuleSource = iota + 1
	SourceLearned
	SourceManual
)

func (s RuleSource) String() string {
	switch s {
	case SourceSystem:
		return "system"
	case SourceLearned:
		return "learned"
	case SourceManual:
		return "manual"
	default:
		return fmt.Sprintf("RuleSource(%d)", int(s))
	}
}

// Valid reports whether s is a declared rule source.
func (s RuleSource) Valid() bool {
	return s >= SourceSystem && s <= SourceManual
}

// ActiveOnCreate reports whether rule versions from this source start active.
// Manual rules are trusted; everything else needs a passing canary first.
func (s RuleSource) ActiveOnCreate() bool {
	return s == SourceManual
}

// ParseRuleSource converts a string into a RuleSource.
func ParseRuleSource(s string) (RuleSource, error) {
	for _, src := range []RuleSource{SourceSystem, SourceLearned, SourceManual} {
		if src.String() == s {
			return src, nil
		}
	}
	return 0, fmt.Errorf("unknown rule source %q", s)
}

// RuleKey identifies the lineage a rule version belongs to.
type RuleKey struct {
	OrgID          string
	RuleIdentifier string
	RuleType       RuleType
}

func (k RuleKey) String() string {
	return k.OrgID + "/" + k.RuleType.String() + "/" + k.RuleIdentifier
}

// RuleVersion is one immutable revision of a categorization rule.
// For a given RuleKey versions increase by one per row and at most one is active.
//
// RuleIdentifier semantics depend on RuleType: the 4-digit code for mcc, the
// vendor pattern for vendor, the keyword for keyword and the reference text
// for embedding.
type RuleVersion struct {
	CreatedAt       time.Time         `json:"created_at"`
	ParentVersionID *string           `json:"parent_version_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ID              string            `json:"id"`
	OrgID           string            `json:"org_id"`
	RuleIdentifier  string            `json:"rule_identifier"`
	CategoryID      string            `json:"category_id"`
	CreatedBy       string            `json:"created_by"`
	Confidence      float64           `json:"confidence"`
	Version         int               `json:"version"`
	RuleType        RuleType          `json:"rule_type"`
	Source          RuleSource        `json:"source"`
	IsActive        bool              `json:"is_active"`
}

// Key returns the lineage key of the version.
func (v RuleVersion) Key() RuleKey {
	return RuleKey{OrgID: v.OrgID, RuleType: v.RuleType, RuleIdentifier: v.RuleIdentifier}
}

// CanaryTestResult is the write-once outcome of evaluating a rule version
// against a labeled sample.
type CanaryTestResult struct {
	CreatedAt       time.Time         `json:"created_at"`
	Precision       *float64          `json:"precision,omitempty"`
	Recall          *float64          `json:"recall,omitempty"`
	F1Score         *float64          `json:"f1_score,omitempty"`
	TestMetadata    map[string]string `json:"test_metadata,omitempty"`
	ID              string            `json:"id"`
	RuleVersionID   string            `json:"rule_version_id"`
	TestSetSize     int               `json:"test_set_size"`
	CorrectCount    int               `json:"correct_count"`
	IncorrectCount  int               `json:"incorrect_count"`
	Accuracy        float64           `json:"accuracy"`
	PassedThreshold bool              `json:"passed_threshold"`
}

// RuleEffectiveness is one day of rolling metrics for a rule version.
type RuleEffectiveness struct {
	MeasurementDate   time.Time `json:"measurement_date"`
	Precision         *float64  `json:"precision,omitempty"`
	RuleVersionID     string    `json:"rule_version_id"`
	ApplicationsCount int       `json:"applications_count"`
	CorrectCount      int       `json:"correct_count"`
	IncorrectCount    int       `json:"incorrect_count"`
	AvgConfidence     float64   `json:"avg_confidence"`
}

// Rule lifecycle actions recorded in the rule event log.
const (
	RuleActionCreate   = "create"
	RuleActionPromote  = "promote"
	RuleActionRollback = "rollback"
)

// RuleEvent is an append-only record of a lifecycle action on a rule version.
type RuleEvent struct {
	CreatedAt     time.Time `json:"created_at"`
	ID            string    `json:"id"`
	RuleVersionID string    `json:"rule_version_id"`
	Action        string    `json:"action"`
	Actor         string    `json:"actor"`
	Reason        string    `json:"reason,omitempty"`
}
