package model

import "time"

// DecisionSource records who or what produced a decision.
type DecisionSource string

// Decision sources.
const (
	DecisionSourcePass1  DecisionSource = "pass1"
	DecisionSourceLLM    DecisionSource = "llm"
	DecisionSourceManual DecisionSource = "manual"
)

// ReasonLowConfidence tags audit rows whose result was flagged for review.
const ReasonLowConfidence = "low_confidence"

// DecisionAudit is an append-only record of one decision about a transaction.
type DecisionAudit struct {
	CreatedAt      time.Time      `json:"created_at"`
	ID             string         `json:"id"`
	OrgID          string         `json:"org_id"`
	TxID           string         `json:"tx_id"`
	CategoryID     string         `json:"category_id"`
	Reason         string         `json:"reason,omitempty"`
	Source         DecisionSource `json:"source"`
	Rationale      []string       `json:"rationale"`
	RuleVersionIDs []string       `json:"rule_version_ids,omitempty"`
	Confidence     float64        `json:"confidence"`
}

// SourceForEngine maps the engine that produced a result to its audit source.
func SourceForEngine(e Engine) DecisionSource {
	if e == EngineLLM {
		return DecisionSourceLLM
	}
	return DecisionSourcePass1
}
