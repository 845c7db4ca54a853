package model

import "time"

// CategoryChange is one entry of a transaction's category history.
type CategoryChange struct {
	ChangedAt  time.Time `json:"changed_at"`
	CategoryID string    `json:"category_id"`
	ChangedBy  string    `json:"changed_by"`
}

// CategoryOscillation flags a transaction whose category keeps changing.
// It is detected unresolved and resolved exactly once.
type CategoryOscillation struct {
	DetectedAt           time.Time        `json:"detected_at"`
	ResolutionCategoryID *string          `json:"resolution_category_id,omitempty"`
	ResolvedBy           *string          `json:"resolved_by,omitempty"`
	ResolvedAt           *time.Time       `json:"resolved_at,omitempty"`
	ID                   string           `json:"id"`
	OrgID                string           `json:"org_id"`
	TxID                 string           `json:"tx_id"`
	Sequence             []CategoryChange `json:"oscillation_sequence"`
	Count                int              `json:"oscillation_count"`
	IsResolved           bool             `json:"is_resolved"`
}

// CountChanges returns how many times the category actually changed between
// consecutive entries of an ordered history.
func CountChanges(history []CategoryChange) int {
	changes := 0
	for i := 1; i < len(history); i++ {
		if history[i].CategoryID != history[i-1].CategoryID {
			changes++
		}
	}
	return changes
}
