package model

// CategoryScore aggregates every signal that points at one category.
// It only lives for the duration of a scoring call.
type CategoryScore struct {
	DominantSignal Signal
	CategoryID     string
	CategoryName   string
	Signals        []Signal
	TotalScore     float64
	Confidence     float64
}

// SignalTypes returns the distinct signal types present, in declaration order.
func (c CategoryScore) SignalTypes() []SignalType {
	seen := make(map[SignalType]bool, len(c.Signals))
	for _, s := range c.Signals {
		seen[s.Type] = true
	}
	types := make([]SignalType, 0, len(seen))
	for _, t := range AllSignalTypes {
		if seen[t] {
			types = append(types, t)
		}
	}
	return types
}

// ScoringResult is the Pass-1 output for one transaction.
type ScoringResult struct {
	BestCategory  *CategoryScore
	AllCandidates []CategoryScore
	Rationale     []string
}

// SignalCount returns how many signals back the best category.
func (r ScoringResult) SignalCount() int {
	if r.BestCategory == nil {
		return 0
	}
	return len(r.BestCategory.Signals)
}

// HasStrongSignalFor reports whether any candidate for categoryID carries a
// strong or exact signal.
func (r ScoringResult) HasStrongSignalFor(categoryID string) bool {
	for _, c := range r.AllCandidates {
		if c.CategoryID != categoryID {
			continue
		}
		for _, s := range c.Signals {
			if s.IsStrong() {
				return true
			}
		}
	}
	return false
}
