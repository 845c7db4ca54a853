package model

import "fmt"

// MaxConfidence is the ceiling for any single signal or aggregated score.
const MaxConfidence = 0.98

// SignalType identifies which extractor produced a signal.
type SignalType int

// Signal types. The zero value is deliberately invalid.
const (
	SignalMCC SignalType = iota + 1
	SignalVendor
	SignalKeyword
	SignalPattern
	SignalEmbedding
)

// AllSignalTypes lists every valid signal type in weight order.
var AllSignalTypes = []SignalType{SignalMCC, SignalVendor, SignalKeyword, SignalPattern, SignalEmbedding}

func (t SignalType) String() string {
	switch t {
	case SignalMCC:
		return "mcc"
	case SignalVendor:
		return "vendor"
	case SignalKeyword:
		return "keyword"
	case SignalPattern:
		return "pattern"
	case SignalEmbedding:
		return "embedding"
	default:
		return fmt.Sprintf("SignalType(%d)", int(t))
	}
}

// Valid reports whether t is one of the declared signal types.
func (t SignalType) Valid() bool {
	return t >= SignalMCC && t <= SignalEmbedding
}

// ParseSignalType converts a string into a SignalType.
func ParseSignalType(s string) (SignalType, error) {
	for _, t := range AllSignalTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown signal type %q", s)
}

// Strength grades how specific a match was.
type Strength int

// Signal strengths, weakest first.
const (
	StrengthWeak Strength = iota + 1
	StrengthMedium
	StrengthStrong
	StrengthExact
)

func (s Strength) String() string {
	switch s {
	case StrengthWeak:
		return "weak"
	case StrengthMedium:
		return "medium"
	case StrengthStrong:
		return "strong"
	case StrengthExact:
		return "exact"
	default:
		return fmt.Sprintf("Strength(%d)", int(s))
	}
}

// Valid reports whether s is one of the declared strengths.
func (s Strength) Valid() bool {
	return s >= StrengthWeak && s <= StrengthExact
}

// Modifier is the multiplier applied to a rule's base confidence.
// Monotonic: exact >= strong >= medium >= weak.
func (s Strength) Modifier() float64 {
	switch s {
	case StrengthExact:
		return 1.0
	case StrengthStrong:
		return 0.9
	case StrengthMedium:
		return 0.75
	case StrengthWeak:
		return 0.6
	default:
		return 0
	}
}

// ParseStrength converts a string into a Strength.
func ParseStrength(s string) (Strength, error) {
	for _, st := range []Strength{StrengthWeak, StrengthMedium, StrengthStrong, StrengthExact} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown strength %q", s)
}

// SignalMetadata describes where a signal came from.
type SignalMetadata struct {
	Source        string
	Details       string
	RuleVersionID string
	MatchedTerms  []string
}

// Signal is one piece of evidence linking a transaction to a category.
// Signals are values: construct them with NewSignal and never mutate them.
type Signal struct {
	CategoryID   string
	CategoryName string
	Metadata     SignalMetadata
	Confidence   float64
	Weight       float64
	Type         SignalType
	Strength     Strength
}

// NewSignal builds a signal, applying the strength modifier to base and
// clamping the result to [0, MaxConfidence].
func NewSignal(t SignalType, categoryID, categoryName string, strength Strength, base, weight float64, meta SignalMetadata) Signal {
	conf := clamp(base*strength.Modifier(), 0, MaxConfidence)
	if len(meta.MatchedTerms) > 0 {
		terms := make([]string, len(meta.MatchedTerms))
		copy(terms, meta.MatchedTerms)
		meta.MatchedTerms = terms
	}
	return Signal{
		Type:         t,
		CategoryID:   categoryID,
		CategoryName: categoryName,
		Strength:     strength,
		Confidence:   conf,
		Weight:       weight,
		Metadata:     meta,
	}
}

// IsStrong reports whether the signal is at least strong.
func (s Signal) IsStrong() bool {
	return s.Strength >= StrengthStrong
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultWeight returns the weight class of a signal type. Heavier types
// dominate ties when signals are aggregated.
func DefaultWeight(t SignalType) float64 {
	switch t {
	case SignalMCC:
		return 4.25
	case SignalVendor:
		return 3.75
	case SignalKeyword:
		return 2.25
	case SignalPattern:
		return 1.5
	case SignalEmbedding:
		return 1.0
	default:
		return 0
	}
}
