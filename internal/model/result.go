package model

import (
	"fmt"
	"time"
)

// Engine identifies which pass produced a categorization result.
type Engine int

// Engines. The zero value is deliberately invalid.
const (
	EnginePass1 Engine = iota + 1
	EngineLLM
)

func (e Engine) String() string {
	switch e {
	case EnginePass1:
		return "pass1"
	case EngineLLM:
		return "llm"
	default:
		return fmt.Sprintf("Engine(%d)", int(e))
	}
}

// Valid reports whether e is a declared engine.
func (e Engine) Valid() bool {
	return e == EnginePass1 || e == EngineLLM
}

// ParseEngine converts a string into an Engine.
func ParseEngine(s string) (Engine, error) {
	switch s {
	case "pass1":
		return EnginePass1, nil
	case "llm":
		return EngineLLM, nil
	}
	return 0, fmt.Errorf("unknown engine %q", s)
}

// Violation records a guardrail correction.
type Violation struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Timings holds per-phase durations for one categorization.
type Timings struct {
	Pass1     time.Duration `json:"pass1"`
	Pass2     time.Duration `json:"pass2"`
	Guardrail time.Duration `json:"guardrail"`
	Total     time.Duration `json:"total"`
}

// CategorizationResult is the engine's output for one transaction.
// A non-empty CategoryID is always accompanied by a non-empty Rationale.
type CategorizationResult struct {
	Attributes      map[string]string `json:"attributes,omitempty"`
	TransactionID   string            `json:"transaction_id"`
	CategoryID      string            `json:"category_id,omitempty"`
	Rationale       []string          `json:"rationale"`
	Violations      []Violation       `json:"violations,omitempty"`
	RuleVersionIDs  []string          `json:"rule_version_ids,omitempty"`
	Timings         Timings           `json:"timings"`
	Confidence      float64           `json:"confidence"`
	Engine          Engine            `json:"engine"`
	Pass2Attempts   int               `json:"pass2_attempts,omitempty"`
	NeedsManualWork bool              `json:"needs_manual_work,omitempty"`
}

// HasCategory reports whether a category was assigned.
func (r CategorizationResult) HasCategory() bool {
	return r.CategoryID != ""
}

// MarshalText encodes the engine by name. The zero engine encodes as empty.
func (e Engine) MarshalText() ([]byte, error) {
	if e == 0 {
		return []byte{}, nil
	}
	if !e.Valid() {
		return nil, fmt.Errorf("invalid engine %d", int(e))
	}
	return []byte(e.String()), nil
}

// UnmarshalText decodes an engine name.
func (e *Engine) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*e = 0
		return nil
	}
	parsed, err := ParseEngine(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
