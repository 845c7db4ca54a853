package signals

import (
	"fmt"
	"strings"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

// MinPenaltyFraction is the share of a keyword rule's base confidence that
// generic-term penalties can never take away.
const MinPenaltyFraction = 0.25

// KeywordExtractor fires keyword rules whose tokens all appear in the
// transaction text and none of whose exclude terms do.
type KeywordExtractor struct {
	tables     *rules.Tables
	categories resolver
}

// NewKeywordExtractor creates a keyword extractor.
func NewKeywordExtractor(tables *rules.Tables, taxonomy *model.Taxonomy) *KeywordExtractor {
	return &KeywordExtractor{tables: tables, categories: resolver{taxonomy: taxonomy}}
}

// Extract implements Extractor.
func (e *KeywordExtractor) Extract(tx model.NormalizedTransaction) []model.Signal {
	tokens := rules.Tokens(tx.Text())
	if len(tokens) == 0 {
		return nil
	}

	var out []model.Signal
	for _, rule := range e.tables.Keywords() {
		matched, ok := containsAll(tokens, rule.Keywords)
		if !ok || excluded(tokens, rule.ExcludeKeywords) {
			continue
		}
		category, ok := e.categories.bySlug(rule.Category)
		if !ok {
			continue
		}

		penalty := 0.0
		for _, term := range matched {
			penalty += e.tables.Penalty(term)
		}
		confidence := PenalizedConfidence(rule.Confidence, penalty)

		details := fmt.Sprintf("keyword %q", strings.Join(matched, " "))
		if penalty > 0 {
			details += fmt.Sprintf(" (generic-term penalty %.2f)", penalty)
		}

		out = append(out, model.NewSignal(
			model.SignalKeyword,
			category.ID,
			category.Name,
			model.StrengthMedium,
			confidence,
			model.DefaultWeight(model.SignalKeyword),
			model.SignalMetadata{
				Source:        "keyword",
				Details:       details,
				MatchedTerms:  matched,
				RuleVersionID: rule.RuleVersionID,
			},
		))
	}
	return out
}

// PenalizedConfidence subtracts penalty from base without going below
// MinPenaltyFraction of base.
func PenalizedConfidence(base, penalty float64) float64 {
	floor := base * MinPenaltyFraction
	if c := base - penalty; c > floor {
		return c
	}
	return floor
}

func containsAll(tokens map[string]bool, keywords []string) ([]string, bool) {
	var matched []string
	for _, kw := range keywords {
		for _, tok := range strings.Fields(rules.NormalizeText(kw)) {
			if !tokens[tok] {
				return nil, false
			}
			matched = append(matched, tok)
		}
	}
	return matched, len(matched) > 0
}

func excluded(tokens map[string]bool, exclude []string) bool {
	for _, term := range exclude {
		if _, ok := containsAll(tokens, []string{term}); ok {
			return true
		}
	}
	return false
}
