package signals

import (
	"fmt"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

// PatternExtractor runs regular-expression rules over the raw transaction
// text. Only the highest priority hit per category is reported.
type PatternExtractor struct {
	tables     *rules.Tables
	categories resolver
}

// NewPatternExtractor creates a pattern extractor.
func NewPatternExtractor(tables *rules.Tables, taxonomy *model.Taxonomy) *PatternExtractor {
	return &PatternExtractor{tables: tables, categories: resolver{taxonomy: taxonomy}}
}

// Extract implements Extractor.
func (e *PatternExtractor) Extract(tx model.NormalizedTransaction) []model.Signal {
	text := tx.Text()
	if text == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []model.Signal
	for _, p := range e.tables.Patterns() {
		if seen[p.Category] || !p.MatchString(text) {
			continue
		}
		category, ok := e.categories.bySlug(p.Category)
		if !ok {
			continue
		}
		seen[p.Category] = true
		out = append(out, model.NewSignal(
			model.SignalPattern,
			category.ID,
			category.Name,
			model.StrengthMedium,
			p.Confidence,
			model.DefaultWeight(model.SignalPattern),
			model.SignalMetadata{
				Source:  "pattern",
				Details: fmt.Sprintf("pattern %q", p.Name),
			},
		))
	}
	return out
}
