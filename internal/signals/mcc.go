package signals

import (
	"fmt"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

// MCCExtractor looks up the transaction's merchant category code.
type MCCExtractor struct {
	tables     *rules.Tables
	categories resolver
}

// NewMCCExtractor creates an MCC extractor.
func NewMCCExtractor(tables *rules.Tables, taxonomy *model.Taxonomy) *MCCExtractor {
	return &MCCExtractor{tables: tables, categories: resolver{taxonomy: taxonomy}}
}

// Extract implements Extractor.
func (e *MCCExtractor) Extract(tx model.NormalizedTransaction) []model.Signal {
	if tx.MCC == "" {
		return nil
	}
	entry, ok := e.tables.MCC(tx.MCC)
	if !ok {
		return nil
	}
	category, ok := e.categories.bySlug(entry.Category)
	if !ok {
		return nil
	}

	details := fmt.Sprintf("MCC %s", entry.Code)
	if entry.Description != "" {
		details += " (" + entry.Description + ")"
	}

	return []model.Signal{model.NewSignal(
		model.SignalMCC,
		category.ID,
		category.Name,
		model.StrengthExact,
		entry.Confidence,
		model.DefaultWeight(model.SignalMCC),
		model.SignalMetadata{
			Source:        "mcc",
			Details:       details,
			MatchedTerms:  []string{entry.Code},
			RuleVersionID: entry.RuleVersionID,
		},
	)}
}
