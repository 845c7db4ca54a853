package signals

import (
	"fmt"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
)

// VendorExtractor matches the normalized merchant name and description
// against vendor rules. When several rules of one family hit, only the
// highest priority one is kept; hits in different families are all returned.
type VendorExtractor struct {
	tables     *rules.Tables
	categories resolver
}

// NewVendorExtractor creates a vendor extractor.
func NewVendorExtractor(tables *rules.Tables, taxonomy *model.Taxonomy) *VendorExtractor {
	return &VendorExtractor{tables: tables, categories: resolver{taxonomy: taxonomy}}
}

// Extract implements Extractor.
func (e *VendorExtractor) Extract(tx model.NormalizedTransaction) []model.Signal {
	merchant := rules.NormalizeVendor(tx.MerchantName)
	description := rules.NormalizeVendor(tx.Description)
	if merchant == "" && description == "" {
		return nil
	}

	best := make(map[string]int)
	var order []string
	vendors := e.tables.Vendors()
	for i, rule := range vendors {
		if !rule.Matches(merchant, description) {
			continue
		}
		family := rule.FamilyKey()
		current, seen := best[family]
		if !seen {
			best[family] = i
			order = append(order, family)
			continue
		}
		if outranks(rule, vendors[current]) {
			best[family] = i
		}
	}

	out := make([]model.Signal, 0, len(order))
	for _, family := range order {
		rule := vendors[best[family]]
		category, ok := e.categories.bySlug(rule.Category)
		if !ok {
			continue
		}
		out = append(out, model.NewSignal(
			model.SignalVendor,
			category.ID,
			category.Name,
			rule.Match.Strength(),
			rule.Confidence,
			model.DefaultWeight(model.SignalVendor),
			model.SignalMetadata{
				Source:        "vendor",
				Details:       fmt.Sprintf("vendor %s match on %q", rule.Match, rule.Pattern),
				MatchedTerms:  []string{rule.Pattern},
				RuleVersionID: rule.RuleVersionID,
			},
		))
	}
	return out
}

func outranks(a, b rules.VendorRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Confidence > b.Confidence
}
