package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

// Metadata keys understood when a rule version is compiled.
const (
	MetaMatchType = "match"
	MetaPriority  = "priority"
	MetaExclude   = "exclude"
	MetaFamily    = "family"
)

// MetaSourceTx names the transaction a learned rule was proposed from.
// Canary tests leave that transaction out of their sample.
const MetaSourceTx = "source_tx"

// DefaultVersionPriority ranks rule versions above built-in vendor rules.
const DefaultVersionPriority = 100

// WithRuleVersions returns new tables with the given rule versions layered on
// top of t. A version whose identifier already exists replaces that rule.
// Inactive versions are ignored. The receiver is left untouched.
func (t *Tables) WithRuleVersions(versions []model.RuleVersion, taxonomy *model.Taxonomy) (*Tables, error) {
	out := t.clone()
	for _, v := range versions {
		if !v.IsActive {
			continue
		}
		if err := out.overlay(v, taxonomy); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CompileRuleVersion builds tables holding only v, regardless of whether v
// is active. Penalties are shared with t.
func (t *Tables) CompileRuleVersion(v model.RuleVersion, taxonomy *model.Taxonomy) (*Tables, error) {
	out := &Tables{
		mcc:       make(map[string]MCCEntry, 1),
		penalties: t.penalties,
	}
	if err := out.overlay(v, taxonomy); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateRuleVersion checks that v can be compiled into tables.
func ValidateRuleVersion(v model.RuleVersion, taxonomy *model.Taxonomy) error {
	_, err := Empty().CompileRuleVersion(v, taxonomy)
	return err
}

func (t *Tables) overlay(v model.RuleVersion, taxonomy *model.Taxonomy) error {
	if taxonomy == nil {
		return fmt.Errorf("%w: no taxonomy to resolve rule version %s", common.ErrMissingConfig, v.ID)
	}
	category, ok := taxonomy.ByID(v.CategoryID)
	if !ok {
		return fmt.Errorf("%w: rule version %s references unknown category %q", common.ErrInvalidConfig, v.ID, v.CategoryID)
	}

	switch v.RuleType {
	case model.RuleMCC:
		entry := MCCEntry{
			Code:          strings.TrimSpace(v.RuleIdentifier),
			Category:      category.Slug,
			Confidence:    v.Confidence,
			RuleVersionID: v.ID,
		}
		return t.addMCC(entry)

	case model.RuleVendor:
		rule := VendorRule{
			Pattern:       v.RuleIdentifier,
			Category:      category.Slug,
			Family:        v.Metadata[MetaFamily],
			Match:         MatchType(v.Metadata[MetaMatchType]),
			Priority:      DefaultVersionPriority,
			Confidence:    v.Confidence,
			RuleVersionID: v.ID,
		}
		if p, ok := v.Metadata[MetaPriority]; ok {
			n, err := strconv.Atoi(p)
			if err != nil {
				return fmt.Errorf("%w: rule version %s priority %q: %w", common.ErrInvalidConfig, v.ID, p, err)
			}
			rule.Priority = n
		}
		key := NormalizeVendor(v.RuleIdentifier)
		kept := t.vendors[:0:0]
		for _, existing := range t.vendors {
			if NormalizeVendor(existing.Pattern) != key {
				kept = append(kept, existing)
			}
		}
		t.vendors = kept
		return t.addVendor(rule)

	case model.RuleKeyword:
		rule := KeywordRule{
			Keywords:        strings.Fields(NormalizeText(v.RuleIdentifier)),
			ExcludeKeywords: splitList(v.Metadata[MetaExclude]),
			Category:        category.Slug,
			Confidence:      v.Confidence,
			RuleVersionID:   v.ID,
		}
		key := rule.Identifier()
		kept := t.keywords[:0:0]
		for _, existing := range t.keywords {
			if existing.Identifier() != key {
				kept = append(kept, existing)
			}
		}
		t.keywords = kept
		return t.addKeyword(rule)

	case model.RuleEmbedding:
		ref := EmbeddingReference{
			Text:          v.RuleIdentifier,
			Category:      category.Slug,
			RuleVersionID: v.ID,
		}
		key := NormalizeText(v.RuleIdentifier)
		kept := t.embeddings[:0:0]
		for _, existing := range t.embeddings {
			if NormalizeText(existing.Text) != key {
				kept = append(kept, existing)
			}
		}
		t.embeddings = kept
		return t.addEmbedding(ref)
	}

	return fmt.Errorf("%w: rule version %s has invalid rule type %v", common.ErrInvalidConfig, v.ID, v.RuleType)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
