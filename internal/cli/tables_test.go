package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/saffron/internal/engine"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/stretchr/testify/assert"
)

func testTaxonomy() *model.Taxonomy {
	return model.NewTaxonomy([]model.Category{
		{ID: "cat-meals", Slug: "meals", Name: "Meals", Type: model.CategoryTypeOpex},
		{ID: "cat-travel", Slug: "travel", Name: "Travel", Type: model.CategoryTypeOpex},
	})
}

func TestRuleVersionTable(t *testing.T) {
	out := RuleVersionTable([]model.RuleVersion{
		{
			ID:             "0123456789abcdef",
			RuleType:       model.RuleVendor,
			RuleIdentifier: "starbucks",
			Version:        2,
			CategoryID:     "cat-meals",
			Confidence:     0.9,
			Source:         model.SourceLearned,
			IsActive:       true,
		},
		{
			ID:             "short",
			RuleType:       model.RuleMCC,
			RuleIdentifier: "4511",
			Version:        1,
			CategoryID:     "cat-unknown-category",
			Confidence:     0.95,
			Source:         model.SourceSystem,
		},
	}, testTaxonomy())

	assert.Contains(t, out, "IDENTIFIER")
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "starbucks")
	assert.Contains(t, out, "meals")
	assert.Contains(t, out, "0.90")
	assert.Contains(t, out, "cat-unkn")
	assert.Equal(t, 1, strings.Count(out, SuccessIcon))
}

func TestOscillationTable(t *testing.T) {
	out := OscillationTable([]model.CategoryOscillation{{
		ID:    "osc-1",
		TxID:  "tx-42",
		Count: 3,
		Sequence: []model.CategoryChange{
			{CategoryID: "cat-meals"},
			{CategoryID: "cat-travel"},
			{CategoryID: "cat-meals"},
		},
		DetectedAt: time.Date(2024, 9, 15, 12, 0, 0, 0, time.UTC),
	}}, testTaxonomy())

	assert.Contains(t, out, "tx-42")
	assert.Contains(t, out, "meals → travel → meals")
}

func TestCanaryBox(t *testing.T) {
	precision := 0.8
	out := CanaryBox(&model.CanaryTestResult{
		RuleVersionID:   "rv-1",
		TestSetSize:     6,
		CorrectCount:    4,
		IncorrectCount:  1,
		Accuracy:        0.8,
		Precision:       &precision,
		PassedThreshold: true,
	})

	assert.Contains(t, out, "80.0%")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "passed")
	assert.NotContains(t, out, "did not pass")
}

func TestBatchSummaryBox(t *testing.T) {
	out := BatchSummaryBox(engine.BatchSummary{Total: 10, Pass1: 7, LLM: 3, NeedsReview: 2}, 1500*time.Millisecond)

	assert.Contains(t, out, "Categorization Complete")
	assert.Contains(t, out, "1.5s")
}

func TestEffectivenessTableSortsByDate(t *testing.T) {
	out := EffectivenessTable([]model.RuleEffectiveness{
		{MeasurementDate: time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC), ApplicationsCount: 2},
		{MeasurementDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), ApplicationsCount: 5},
	})

	assert.Less(t, strings.Index(out, "2024-09-01"), strings.Index(out, "2024-09-02"))
}

func TestCategoryLabel(t *testing.T) {
	assert.Equal(t, "-", categoryLabel(nil, ""))
	assert.Equal(t, "meals", categoryLabel(testTaxonomy(), "cat-meals"))
	assert.Equal(t, "abcdefgh", categoryLabel(nil, "abcdefghijkl"))
}
