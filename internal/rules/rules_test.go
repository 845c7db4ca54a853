package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVendor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Adobe Systems, Inc.", want: "adobe systems"},
		{in: "ACME   Widgets LLC", want: "acme widgets"},
		{in: "Globex Corp", want: "globex"},
		{in: "Amazon.com", want: "amazon com"},
		{in: "McDonald's", want: "mcdonalds"},
		{in: "Inc", want: "inc"},
		{in: "  ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVendor(tt.in))
		})
	}
}

func TestDefaultTables_Valid(t *testing.T) {
	tables := DefaultTables()
	taxonomy := model.NewTaxonomy(DefaultCategories())

	entry, ok := tables.MCC("7230")
	require.True(t, ok)
	assert.Equal(t, "hair-services", entry.Category)

	refs := map[string]bool{}
	for code := range tables.mcc {
		refs[tables.mcc[code].Category] = true
	}
	for _, r := range tables.Vendors() {
		refs[r.Category] = true
	}
	for _, r := range tables.Keywords() {
		refs[r.Category] = true
	}
	for _, r := range tables.Patterns() {
		refs[r.Category] = true
	}
	for _, r := range tables.Embeddings() {
		refs[r.Category] = true
	}
	for slug := range refs {
		_, ok := taxonomy.BySlug(slug)
		assert.True(t, ok, "default rules reference unknown category %q", slug)
	}

	for term, p := range DefaultPenalties() {
		assert.GreaterOrEqual(t, p, 0.01, term)
		assert.LessOrEqual(t, p, 0.20, term)
	}
}

func TestPatternsSortedByPriority(t *testing.T) {
	patterns := DefaultTables().Patterns()
	for i := 1; i < len(patterns); i++ {
		assert.GreaterOrEqual(t, patterns[i-1].Priority, patterns[i].Priority)
	}
}

func TestVendorRule_Matches(t *testing.T) {
	tests := []struct {
		name        string
		rule        VendorRule
		merchant    string
		description string
		want        bool
	}{
		{name: "exact", rule: VendorRule{Pattern: "UPS", Match: MatchExact}, merchant: "ups", want: true},
		{name: "exact miss", rule: VendorRule{Pattern: "UPS", Match: MatchExact}, merchant: "ups store", want: false},
		{name: "prefix", rule: VendorRule{Pattern: "GitHub", Match: MatchPrefix}, merchant: "github sponsors", want: true},
		{name: "suffix on description", rule: VendorRule{Pattern: "airlines", Match: MatchSuffix}, description: "united airlines", want: true},
		{name: "contains", rule: VendorRule{Pattern: "adobe", Match: MatchContains}, description: "adobe creative cloud", want: true},
		{name: "contains miss", rule: VendorRule{Pattern: "adobe", Match: MatchContains}, description: "autodesk", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Matches(tt.merchant, tt.description))
		})
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{name: "short mcc", spec: Spec{MCC: []MCCEntry{{Code: "723", Category: "x", Confidence: 0.9}}}},
		{name: "alpha mcc", spec: Spec{MCC: []MCCEntry{{Code: "72a0", Category: "x", Confidence: 0.9}}}},
		{name: "confidence above cap", spec: Spec{MCC: []MCCEntry{{Code: "7230", Category: "x", Confidence: 0.99}}}},
		{name: "zero confidence", spec: Spec{Vendors: []VendorRule{{Pattern: "a", Category: "x"}}}},
		{name: "bad regex", spec: Spec{Vendors: []VendorRule{{Pattern: "(", Match: MatchRegex, Category: "x", Confidence: 0.5}}}},
		{name: "unknown match", spec: Spec{Vendors: []VendorRule{{Pattern: "a", Match: "fuzzy", Category: "x", Confidence: 0.5}}}},
		{name: "empty keywords", spec: Spec{Keywords: []KeywordRule{{Category: "x", Confidence: 0.5}}}},
		{name: "missing category", spec: Spec{Patterns: []PatternRule{{Name: "p", Regex: "a", Confidence: 0.5}}}},
		{name: "penalty too large", spec: Spec{Penalties: map[string]float64{"com": 0.5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spec)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestLoadTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
mcc:
  - code: "7230"
    category: hair-services
    confidence: 0.92
vendors:
  - pattern: adobe
    match: contains
    category: software
    priority: 10
    confidence: 0.85
keywords:
  - keywords: [rent]
    exclude: [car, rental]
    category: rent
    confidence: 0.7
penalties:
  com: 0.15
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tables, err := LoadTables(path)
	require.NoError(t, err)
	assert.Equal(t, 1, tables.MCCCount())
	require.Len(t, tables.Vendors(), 1)
	assert.Equal(t, MatchContains, tables.Vendors()[0].Match)
	require.Len(t, tables.Keywords(), 1)
	assert.Equal(t, []string{"car", "rental"}, tables.Keywords()[0].ExcludeKeywords)
	assert.Equal(t, 0.15, tables.Penalty("com"))
	assert.Equal(t, 0.0, tables.Penalty("payment"))
}

func TestParseTables_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseTables([]byte("vendorz: []\n"))
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestParseTables_Empty(t *testing.T) {
	tables, err := ParseTables(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, tables.MCCCount())
	assert.Equal(t, 0.15, tables.Penalty("com"))
}

func TestWithRuleVersions(t *testing.T) {
	taxonomy := model.NewTaxonomy(DefaultCategories())
	base := DefaultTables()

	versions := []model.RuleVersion{
		{ID: "rv-mcc", RuleType: model.RuleMCC, RuleIdentifier: "7230", CategoryID: CategoryID("service-revenue"), Confidence: 0.9, IsActive: true},
		{ID: "rv-vendor", RuleType: model.RuleVendor, RuleIdentifier: "Adobe", CategoryID: CategoryID("advertising"), Confidence: 0.8, IsActive: true},
		{ID: "rv-new", RuleType: model.RuleKeyword, RuleIdentifier: "salon supplies", CategoryID: CategoryID("inventory"), Confidence: 0.7, IsActive: true,
			Metadata: map[string]string{MetaExclude: "refund"}},
		{ID: "rv-inactive", RuleType: model.RuleMCC, RuleIdentifier: "5812", CategoryID: CategoryID("travel"), Confidence: 0.9},
	}

	layered, err := base.WithRuleVersions(versions, taxonomy)
	require.NoError(t, err)

	entry, _ := layered.MCC("7230")
	assert.Equal(t, "service-revenue", entry.Category)
	assert.Equal(t, "rv-mcc", entry.RuleVersionID)

	meals, _ := layered.MCC("5812")
	assert.Equal(t, "meals", meals.Category)

	var adobe []VendorRule
	for _, r := range layered.Vendors() {
		if NormalizeVendor(r.Pattern) == "adobe" {
			adobe = append(adobe, r)
		}
	}
	require.Len(t, adobe, 1)
	assert.Equal(t, "advertising", adobe[0].Category)
	assert.Equal(t, DefaultVersionPriority, adobe[0].Priority)

	last := layered.Keywords()[len(layered.Keywords())-1]
	assert.Equal(t, []string{"salon", "supplies"}, last.Keywords)
	assert.Equal(t, []string{"refund"}, last.ExcludeKeywords)

	original, _ := base.MCC("7230")
	assert.Equal(t, "hair-services", original.Category, "base tables must not change")
}

func TestWithRuleVersions_UnknownCategory(t *testing.T) {
	taxonomy := model.NewTaxonomy(DefaultCategories())
	_, err := DefaultTables().WithRuleVersions([]model.RuleVersion{
		{ID: "x", RuleType: model.RuleMCC, RuleIdentifier: "7230", CategoryID: "nope", Confidence: 0.9, IsActive: true},
	}, taxonomy)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestCompileRuleVersion(t *testing.T) {
	taxonomy := model.NewTaxonomy(DefaultCategories())
	v := model.RuleVersion{ID: "v1", RuleType: model.RuleVendor, RuleIdentifier: "Acme Salon Supply LLC", CategoryID: CategoryID("inventory"), Confidence: 0.85,
		Metadata: map[string]string{MetaMatchType: "prefix"}}

	tables, err := DefaultTables().CompileRuleVersion(v, taxonomy)
	require.NoError(t, err)
	assert.Equal(t, 0, tables.MCCCount())
	require.Len(t, tables.Vendors(), 1)
	assert.Equal(t, MatchPrefix, tables.Vendors()[0].Match)
	assert.True(t, tables.Vendors()[0].Matches("acme salon supply", ""))
	assert.Equal(t, 0.15, tables.Penalty("com"))

	bad := v
	bad.Metadata = map[string]string{MetaPriority: "high"}
	assert.Error(t, ValidateRuleVersion(bad, taxonomy))
}

func TestNormalizeText_StripsAccents(t *testing.T) {
	assert.Equal(t, "cafe creme", NormalizeText("Café  Crème!"))
}
