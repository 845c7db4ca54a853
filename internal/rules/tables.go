// Package rules holds the rule tables that signal extractors match against.
//
// Tables are immutable once built. They are loaded once at startup, layered
// with the organization's active rule versions and then shared read-only by
// every categorization.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

// MatchType controls how a vendor pattern is compared with transaction text.
type MatchType string

// Vendor match types.
const (
	MatchExact    MatchType = "exact"
	MatchPrefix   MatchType = "prefix"
	MatchSuffix   MatchType = "suffix"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// Valid reports whether m is a known match type.
func (m MatchType) Valid() bool {
	switch m {
	case MatchExact, MatchPrefix, MatchSuffix, MatchContains, MatchRegex:
		return true
	}
	return false
}

// Strength returns the signal strength a hit of this match type carries.
func (m MatchType) Strength() model.Strength {
	switch m {
	case MatchExact:
		return model.StrengthExact
	case MatchPrefix, MatchRegex:
		return model.StrengthStrong
	default:
		return model.StrengthMedium
	}
}

// MCCEntry maps a merchant category code to a category.
type MCCEntry struct {
	Code          string  `yaml:"code"`
	Category      string  `yaml:"category"`
	Description   string  `yaml:"description,omitempty"`
	RuleVersionID string  `yaml:"-"`
	Confidence    float64 `yaml:"confidence"`
}

// VendorRule maps a merchant pattern to a category.
type VendorRule struct {
	re            *regexp.Regexp
	Pattern       string    `yaml:"pattern"`
	Category      string    `yaml:"category"`
	Family        string    `yaml:"family,omitempty"`
	Match         MatchType `yaml:"match"`
	RuleVersionID string    `yaml:"-"`
	Priority      int       `yaml:"priority"`
	Confidence    float64   `yaml:"confidence"`
}

// Matches reports whether the rule matches the normalized merchant and
// description.
func (r VendorRule) Matches(merchant, description string) bool {
	pattern := NormalizeVendor(r.Pattern)
	if r.Match != MatchRegex && pattern == "" {
		return false
	}
	switch r.Match {
	case MatchExact:
		return merchant == pattern || description == pattern
	case MatchPrefix:
		return strings.HasPrefix(merchant, pattern) || strings.HasPrefix(description, pattern)
	case MatchSuffix:
		return strings.HasSuffix(merchant, pattern) || strings.HasSuffix(description, pattern)
	case MatchContains:
		return strings.Contains(merchant, pattern) || strings.Contains(description, pattern)
	case MatchRegex:
		return r.re != nil && (r.re.MatchString(merchant) || r.re.MatchString(description))
	}
	return false
}

// FamilyKey returns the family used to choose among hits; it defaults to the
// rule's category.
func (r VendorRule) FamilyKey() string {
	if r.Family != "" {
		return r.Family
	}
	return r.Category
}

// KeywordRule fires when every keyword token is present and no exclude
// token is.
type KeywordRule struct {
	Keywords        []string `yaml:"keywords"`
	ExcludeKeywords []string `yaml:"exclude,omitempty"`
	Category        string   `yaml:"category"`
	RuleVersionID   string   `yaml:"-"`
	Confidence      float64  `yaml:"confidence"`
}

// Identifier returns the normalized keyword phrase of the rule.
func (r KeywordRule) Identifier() string {
	return NormalizeText(strings.Join(r.Keywords, " "))
}

// PatternRule is a regular expression over the raw transaction text.
type PatternRule struct {
	re         *regexp.Regexp
	Name       string  `yaml:"name"`
	Regex      string  `yaml:"regex"`
	Category   string  `yaml:"category"`
	Priority   int     `yaml:"priority"`
	Confidence float64 `yaml:"confidence"`
}

// MatchString reports whether the compiled pattern matches text.
func (r PatternRule) MatchString(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

// EmbeddingReference is a reference text whose embedding stands for a category.
type EmbeddingReference struct {
	Text          string `yaml:"text"`
	Category      string `yaml:"category"`
	RuleVersionID string `yaml:"-"`
}

// Tables is the immutable set of rules. Accessors return shared slices that
// callers must not modify.
type Tables struct {
	mcc        map[string]MCCEntry
	penalties  map[string]float64
	vendors    []VendorRule
	keywords   []KeywordRule
	patterns   []PatternRule
	embeddings []EmbeddingReference
}

// Spec is the serializable form of Tables.
type Spec struct {
	Penalties  map[string]float64   `yaml:"penalties,omitempty"`
	MCC        []MCCEntry           `yaml:"mcc,omitempty"`
	Vendors    []VendorRule         `yaml:"vendors,omitempty"`
	Keywords   []KeywordRule        `yaml:"keywords,omitempty"`
	Patterns   []PatternRule        `yaml:"patterns,omitempty"`
	Embeddings []EmbeddingReference `yaml:"embeddings,omitempty"`
}

// New validates spec and builds Tables from it. A nil penalty table falls
// back to DefaultPenalties.
func New(spec Spec) (*Tables, error) {
	t := &Tables{
		mcc:        make(map[string]MCCEntry, len(spec.MCC)),
		penalties:  make(map[string]float64),
		vendors:    make([]VendorRule, 0, len(spec.Vendors)),
		keywords:   make([]KeywordRule, 0, len(spec.Keywords)),
		patterns:   make([]PatternRule, 0, len(spec.Patterns)),
		embeddings: make([]EmbeddingReference, 0, len(spec.Embeddings)),
	}

	penalties := spec.Penalties
	if penalties == nil {
		penalties = DefaultPenalties()
	}
	for term, p := range penalties {
		if p < 0.01 || p > 0.20 {
			return nil, fmt.Errorf("%w: penalty for %q must be within [0.01, 0.20], got %v", common.ErrInvalidConfig, term, p)
		}
		t.penalties[NormalizeText(term)] = p
	}

	for _, e := range spec.MCC {
		if err := t.addMCC(e); err != nil {
			return nil, err
		}
	}
	for _, r := range spec.Vendors {
		if err := t.addVendor(r); err != nil {
			return nil, err
		}
	}
	for _, r := range spec.Keywords {
		if err := t.addKeyword(r); err != nil {
			return nil, err
		}
	}
	for _, r := range spec.Patterns {
		if err := t.addPattern(r); err != nil {
			return nil, err
		}
	}
	for _, r := range spec.Embeddings {
		if err := t.addEmbedding(r); err != nil {
			return nil, err
		}
	}

	t.sortPatterns()
	return t, nil
}

// Empty returns tables with no rules and the default penalty table.
func Empty() *Tables {
	t, _ := New(Spec{})
	return t
}

// MCC returns the entry for a 4-digit code.
func (t *Tables) MCC(code string) (MCCEntry, bool) {
	e, ok := t.mcc[strings.TrimSpace(code)]
	return e, ok
}

// MCCCount returns the number of MCC entries.
func (t *Tables) MCCCount() int { return len(t.mcc) }

// Vendors returns every vendor rule.
func (t *Tables) Vendors() []VendorRule { return t.vendors }

// Keywords returns every keyword rule.
func (t *Tables) Keywords() []KeywordRule { return t.keywords }

// Patterns returns every pattern rule, highest priority first.
func (t *Tables) Patterns() []PatternRule { return t.patterns }

// Embeddings returns every embedding reference.
func (t *Tables) Embeddings() []EmbeddingReference { return t.embeddings }

// Penalty returns the generic-term penalty for a normalized token.
func (t *Tables) Penalty(token string) float64 { return t.penalties[token] }

// Spec returns a serializable copy of the tables.
func (t *Tables) Spec() Spec {
	s := Spec{
		Penalties:  make(map[string]float64, len(t.penalties)),
		Vendors:    append([]VendorRule(nil), t.vendors...),
		Keywords:   append([]KeywordRule(nil), t.keywords...),
		Patterns:   append([]PatternRule(nil), t.patterns...),
		Embeddings: append([]EmbeddingReference(nil), t.embeddings...),
	}
	for k, v := range t.penalties {
		s.Penalties[k] = v
	}
	codes := make([]string, 0, len(t.mcc))
	for code := range t.mcc {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		s.MCC = append(s.MCC, t.mcc[code])
	}
	return s
}

func (t *Tables) clone() *Tables {
	c := &Tables{
		mcc:        make(map[string]MCCEntry, len(t.mcc)),
		penalties:  t.penalties,
		vendors:    append([]VendorRule(nil), t.vendors...),
		keywords:   append([]KeywordRule(nil), t.keywords...),
		patterns:   t.patterns,
		embeddings: append([]EmbeddingReference(nil), t.embeddings...),
	}
	for k, v := range t.mcc {
		c.mcc[k] = v
	}
	return c
}

func validateConfidence(kind, id string, c float64) error {
	if c <= 0 || c > model.MaxConfidence {
		return fmt.Errorf("%w: %s rule %q confidence must be within (0, %.2f], got %v",
			common.ErrInvalidConfig, kind, id, model.MaxConfidence, c)
	}
	return nil
}

func validateCategory(kind, id, category string) error {
	if strings.TrimSpace(category) == "" {
		return fmt.Errorf("%w: %s rule %q has no category", common.ErrInvalidConfig, kind, id)
	}
	return nil
}

// ValidMCC reports whether code is exactly four digits.
func ValidMCC(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (t *Tables) addMCC(e MCCEntry) error {
	e.Code = strings.TrimSpace(e.Code)
	if !ValidMCC(e.Code) {
		return fmt.Errorf("%w: mcc code %q must be 4 digits", common.ErrInvalidConfig, e.Code)
	}
	if err := validateCategory("mcc", e.Code, e.Category); err != nil {
		return err
	}
	if err := validateConfidence("mcc", e.Code, e.Confidence); err != nil {
		return err
	}
	t.mcc[e.Code] = e
	return nil
}

func (t *Tables) addVendor(r VendorRule) error {
	if r.Match == "" {
		r.Match = MatchContains
	}
	if !r.Match.Valid() {
		return fmt.Errorf("%w: vendor rule %q has unknown match type %q", common.ErrInvalidConfig, r.Pattern, r.Match)
	}
	if strings.TrimSpace(r.Pattern) == "" {
		return fmt.Errorf("%w: vendor rule has empty pattern", common.ErrInvalidConfig)
	}
	if err := validateCategory("vendor", r.Pattern, r.Category); err != nil {
		return err
	}
	if err := validateConfidence("vendor", r.Pattern, r.Confidence); err != nil {
		return err
	}
	if r.Match == MatchRegex {
		re, err := common.CompilePattern(r.Pattern)
		if err != nil {
			return fmt.Errorf("vendor rule: %w", err)
		}
		r.re = re
	}
	t.vendors = append(t.vendors, r)
	return nil
}

func (t *Tables) addKeyword(r KeywordRule) error {
	id := r.Identifier()
	if id == "" {
		return fmt.Errorf("%w: keyword rule has no keywords", common.ErrInvalidConfig)
	}
	if err := validateCategory("keyword", id, r.Category); err != nil {
		return err
	}
	if err := validateConfidence("keyword", id, r.Confidence); err != nil {
		return err
	}
	t.keywords = append(t.keywords, r)
	return nil
}

func (t *Tables) addPattern(r PatternRule) error {
	if err := validateCategory("pattern", r.Name, r.Category); err != nil {
		return err
	}
	if err := validateConfidence("pattern", r.Name, r.Confidence); err != nil {
		return err
	}
	re, err := common.CompilePattern(r.Regex)
	if err != nil {
		return fmt.Errorf("pattern rule %s: %w", r.Name, err)
	}
	r.re = re
	t.patterns = append(t.patterns, r)
	return nil
}

func (t *Tables) addEmbedding(r EmbeddingReference) error {
	if NormalizeText(r.Text) == "" {
		return fmt.Errorf("%w: embedding reference has no text", common.ErrInvalidConfig)
	}
	if err := validateCategory("embedding", r.Text, r.Category); err != nil {
		return err
	}
	t.embeddings = append(t.embeddings, r)
	return nil
}

func (t *Tables) sortPatterns() {
	sort.SliceStable(t.patterns, func(i, j int) bool {
		return t.patterns[i].Priority > t.patterns[j].Priority
	})
}
