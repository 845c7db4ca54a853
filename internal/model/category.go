// Package model defines the domain types shared across the categorization engine.
package model

import "time"

// CategoryType is the financial class of a category.
type CategoryType string

const (
	// CategoryTypeRevenue represents operating revenue.
	CategoryTypeRevenue CategoryType = "revenue"
	// CategoryTypeContraRevenue represents refunds, returns and discounts.
	CategoryTypeContraRevenue CategoryType = "contra_revenue"
	// CategoryTypeCOGS represents cost of goods sold.
	CategoryTypeCOGS CategoryType = "cogs"
	// CategoryTypeOpex represents operating expenses.
	CategoryTypeOpex CategoryType = "opex"
	// CategoryTypeOtherIncome represents non-operating income.
	CategoryTypeOtherIncome CategoryType = "other_income"
	// CategoryTypeOtherExpense represents non-operating expenses.
	CategoryTypeOtherExpense CategoryType = "other_expense"
	// CategoryTypeTransfer represents clearing and inter-account movements.
	CategoryTypeTransfer CategoryType = "transfer"
	// CategoryTypeUncategorized is the neutral bucket.
	CategoryTypeUncategorized CategoryType = "uncategorized"
)

// Valid reports whether t is a known category type.
func (t CategoryType) Valid() bool {
	switch t {
	case CategoryTypeRevenue, CategoryTypeContraRevenue, CategoryTypeCOGS, CategoryTypeOpex,
		CategoryTypeOtherIncome, CategoryTypeOtherExpense, CategoryTypeTransfer, CategoryTypeUncategorized:
		return true
	}
	return false
}

// Category is one entry of the taxonomy supplied by the category registry.
type Category struct {
	CreatedAt       time.Time         `json:"created_at" yaml:"-"`
	AttributeSchema map[string]string `json:"attribute_schema,omitempty" yaml:"attribute_schema,omitempty"`
	ID              string            `json:"id" yaml:"id"`
	Slug            string            `json:"slug" yaml:"slug"`
	Name            string            `json:"name" yaml:"name"`
	Type            CategoryType      `json:"type" yaml:"type"`
}

// Taxonomy indexes categories by id and slug. It is read-only once built.
type Taxonomy struct {
	byID   map[string]Category
	bySlug map[string]Category
	all    []Category
}

// NewTaxonomy indexes the given categories.
func NewTaxonomy(categories []Category) *Taxonomy {
	t := &Taxonomy{
		byID:   make(map[string]Category, len(categories)),
		bySlug: make(map[string]Category, len(categories)),
		all:    make([]Category, len(categories)),
	}
	copy(t.all, categories)
	for _, c := range categories {
		t.byID[c.ID] = c
		t.bySlug[c.Slug] = c
	}
	return t
}

// ByID returns the category with the given id.
func (t *Taxonomy) ByID(id string) (Category, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// BySlug returns the category with the given slug.
func (t *Taxonomy) BySlug(slug string) (Category, bool) {
	c, ok := t.bySlug[slug]
	return c, ok
}

// All returns every category in registry order.
func (t *Taxonomy) All() []Category {
	out := make([]Category, len(t.all))
	copy(out, t.all)
	return out
}

// Len returns the number of categories.
func (t *Taxonomy) Len() int {
	return len(t.all)
}
