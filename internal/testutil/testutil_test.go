package testutil

import (
	"testing"
	"time"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestDBSeedsDefaults(t *testing.T) {
	db := SetupTestDB(t)

	assert.Equal(t, len(rules.DefaultCategories()), db.Taxonomy.Len())
	assert.Equal(t, rules.CategoryID("meals"), db.MustCategory("meals"))
	assert.FileExists(t, db.Path)
}

func TestSetupTestDBCustomCategories(t *testing.T) {
	db := SetupTestDB(t, model.Category{ID: "c-1", Slug: "rent", Name: "Rent", Type: model.CategoryTypeOpex})

	assert.Equal(t, 1, db.Taxonomy.Len())
	assert.Equal(t, "c-1", db.MustCategory("rent"))
}

func TestTxBuilder(t *testing.T) {
	db := SetupTestDB(t)
	day := time.Date(2024, 5, 2, 15, 0, 0, 0, time.FixedZone("EST", -5*3600))

	tx := NewTx("tx-1", "org-1").Merchant("Starbucks").Cents(-450).MCC("5814").On(day).Build()
	db.SaveTransactions(tx)

	rec := db.MustTransaction("tx-1")
	require.NotNil(t, rec)
	assert.Equal(t, "Starbucks", rec.Transaction.MerchantName)
	assert.Equal(t, "POS Starbucks", rec.Transaction.Description)
	assert.Equal(t, "-450", rec.Transaction.AmountCents)
	assert.Equal(t, "5814", rec.Transaction.MCC)
	assert.True(t, rec.Transaction.Date.Equal(day))
	assert.Empty(t, rec.CategoryID)
}
