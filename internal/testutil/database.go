// Package testutil provides shared fixtures for tests that need a real
// database: a migrated SQLite store seeded with the default taxonomy, and a
// builder for normalized transactions.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/storage"
)

// TestDB is a migrated database with its taxonomy.
type TestDB struct {
	Storage  *storage.SQLiteStorage
	Taxonomy *model.Taxonomy
	Path     string
	t        *testing.T
}

// SetupTestDB creates a database file in t.TempDir, migrates it and seeds
// categories. With no categories the default taxonomy is used. The database
// is closed when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	meals := db.MustCategory("meals")
func SetupTestDB(t *testing.T, categories ...model.Category) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "saffron.db")
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if len(categories) == 0 {
		categories = rules.DefaultCategories()
	}
	if err := store.SaveCategories(ctx, categories); err != nil {
		t.Fatalf("failed to seed categories: %v", err)
	}

	return &TestDB{
		Storage:  store,
		Taxonomy: model.NewTaxonomy(categories),
		Path:     path,
		t:        t,
	}
}

// MustCategory returns the id of the category with slug or fails the test.
func (db *TestDB) MustCategory(slug string) string {
	db.t.Helper()
	c, ok := db.Taxonomy.BySlug(slug)
	if !ok {
		db.t.Fatalf("category %q not in test taxonomy", slug)
	}
	return c.ID
}

// SaveTransactions stores txs or fails the test.
func (db *TestDB) SaveTransactions(txs ...model.NormalizedTransaction) {
	db.t.Helper()
	if err := db.Storage.SaveTransactions(context.Background(), txs); err != nil {
		db.t.Fatalf("failed to save transactions: %v", err)
	}
}

// MustTransaction loads a stored transaction or fails the test.
func (db *TestDB) MustTransaction(id string) *model.TransactionRecord {
	db.t.Helper()
	rec, err := db.Storage.GetTransaction(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load transaction %s: %v", id, err)
	}
	return rec
}
