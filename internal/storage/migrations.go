package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the schema version this build requires.
const ExpectedSchemaVersion = 3

// Migration is one forward-only schema change.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Transactions, categories and decision audits",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS categories (
				id TEXT PRIMARY KEY,
				slug TEXT UNIQUE NOT NULL,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				attribute_schema TEXT,
				created_at DATETIME NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				date DATETIME NOT NULL,
				amount_cents TEXT NOT NULL,
				currency TEXT NOT NULL DEFAULT 'USD',
				description TEXT NOT NULL,
				merchant_name TEXT,
				mcc TEXT,
				category_id TEXT,
				confidence REAL NOT NULL DEFAULT 0,
				needs_review INTEGER NOT NULL DEFAULT 0,
				reviewed INTEGER NOT NULL DEFAULT 0,
				reviewed_at DATETIME,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX idx_transactions_org ON transactions(org_id, date)`,
			`CREATE INDEX idx_transactions_reviewed ON transactions(org_id, reviewed, reviewed_at)`,

			`CREATE TABLE IF NOT EXISTS decision_audits (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				tx_id TEXT NOT NULL,
				category_id TEXT,
				source TEXT NOT NULL,
				reason TEXT,
				confidence REAL NOT NULL,
				rationale TEXT NOT NULL,
				rule_version_ids TEXT,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_decision_audits_tx ON decision_audits(tx_id, created_at)`,
			`CREATE INDEX idx_decision_audits_org ON decision_audits(org_id, created_at)`,
		),
	},
	{
		Version:     2,
		Description: "Rule versions, canary results, effectiveness and lifecycle events",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS rule_versions (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				rule_type TEXT NOT NULL,
				rule_identifier TEXT NOT NULL,
				category_id TEXT NOT NULL,
				confidence REAL NOT NULL,
				version INTEGER NOT NULL CHECK (version >= 1),
				source TEXT NOT NULL,
				parent_version_id TEXT REFERENCES rule_versions(id),
				metadata TEXT,
				is_active INTEGER NOT NULL DEFAULT 0,
				created_by TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				UNIQUE (org_id, rule_type, rule_identifier, version)
			)`,
			// At most one active version per lineage.
			`CREATE UNIQUE INDEX idx_rule_versions_single_active
				ON rule_versions(org_id, rule_type, rule_identifier) WHERE is_active = 1`,
			`CREATE INDEX idx_rule_versions_active ON rule_versions(org_id, is_active)`,

			`CREATE TABLE IF NOT EXISTS canary_results (
				id TEXT PRIMARY KEY,
				rule_version_id TEXT NOT NULL REFERENCES rule_versions(id),
				test_set_size INTEGER NOT NULL,
				correct_count INTEGER NOT NULL,
				incorrect_count INTEGER NOT NULL,
				accuracy REAL NOT NULL,
				precision REAL,
				recall REAL,
				f1_score REAL,
				passed_threshold INTEGER NOT NULL,
				test_metadata TEXT,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_canary_results_version ON canary_results(rule_version_id, created_at)`,

			`CREATE TABLE IF NOT EXISTS rule_effectiveness (
				rule_version_id TEXT NOT NULL REFERENCES rule_versions(id),
				measurement_date TEXT NOT NULL,
				applications_count INTEGER NOT NULL DEFAULT 0,
				correct_count INTEGER NOT NULL DEFAULT 0,
				incorrect_count INTEGER NOT NULL DEFAULT 0,
				confidence_sum REAL NOT NULL DEFAULT 0,
				PRIMARY KEY (rule_version_id, measurement_date)
			)`,

			`CREATE TABLE IF NOT EXISTS rule_events (
				id TEXT PRIMARY KEY,
				rule_version_id TEXT NOT NULL REFERENCES rule_versions(id),
				action TEXT NOT NULL,
				actor TEXT NOT NULL,
				reason TEXT,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_rule_events_version ON rule_events(rule_version_id, created_at)`,
		),
	},
	{
		Version:     3,
		Description: "Category oscillations",
		Up: execAll(
			`CREATE TABLE IF NOT EXISTS category_oscillations (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				tx_id TEXT NOT NULL,
				sequence TEXT NOT NULL,
				oscillation_count INTEGER NOT NULL,
				is_resolved INTEGER NOT NULL DEFAULT 0,
				resolution_category_id TEXT,
				resolved_by TEXT,
				resolved_at DATETIME,
				detected_at DATETIME NOT NULL
			)`,
			`CREATE UNIQUE INDEX idx_oscillations_open_tx
				ON category_oscillations(tx_id) WHERE is_resolved = 0`,
			`CREATE INDEX idx_oscillations_org ON category_oscillations(org_id, is_resolved)`,
		),
	},
}

func execAll(queries ...string) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		for _, query := range queries {
			if _, err := tx.Exec(query); err != nil {
				return fmt.Errorf("failed to execute query: %w", err)
			}
		}
		return nil
	}
}

// Migrate applies pending migrations, each in its own transaction, and
// records progress in PRAGMA user_version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
