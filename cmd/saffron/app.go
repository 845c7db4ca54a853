package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/saffron/internal/config"
	"github.com/Veraticus/saffron/internal/decision"
	"github.com/Veraticus/saffron/internal/engine"
	"github.com/Veraticus/saffron/internal/learning"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app bundles what every command needs: configuration, an open and
// migrated database, the taxonomy and the base rule tables.
type app struct {
	cfg      *config.Config
	store    *storage.SQLiteStorage
	taxonomy *model.Taxonomy
	tables   *rules.Tables
	logger   *slog.Logger
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{cfg: cfg, store: store, logger: slog.Default()}
	if err := a.loadTaxonomy(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := a.loadTables(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// withApp opens the app for the duration of fn.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.store.Close(); cerr != nil {
				slog.Warn("Failed to close database", "error", cerr)
			}
		}()
		return fn(cmd, args, a)
	}
}

// loadTaxonomy reads the category registry, seeding the default chart of
// accounts into an empty database.
func (a *app) loadTaxonomy(ctx context.Context) error {
	categories, err := a.store.GetCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	if len(categories) == 0 {
		categories = rules.DefaultCategories()
		if err := a.store.SaveCategories(ctx, categories); err != nil {
			return fmt.Errorf("failed to seed categories: %w", err)
		}
		a.logger.Info("Seeded default categories", "count", len(categories))
	}
	a.taxonomy = model.NewTaxonomy(categories)
	return nil
}

func (a *app) loadTables() error {
	if a.cfg.RulesPath == "" {
		a.tables = rules.DefaultTables()
		return nil
	}
	tables, err := rules.LoadTables(a.cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load rule tables from %s: %w", a.cfg.RulesPath, err)
	}
	a.tables = tables
	return nil
}

// snapshot compiles the base tables plus the organization's active rule
// versions into an immutable snapshot for one run.
func (a *app) snapshot(ctx context.Context, orgID string) (*engine.Snapshot, error) {
	versions, err := a.store.GetActiveRuleVersions(ctx, orgID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule versions: %w", err)
	}
	tables, err := a.tables.WithRuleVersions(versions, a.taxonomy)
	if err != nil {
		return nil, err
	}
	return engine.NewSnapshot(tables, a.taxonomy, a.cfg.Guardrail, a.logger, a.cfg.SignalOptions()...)
}

func (a *app) learning() (*learning.Service, error) {
	return learning.NewService(a.store, a.tables, a.taxonomy, a.cfg.Learning,
		learning.WithLogger(a.logger),
		learning.WithSignalOptions(a.cfg.SignalOptions()...))
}

func (a *app) applier(recorder decision.ApplicationRecorder) *decision.Applier {
	return decision.NewApplier(a.store, a.cfg.Engine.AutoApplyThreshold,
		decision.WithLogger(a.logger),
		decision.WithApplicationRecorder(recorder))
}

// categoryBySlug resolves an operator-supplied slug.
func (a *app) categoryBySlug(slug string) (model.Category, error) {
	c, ok := a.taxonomy.BySlug(slug)
	if !ok {
		return model.Category{}, fmt.Errorf("unknown category %q", slug)
	}
	return c, nil
}
