package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/engine"
	"github.com/Veraticus/saffron/internal/llm"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
	"github.com/spf13/cobra"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize an organization's transactions",
		Long: `Run the hybrid engine over an organization's transactions. Rules decide
confident cases, the LLM handles the rest, and every result passes the
financial guardrails before it is applied.

By default only uncategorized transactions are processed.`,
		RunE: withApp(runCategorize),
	}

	cmd.Flags().String("org", "", "organization id (required)")
	cmd.Flags().Int("limit", 0, "maximum transactions to process (0 for all)")
	cmd.Flags().Bool("all", false, "include transactions that already have a category")
	cmd.Flags().Bool("dry-run", false, "categorize without applying decisions")
	cmd.Flags().Bool("no-llm", false, "skip the LLM and decide on rules alone")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func runCategorize(cmd *cobra.Command, _ []string, a *app) error {
	ctx := cmd.Context()
	orgID, _ := cmd.Flags().GetString("org")
	limit, _ := cmd.Flags().GetInt("limit")
	all, _ := cmd.Flags().GetBool("all")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noLLM, _ := cmd.Flags().GetBool("no-llm")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	if metricsAddr != "" {
		srv, err := startMetricsServer(metricsAddr)
		if err != nil {
			return err
		}
		defer func() {
			if err := srv.stop(); err != nil {
				slog.Warn("Failed to stop metrics server", "error", err)
			}
		}()
	}

	records, err := a.store.GetTransactions(ctx, service.TransactionFilter{
		OrgID:         orgID,
		Limit:         limit,
		Uncategorized: !all,
	})
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Nothing to categorize"))
		return nil
	}

	txs := make([]model.NormalizedTransaction, len(records))
	for i, r := range records {
		txs[i] = r.Transaction
	}

	snap, err := a.snapshot(ctx, orgID)
	if err != nil {
		return err
	}

	var pass2 engine.Pass2
	if a.cfg.LLMEnabled() && !noLLM {
		categorizer, err := llm.NewCategorizer(a.cfg.LLM, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create LLM categorizer: %w", err)
		}
		defer categorizer.Close()
		pass2 = categorizer
	}

	orchestrator, err := engine.New(a.cfg.Engine, pass2, engine.WithLogger(a.logger))
	if err != nil {
		return err
	}

	progress := cli.NewProgress(cmd.ErrOrStderr(), len(txs), "Categorizing transactions...")
	opts := []engine.BatchOption{
		engine.WithBatchLogger(a.logger),
		engine.WithProgress(progress.Update),
	}

	learner, err := a.learning()
	if err != nil {
		return err
	}
	if !dryRun {
		opts = append(opts, engine.WithApplier(a.applier(learner)))
	}

	start := time.Now()
	items, runErr := engine.NewBatch(orchestrator, opts...).Run(ctx, snap, txs)
	progress.Finish()

	summary := engine.Summarize(items, a.cfg.Engine.AutoApplyThreshold)
	fmt.Fprintln(cmd.OutOrStdout(), cli.BatchSummaryBox(summary, time.Since(start)))

	for _, it := range items {
		if it.Err != nil {
			slog.Debug("Transaction failed", "transaction_id", it.TxID, "error", it.Err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("categorization stopped early: %w", runErr)
	}

	if dryRun {
		return nil
	}

	report, err := learner.DetectRuleOscillations(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to check for oscillations: %w", err)
	}
	if report.IsOscillating {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf(
			"%d transactions are oscillating between categories; see `saffron oscillations list --org %s`",
			len(report.TxIDs), orgID)))
	}
	return nil
}
