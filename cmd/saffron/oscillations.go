package main

import (
	"fmt"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/common"
	"github.com/spf13/cobra"
)

func oscillationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oscillations",
		Short: "Find and resolve transactions whose category keeps changing",
	}

	detect := &cobra.Command{
		Use:   "detect",
		Short: "Scan recent category history for oscillations",
		RunE:  withApp(runDetectOscillations),
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List unresolved oscillations",
		RunE:  withApp(runListOscillations),
	}
	for _, c := range []*cobra.Command{detect, list} {
		c.Flags().String("org", "", "organization id (required)")
		_ = c.MarkFlagRequired("org")
		cmd.AddCommand(c)
	}

	resolve := &cobra.Command{
		Use:   "resolve OSCILLATION_ID",
		Short: "Resolve an oscillation with a final category",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runResolveOscillation),
	}
	resolve.Flags().String("category", "", "final category slug (required)")
	resolve.Flags().String("actor", defaultActor(), "who is resolving the oscillation")
	_ = resolve.MarkFlagRequired("category")
	cmd.AddCommand(resolve)

	return cmd
}

func runDetectOscillations(cmd *cobra.Command, _ []string, a *app) error {
	orgID, _ := cmd.Flags().GetString("org")

	learner, err := a.learning()
	if err != nil {
		return err
	}
	report, err := learner.DetectRuleOscillations(cmd.Context(), orgID)
	if err != nil {
		return err
	}

	if !report.IsOscillating {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("No oscillating transactions"))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("%d oscillating transactions", len(report.TxIDs))))
	return runListOscillations(cmd, nil, a)
}

func runListOscillations(cmd *cobra.Command, _ []string, a *app) error {
	orgID, _ := cmd.Flags().GetString("org")

	learner, err := a.learning()
	if err != nil {
		return err
	}
	open, err := learner.GetUnresolvedOscillations(cmd.Context(), orgID)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No unresolved oscillations"))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.OscillationTable(open, a.taxonomy))
	return nil
}

func runResolveOscillation(cmd *cobra.Command, args []string, a *app) error {
	slug, _ := cmd.Flags().GetString("category")
	actor, _ := cmd.Flags().GetString("actor")

	category, err := a.categoryBySlug(slug)
	if err != nil {
		return common.NewUserError(err.Error(), err)
	}

	learner, err := a.learning()
	if err != nil {
		return err
	}
	resolved, err := learner.ResolveOscillation(cmd.Context(), args[0], category.ID, actor)
	if err != nil {
		return err
	}
	if !resolved {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("Oscillation %s was already resolved", args[0])))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Oscillation %s resolved as %s", args[0], category.Slug)))
	return nil
}
