package main

import (
	"fmt"
	"os"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/learning"
	"github.com/spf13/cobra"
)

func correctCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct TRANSACTION_ID",
		Short: "Record a reviewer's category for a transaction",
		Long: `Apply a reviewer's category to a transaction. The rules behind the previous
decision are scored, and when the merchant has no vendor rule yet an inactive
learned rule is proposed for canary testing.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(runCorrect),
	}

	cmd.Flags().String("org", "", "organization id (required)")
	cmd.Flags().String("category", "", "category slug (required)")
	cmd.Flags().String("actor", defaultActor(), "who is making the correction")
	cmd.Flags().String("note", "", "optional note for the audit trail")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func runCorrect(cmd *cobra.Command, args []string, a *app) error {
	orgID, _ := cmd.Flags().GetString("org")
	slug, _ := cmd.Flags().GetString("category")
	actor, _ := cmd.Flags().GetString("actor")
	note, _ := cmd.Flags().GetString("note")

	category, err := a.categoryBySlug(slug)
	if err != nil {
		return common.NewUserError(err.Error(), err)
	}

	learner, err := a.learning()
	if err != nil {
		return err
	}
	outcome, err := learner.RecordCorrection(cmd.Context(), learning.Correction{
		OrgID:      orgID,
		TxID:       args[0],
		CategoryID: category.ID,
		Actor:      actor,
		Note:       note,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !outcome.Changed {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%s already categorized as %s; marked reviewed", args[0], category.Slug)))
	} else {
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s categorized as %s", args[0], category.Slug)))
	}
	if outcome.ProposedRule != nil {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf(
			"Proposed vendor rule %q (version %d, id %s). Run `saffron rules canary %s` to test it.",
			outcome.ProposedRule.RuleIdentifier, outcome.ProposedRule.Version,
			outcome.ProposedRule.ID, outcome.ProposedRule.ID)))
	}
	return nil
}

// defaultActor names the operator for audit records.
func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}
