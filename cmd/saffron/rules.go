package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage versioned categorization rules",
		Long: `Create, test, promote and roll back rule versions.

Learned rules start inactive. They must pass a canary test against reviewed
transactions before they can be promoted.`,
	}

	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(createRuleCmd())
	cmd.AddCommand(canaryRuleCmd())
	cmd.AddCommand(promoteRuleCmd())
	cmd.AddCommand(rollbackRuleCmd())
	cmd.AddCommand(ruleHistoryCmd())
	cmd.AddCommand(ruleEventsCmd())
	cmd.AddCommand(ruleEffectivenessCmd())
	cmd.AddCommand(exportRulesCmd())

	return cmd
}

func listRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active rule versions",
		RunE:  withApp(runListRules),
	}
	cmd.Flags().String("org", "", "organization id (required)")
	cmd.Flags().String("type", "", "rule type filter (mcc, vendor, keyword, embedding)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func runListRules(cmd *cobra.Command, _ []string, a *app) error {
	orgID, _ := cmd.Flags().GetString("org")
	ruleType, err := ruleTypeFlag(cmd, true)
	if err != nil {
		return err
	}

	versions, err := a.store.GetActiveRuleVersions(cmd.Context(), orgID, ruleType)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No active rule versions"))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.RuleVersionTable(versions, a.taxonomy))
	return nil
}

func createRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new rule version",
		Long: `Create the next version of a rule. Manual rules are active immediately;
learned and system rules start inactive until promoted.

Metadata carries type-specific settings, for example:
  vendor:    --meta match=prefix
  keyword:   --meta keywords="uber,ride" --meta exclude=eats`,
		RunE: withApp(runCreateRule),
	}
	cmd.Flags().String("org", "", "organization id (required)")
	cmd.Flags().String("type", "", "rule type: mcc, vendor, keyword, embedding (required)")
	cmd.Flags().String("identifier", "", "rule identifier, e.g. an MCC code or vendor name (required)")
	cmd.Flags().String("category", "", "category slug (required)")
	cmd.Flags().Float64("confidence", 0.9, "rule confidence in (0, 1]")
	cmd.Flags().String("source", model.SourceManual.String(), "rule source: manual, learned, system")
	cmd.Flags().String("actor", defaultActor(), "who is creating the rule")
	cmd.Flags().StringToString("meta", nil, "rule metadata as key=value pairs")
	for _, f := range []string{"org", "type", "identifier", "category"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func runCreateRule(cmd *cobra.Command, _ []string, a *app) error {
	orgID, _ := cmd.Flags().GetString("org")
	identifier, _ := cmd.Flags().GetString("identifier")
	slug, _ := cmd.Flags().GetString("category")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	sourceName, _ := cmd.Flags().GetString("source")
	actor, _ := cmd.Flags().GetString("actor")
	meta, _ := cmd.Flags().GetStringToString("meta")

	ruleType, err := ruleTypeFlag(cmd, false)
	if err != nil {
		return err
	}
	source, err := model.ParseRuleSource(sourceName)
	if err != nil {
		return common.NewUserError(err.Error(), err)
	}
	category, err := a.categoryBySlug(slug)
	if err != nil {
		return common.NewUserError(err.Error(), err)
	}

	learner, err := a.learning()
	if err != nil {
		return err
	}
	v, err := learner.CreateRuleVersion(cmd.Context(), model.RuleVersion{
		OrgID:          orgID,
		RuleType:       ruleType,
		RuleIdentifier: identifier,
		CategoryID:     category.ID,
		Confidence:     confidence,
		Source:         source,
		CreatedBy:      actor,
		Metadata:       meta,
	})
	if err != nil {
		return err
	}

	state := "inactive until promoted"
	if v.IsActive {
		state = "active"
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
		"Created %s rule %q version %d (%s), id %s", v.RuleType, v.RuleIdentifier, v.Version, state, v.ID)))
	return nil
}

func canaryRuleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "canary RULE_VERSION_ID",
		Short: "Test a rule version against reviewed transactions",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			learner, err := a.learning()
			if err != nil {
				return err
			}
			result, err := learner.RunCanaryTest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.CanaryBox(result))
			return nil
		}),
	}
}

func promoteRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote RULE_VERSION_ID",
		Short: "Activate a rule version that passed its canary test",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			actor, _ := cmd.Flags().GetString("actor")
			learner, err := a.learning()
			if err != nil {
				return err
			}
			if err := learner.PromoteRuleVersion(cmd.Context(), args[0], actor); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule version %s is active", args[0])))
			return nil
		}),
	}
	cmd.Flags().String("actor", defaultActor(), "who is promoting the rule")
	return cmd
}

func rollbackRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback RULE_VERSION_ID",
		Short: "Deactivate a rule version and restore its parent",
		Args:  cobra.ExactArgs(1),
		RunE:  withApp(runRollbackRule),
	}
	cmd.Flags().String("reason", "", "why the version is being rolled back (required)")
	cmd.Flags().String("actor", defaultActor(), "who is rolling back the rule")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func runRollbackRule(cmd *cobra.Command, args []string, a *app) error {
	reason, _ := cmd.Flags().GetString("reason")
	actor, _ := cmd.Flags().GetString("actor")
	learner, err := a.learning()
	if err != nil {
		return err
	}
	rolledBack, err := learner.RollbackRuleVersion(cmd.Context(), args[0], reason, actor)
	if err != nil {
		return err
	}
	if !rolledBack {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("Rule version %s has no parent to restore", args[0])))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rolled back rule version %s", args[0])))
	return nil
}

func ruleHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show every version of a rule",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			orgID, _ := cmd.Flags().GetString("org")
			identifier, _ := cmd.Flags().GetString("identifier")
			ruleType, err := ruleTypeFlag(cmd, false)
			if err != nil {
				return err
			}

			versions, err := a.store.GetRuleVersionHistory(cmd.Context(), model.RuleKey{
				OrgID:          orgID,
				RuleType:       ruleType,
				RuleIdentifier: identifier,
			})
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No versions found"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RuleVersionTable(versions, a.taxonomy))
			return nil
		}),
	}
	cmd.Flags().String("org", "", "organization id (required)")
	cmd.Flags().String("type", "", "rule type (required)")
	cmd.Flags().String("identifier", "", "rule identifier (required)")
	for _, f := range []string{"org", "type", "identifier"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func ruleEventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events RULE_VERSION_ID",
		Short: "Show the audit trail of a rule version",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			events, err := a.store.GetRuleEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RuleEventTable(events))
			return nil
		}),
	}
}

func ruleEffectivenessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "effectiveness RULE_VERSION_ID",
		Short: "Show daily application counts and precision",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			days, _ := cmd.Flags().GetInt("days")
			if days < 1 {
				return common.NewUserError("--days must be positive", common.ErrInvalidInput)
			}
			to := time.Now().UTC()
			from := to.AddDate(0, 0, -(days - 1))

			rows, err := a.store.GetRuleEffectiveness(cmd.Context(), args[0], from, to)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No measurements in range"))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.EffectivenessTable(rows))
			return nil
		}),
	}
	cmd.Flags().Int("days", 30, "number of days to show, ending today")
	return cmd
}

func exportRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the effective rule tables for an organization as YAML",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			orgID, _ := cmd.Flags().GetString("org")

			versions, err := a.store.GetActiveRuleVersions(cmd.Context(), orgID, 0)
			if err != nil {
				return err
			}
			tables, err := a.tables.WithRuleVersions(versions, a.taxonomy)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(tables); err != nil {
				return fmt.Errorf("failed to encode rule tables: %w", err)
			}
			return enc.Close()
		}),
	}
	cmd.Flags().String("org", "", "organization id (required)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

// ruleTypeFlag parses --type. An empty value is allowed only when optional.
func ruleTypeFlag(cmd *cobra.Command, optional bool) (model.RuleType, error) {
	name, _ := cmd.Flags().GetString("type")
	if name == "" && optional {
		return 0, nil
	}
	t, err := model.ParseRuleType(name)
	if err != nil {
		return 0, common.NewUserError(err.Error(), err)
	}
	return t, nil
}
