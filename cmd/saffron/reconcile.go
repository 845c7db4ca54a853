package main

import (
	"fmt"

	"github.com/Veraticus/saffron/internal/cli"
	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/reconcile"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile PAYOUT_ID SETTLED_ID...",
		Short: "Check that a processor payout equals the transactions it settles",
		Args:  cobra.MinimumNArgs(2),
		RunE:  withApp(runReconcile),
	}
	cmd.Flags().String("org", "", "organization id (required)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func runReconcile(cmd *cobra.Command, args []string, a *app) error {
	ctx := cmd.Context()
	orgID, _ := cmd.Flags().GetString("org")

	load := func(id string) (model.NormalizedTransaction, error) {
		rec, err := a.store.GetTransaction(ctx, id)
		if err != nil {
			return model.NormalizedTransaction{}, err
		}
		if rec.Transaction.OrgID != orgID {
			return model.NormalizedTransaction{}, fmt.Errorf("%w: transaction %s does not belong to %s", common.ErrUnauthorized, id, orgID)
		}
		return rec.Transaction, nil
	}

	payout, err := load(args[0])
	if err != nil {
		return err
	}
	settled := make([]model.NormalizedTransaction, 0, len(args)-1)
	for _, id := range args[1:] {
		tx, err := load(id)
		if err != nil {
			return err
		}
		settled = append(settled, tx)
	}

	result, err := reconcile.Transactions(payout, settled)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Payout:     %s\nSettled:    %s\nDifference: %s\n", result.Total, result.Sum, result.Difference)
	if result.Reconciled {
		body += cli.FormatSuccess("reconciled")
	} else {
		body += cli.FormatWarning("does not reconcile")
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Payout "+args[0], body))
	return nil
}
