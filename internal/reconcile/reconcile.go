// Package reconcile checks processor payouts against the transactions they
// settle.
package reconcile

import (
	"fmt"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/shopspring/decimal"
)

// Result is the outcome of reconciling one payout. Difference is the payout
// total minus the constituent sum, in decimal-string cents.
type Result struct {
	Total      string
	Sum        string
	Difference string
	Reconciled bool
}

// Payout compares a payout total with the constituents it should settle. All
// amounts are decimal-string integer cents.
func Payout(total string, constituents []string) (Result, error) {
	t, err := model.ParseCents(total)
	if err != nil {
		return Result{}, fmt.Errorf("payout total: %w", err)
	}

	sum := decimal.Zero
	for i, c := range constituents {
		d, err := model.ParseCents(c)
		if err != nil {
			return Result{}, fmt.Errorf("constituent %d: %w", i, err)
		}
		sum = sum.Add(d)
	}

	diff := t.Sub(sum)
	return Result{
		Total:      t.String(),
		Sum:        sum.String(),
		Difference: diff.String(),
		Reconciled: diff.IsZero(),
	}, nil
}

// Transactions reconciles a payout transaction against the transactions it
// settles.
func Transactions(payout model.NormalizedTransaction, settled []model.NormalizedTransaction) (Result, error) {
	amounts := make([]string, len(settled))
	for i, tx := range settled {
		amounts[i] = tx.AmountCents
	}
	return Payout(payout.AmountCents, amounts)
}
