package main

import (
	"testing"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReconcile(t *testing.T) {
	a, db := newTestApp(t)
	db.SaveTransactions(
		testutil.NewTx("payout", testOrg).Description("STRIPE TRANSFER").Cents(10000).Build(),
		testutil.NewTx("sale-1", testOrg).Cents(9500).Build(),
		testutil.NewTx("sale-2", testOrg).Cents(500).Build(),
		testutil.NewTx("sale-3", testOrg).Cents(250).Build(),
		testutil.NewTx("foreign", "other-org").Cents(100).Build(),
	)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr error
	}{
		{"balanced", []string{"payout", "sale-1", "sale-2"}, "reconciled", nil},
		{"short", []string{"payout", "sale-1", "sale-3"}, "does not reconcile", nil},
		{"other organization", []string{"payout", "foreign"}, "", common.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := reconcileCmd()
			out := prepare(t, cmd, map[string]string{"org": testOrg})

			err := runReconcile(cmd, tt.args, a)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}
