package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage_SaveTransactions(t *testing.T) {
	tests := []struct {
		validate     func(*testing.T, *SQLiteStorage)
		name         string
		transactions []model.NormalizedTransaction
		wantErr      error
	}{
		{
			name:         "save new transactions",
			transactions: createTestTransactions(3),
			validate: func(t *testing.T, s *SQLiteStorage) {
				t.Helper()
				got, err := s.GetTransactions(context.Background(), service.TransactionFilter{OrgID: testOrg})
				require.NoError(t, err)
				require.Len(t, got, 3)
				// Newest first.
				assert.Equal(t, "tx-3", got[0].Transaction.ID)
				assert.Equal(t, "-3150", got[0].Transaction.AmountCents)
				assert.Equal(t, "Merchant 2", got[0].Transaction.MerchantName)
			},
		},
		{
			name: "default currency",
			transactions: func() []model.NormalizedTransaction {
				txns := createTestTransactions(1)
				txns[0].Currency = ""
				return txns
			}(),
			validate: func(t *testing.T, s *SQLiteStorage) {
				t.Helper()
				rec, err := s.GetTransaction(context.Background(), "tx-1")
				require.NoError(t, err)
				assert.Equal(t, "USD", rec.Transaction.Currency)
			},
		},
		{
			name:         "empty slice",
			transactions: []model.NormalizedTransaction{},
			wantErr:      ErrEmptySlice,
		},
		{
			name:         "nil slice",
			transactions: nil,
			wantErr:      ErrNilParameter,
		},
		{
			name: "fractional cents rejected",
			transactions: func() []model.NormalizedTransaction {
				txns := createTestTransactions(1)
				txns[0].AmountCents = "10.5"
				return txns
			}(),
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "missing org",
			transactions: func() []model.NormalizedTransaction {
				txns := createTestTransactions(1)
				txns[0].OrgID = ""
				return txns
			}(),
			wantErr: ErrInvalidTransaction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := createTestStorage(t)
			err := store.SaveTransactions(context.Background(), tt.transactions)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, store)
			}
		})
	}
}

func TestSQLiteStorage_ReimportKeepsCategorization(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	txns := createTestTransactions(1)
	require.NoError(t, store.SaveTransactions(ctx, txns))
	require.NoError(t, store.ApplyDecision(ctx,
		service.DecisionUpdate{OrgID: testOrg, TxID: "tx-1", CategoryID: "cat-meals", Confidence: 0.9},
		testAudit("a-1", "tx-1", "cat-meals"),
	))

	txns[0].Description = "PURCHASE #1 CORRECTED"
	require.NoError(t, store.SaveTransactions(ctx, txns))

	rec, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "PURCHASE #1 CORRECTED", rec.Transaction.Description)
	assert.Equal(t, "cat-meals", rec.CategoryID)
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
}

func TestSQLiteStorage_GetTransaction_NotFound(t *testing.T) {
	store := createTestStorage(t)
	_, err := store.GetTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_GetTransactions_Filters(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	txns := createTestTransactions(4)
	other := createTestTransactions(1)
	other[0].ID = "other-1"
	other[0].OrgID = "org-2"
	require.NoError(t, store.SaveTransactions(ctx, append(txns, other...)))

	require.NoError(t, store.ApplyDecision(ctx,
		service.DecisionUpdate{OrgID: testOrg, TxID: "tx-1", CategoryID: "cat-meals", Confidence: 0.6, NeedsReview: true},
		testAudit("a-1", "tx-1", "cat-meals"),
	))
	require.NoError(t, store.ApplyDecision(ctx,
		service.DecisionUpdate{OrgID: testOrg, TxID: "tx-2", CategoryID: "cat-meals", Confidence: 0.95},
		testAudit("a-2", "tx-2", "cat-meals"),
	))

	needsReview := true
	tests := []struct {
		name    string
		filter  service.TransactionFilter
		wantIDs []string
	}{
		{name: "all orgs", filter: service.TransactionFilter{}, wantIDs: []string{"tx-4", "tx-3", "tx-2", "other-1", "tx-1"}},
		{name: "single org", filter: service.TransactionFilter{OrgID: testOrg}, wantIDs: []string{"tx-4", "tx-3", "tx-2", "tx-1"}},
		{name: "needs review", filter: service.TransactionFilter{OrgID: testOrg, NeedsReview: &needsReview}, wantIDs: []string{"tx-1"}},
		{name: "uncategorized", filter: service.TransactionFilter{OrgID: testOrg, Uncategorized: true}, wantIDs: []string{"tx-4", "tx-3"}},
		{name: "limit", filter: service.TransactionFilter{OrgID: testOrg, Limit: 2}, wantIDs: []string{"tx-4", "tx-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.GetTransactions(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, rec := range got {
				ids[i] = rec.Transaction.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestSQLiteStorage_GetLabeledSample(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.SaveTransactions(ctx, createTestTransactions(3)))

	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"tx-1", "tx-2"} {
		audit := testAudit("a-"+id, id, "cat-meals")
		audit.Source = model.DecisionSourceManual
		audit.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.ApplyDecision(ctx,
			service.DecisionUpdate{OrgID: testOrg, TxID: id, CategoryID: "cat-meals", Confidence: 1, Reviewed: true},
			audit,
		))
	}

	got, err := store.GetLabeledSample(ctx, testOrg, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tx-2", got[0].Transaction.ID)
	assert.True(t, got[0].Reviewed)
	require.NotNil(t, got[0].ReviewedAt)
	assert.True(t, got[0].ReviewedAt.Equal(base.Add(time.Hour)))

	got, err = store.GetLabeledSample(ctx, testOrg, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = store.GetLabeledSample(ctx, testOrg, 0)
	assert.Error(t, err)
}
