package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOscillation(txID string, at time.Time) *model.CategoryOscillation {
	seq := []model.CategoryChange{
		{CategoryID: "a", ChangedBy: "pass1", ChangedAt: at.Add(-3 * time.Hour)},
		{CategoryID: "b", ChangedBy: "manual", ChangedAt: at.Add(-2 * time.Hour)},
		{CategoryID: "a", ChangedBy: "llm", ChangedAt: at.Add(-time.Hour)},
		{CategoryID: "b", ChangedBy: "manual", ChangedAt: at},
	}
	return &model.CategoryOscillation{
		OrgID:      testOrg,
		TxID:       txID,
		Sequence:   seq,
		Count:      model.CountChanges(seq),
		DetectedAt: at,
	}
}

func TestSQLiteStorage_SaveOscillation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	at := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	first := testOscillation("tx-1", at)
	require.NoError(t, store.SaveOscillation(ctx, first))
	assert.NotEmpty(t, first.ID)

	// Re-detection refreshes the open row instead of adding one.
	again := testOscillation("tx-1", at.Add(time.Hour))
	again.Count = 4
	require.NoError(t, store.SaveOscillation(ctx, again))
	assert.Equal(t, first.ID, again.ID)

	require.NoError(t, store.SaveOscillation(ctx, testOscillation("tx-2", at)))

	open, err := store.GetUnresolvedOscillations(ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "tx-1", open[0].TxID)
	assert.Equal(t, 4, open[0].Count)
	require.Len(t, open[0].Sequence, 4)
	assert.Equal(t, "manual", open[0].Sequence[1].ChangedBy)
	assert.False(t, open[0].IsResolved)

	resolved := testOscillation("tx-3", at)
	resolved.IsResolved = true
	assert.ErrorIs(t, store.SaveOscillation(ctx, resolved), ErrInvalidOscillation)
}

func TestSQLiteStorage_ResolveOscillation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	at := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	o := testOscillation("tx-1", at)
	require.NoError(t, store.SaveOscillation(ctx, o))

	ok, err := store.ResolveOscillation(ctx, o.ID, "b", "reviewer", at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	// Second resolution is a no-op.
	ok, err = store.ResolveOscillation(ctx, o.ID, "a", "someone-else", at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	open, err := store.GetUnresolvedOscillations(ctx, testOrg)
	require.NoError(t, err)
	assert.Empty(t, open)

	var category, resolvedBy string
	err = store.db.QueryRowContext(ctx,
		`SELECT resolution_category_id, resolved_by FROM category_oscillations WHERE id = ?`, o.ID,
	).Scan(&category, &resolvedBy)
	require.NoError(t, err)
	assert.Equal(t, "b", category)
	assert.Equal(t, "reviewer", resolvedBy)

	// A resolved transaction can oscillate again.
	next := testOscillation("tx-1", at.Add(48*time.Hour))
	require.NoError(t, store.SaveOscillation(ctx, next))
	assert.NotEqual(t, o.ID, next.ID)

	_, err = store.ResolveOscillation(ctx, "missing", "b", "reviewer", at)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_ResolveOscillation_Concurrent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	at := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	o := testOscillation("tx-1", at)
	require.NoError(t, store.SaveOscillation(ctx, o))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := range 8 {
		wg.Add(1)
		go func(resolver string) {
			defer wg.Done()
			ok, err := store.ResolveOscillation(ctx, o.ID, "b", resolver, at.Add(time.Hour))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(fmt.Sprintf("racer-%d", i))
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	open, err := store.GetUnresolvedOscillations(ctx, testOrg)
	require.NoError(t, err)
	assert.Empty(t, open)
}
