package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage_CanaryResults(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	v, err := store.CreateRuleVersion(ctx, testDraft("chevron", "cat-fuel", model.SourceLearned))
	require.NoError(t, err)

	latest, err := store.GetLatestCanaryResult(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	precision := 0.75
	first := &model.CanaryTestResult{
		RuleVersionID:  v.ID,
		TestSetSize:    10,
		CorrectCount:   6,
		IncorrectCount: 2,
		Accuracy:       0.75,
		Precision:      &precision,
		CreatedAt:      base,
	}
	require.NoError(t, store.SaveCanaryResult(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &model.CanaryTestResult{
		RuleVersionID:   v.ID,
		TestSetSize:     10,
		CorrectCount:    9,
		IncorrectCount:  0,
		Accuracy:        1,
		PassedThreshold: true,
		TestMetadata:    map[string]string{"sample": "10"},
		CreatedAt:       base.Add(time.Hour),
	}
	require.NoError(t, store.SaveCanaryResult(ctx, second))

	latest, err = store.GetLatestCanaryResult(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.True(t, latest.PassedThreshold)
	assert.Nil(t, latest.Precision)
	assert.Equal(t, map[string]string{"sample": "10"}, latest.TestMetadata)

	err = store.SaveCanaryResult(ctx, &model.CanaryTestResult{RuleVersionID: v.ID, TestSetSize: 1, CorrectCount: 2})
	assert.ErrorIs(t, err, ErrInvalidRuleVersion)
	assert.ErrorIs(t, store.SaveCanaryResult(ctx, nil), ErrNilParameter)
}

func TestSQLiteStorage_RuleEffectiveness(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	v, err := store.CreateRuleVersion(ctx, testDraft("shell", "cat-fuel", model.SourceManual))
	require.NoError(t, err)

	day1 := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	require.NoError(t, store.RecordRuleApplication(ctx, v.ID, day1, 0.8))
	require.NoError(t, store.RecordRuleApplication(ctx, v.ID, day1.Add(3*time.Hour), 0.9))
	require.NoError(t, store.RecordRuleOutcome(ctx, v.ID, day1, true))
	require.NoError(t, store.RecordRuleOutcome(ctx, v.ID, day1, true))
	require.NoError(t, store.RecordRuleOutcome(ctx, v.ID, day1, false))
	require.NoError(t, store.RecordRuleApplication(ctx, v.ID, day2, 0.7))

	got, err := store.GetRuleEffectiveness(ctx, v.ID, day1, day2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "2024-07-01", first.MeasurementDate.Format("2006-01-02"))
	assert.Equal(t, 2, first.ApplicationsCount)
	assert.InDelta(t, 0.85, first.AvgConfidence, 1e-9)
	assert.Equal(t, 2, first.CorrectCount)
	assert.Equal(t, 1, first.IncorrectCount)
	require.NotNil(t, first.Precision)
	assert.InDelta(t, 2.0/3.0, *first.Precision, 1e-9)

	second := got[1]
	assert.Equal(t, 1, second.ApplicationsCount)
	assert.Nil(t, second.Precision)

	onlyFirst, err := store.GetRuleEffectiveness(ctx, v.ID, day1, day1)
	require.NoError(t, err)
	assert.Len(t, onlyFirst, 1)

	_, err = store.GetRuleEffectiveness(ctx, v.ID, day2, day1)
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}
