package learning

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/rules"
	"github.com/Veraticus/saffron/internal/service"
	"github.com/Veraticus/saffron/internal/storage"
	"github.com/Veraticus/saffron/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrg = "org-1"

var (
	meals   = rules.CategoryID("meals")
	office  = rules.CategoryID("office-supplies")
	travel  = rules.CategoryID("travel")
	fixedAt = time.Date(2024, 9, 15, 12, 0, 0, 0, time.UTC)
)

type testEnv struct {
	svc   *Service
	store *storage.SQLiteStorage
	seq   int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc, err := NewService(db.Storage, rules.DefaultTables(), db.Taxonomy, DefaultConfig(),
		WithClock(func() time.Time { return fixedAt }))
	require.NoError(t, err)
	return &testEnv{svc: svc, store: db.Storage}
}

// seedTransaction stores a transaction for merchant and returns its id.
func (e *testEnv) seedTransaction(t *testing.T, org, merchant string) string {
	t.Helper()
	e.seq++
	id := fmt.Sprintf("tx-%d", e.seq)
	tx := testutil.NewTx(id, org).Merchant(merchant).On(fixedAt.Add(-time.Duration(e.seq) * time.Hour)).Build()
	require.NoError(t, e.store.SaveTransactions(context.Background(), []model.NormalizedTransaction{tx}))
	return id
}

// decide appends a decision for txID at the given time.
func (e *testEnv) decide(t *testing.T, txID, categoryID string, source model.DecisionSource, at time.Time, ruleIDs ...string) {
	t.Helper()
	e.seq++
	require.NoError(t, e.store.ApplyDecision(context.Background(),
		service.DecisionUpdate{
			OrgID:      testOrg,
			TxID:       txID,
			CategoryID: categoryID,
			Confidence: 0.9,
			Reviewed:   source == model.DecisionSourceManual,
		},
		model.DecisionAudit{
			ID:             fmt.Sprintf("audit-%d", e.seq),
			OrgID:          testOrg,
			TxID:           txID,
			CategoryID:     categoryID,
			Source:         source,
			Confidence:     0.9,
			Rationale:      []string{"test decision"},
			RuleVersionIDs: ruleIDs,
			CreatedAt:      at,
		},
	))
}

// seedLabeled stores a reviewed transaction labeled with categoryID.
func (e *testEnv) seedLabeled(t *testing.T, merchant, categoryID string) {
	t.Helper()
	id := e.seedTransaction(t, testOrg, merchant)
	e.decide(t, id, categoryID, model.DecisionSourceManual, fixedAt.Add(-time.Duration(e.seq)*time.Minute))
}

func vendorDraft(identifier, categoryID string, source model.RuleSource) model.RuleVersion {
	return model.RuleVersion{
		OrgID:          testOrg,
		RuleType:       model.RuleVendor,
		RuleIdentifier: identifier,
		CategoryID:     categoryID,
		Confidence:     0.9,
		Source:         source,
		CreatedBy:      "ops",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		mutate  func(*Config)
		name    string
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero sample", mutate: func(c *Config) { c.CanarySampleSize = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.AccuracyThreshold = 1.1 }, wantErr: true},
		{name: "oscillation threshold one", mutate: func(c *Config) { c.OscillationThreshold = 1 }, wantErr: true},
		{name: "no lookback", mutate: func(c *Config) { c.OscillationLookback = 0 }, wantErr: true},
		{name: "learned confidence zero", mutate: func(c *Config) { c.LearnedRuleConfidence = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewServiceRequiresTaxonomy(t *testing.T) {
	env := newTestEnv(t)
	_, err := NewService(env.store, nil, model.NewTaxonomy(nil), DefaultConfig())
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestCreateRuleVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	manual, err := env.svc.CreateRuleVersion(ctx, vendorDraft("blue bottle", meals, model.SourceManual))
	require.NoError(t, err)
	assert.True(t, manual.IsActive)
	assert.Equal(t, 1, manual.Version)

	learned, err := env.svc.CreateRuleVersion(ctx, vendorDraft("blue bottle", office, model.SourceLearned))
	require.NoError(t, err)
	assert.False(t, learned.IsActive)
	assert.Equal(t, 2, learned.Version)
	assert.Equal(t, manual.ID, *learned.ParentVersionID)

	_, err = env.svc.CreateRuleVersion(ctx, vendorDraft("blue bottle", "no-such-category", model.SourceManual))
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	bad := vendorDraft("(unclosed", meals, model.SourceManual)
	bad.Metadata = map[string]string{rules.MetaMatchType: string(rules.MatchRegex)}
	_, err = env.svc.CreateRuleVersion(ctx, bad)
	assert.Error(t, err)

	active, err := env.svc.GetActiveRuleVersions(ctx, testOrg, model.RuleVendor)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, manual.ID, active[0].ID)
}

func TestRunCanaryTest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		env.seedLabeled(t, "Blue Bottle Coffee", meals)
	}
	env.seedLabeled(t, "Blue Bottle Coffee", office)
	env.seedLabeled(t, "Sweetgreen", meals)

	v, err := env.svc.CreateRuleVersion(ctx, vendorDraft("blue bottle", meals, model.SourceLearned))
	require.NoError(t, err)

	result, err := env.svc.RunCanaryTest(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, result.TestSetSize)
	assert.Equal(t, 4, result.CorrectCount)
	assert.Equal(t, 1, result.IncorrectCount)
	assert.InDelta(t, 0.8, result.Accuracy, 1e-9)
	require.NotNil(t, result.Precision)
	assert.InDelta(t, 0.8, *result.Precision, 1e-9)
	require.NotNil(t, result.Recall)
	assert.InDelta(t, 0.8, *result.Recall, 1e-9)
	require.NotNil(t, result.F1Score)
	assert.InDelta(t, 0.8, *result.F1Score, 1e-9)
	assert.True(t, result.PassedThreshold)
	assert.Equal(t, "5", result.TestMetadata["applied"])

	stored, err := env.store.GetLatestCanaryResult(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ID, stored.ID)

	// Canary tests never activate.
	got, err := env.store.GetRuleVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestRunCanaryTestNeverApplied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedLabeled(t, "Sweetgreen", meals)

	v, err := env.svc.CreateRuleVersion(ctx, vendorDraft("blue bottle", meals, model.SourceLearned))
	require.NoError(t, err)

	result, err := env.svc.RunCanaryTest(ctx, v.ID)
	require.NoError(t, err)
	assert.Zero(t, result.Accuracy)
	assert.Nil(t, result.Precision)
	assert.False(t, result.PassedThreshold)
}

func TestPromoteRuleVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		env.seedLabeled(t, "Blue Bottle Coffee", meals)
	}

	current, err := env.svc.CreateRuleVersion(ctx, vendorDraft("blue bottle", travel, model.SourceManual))
	require.NoError(t, err)

	wrong, err := env.svc.CreateRuleVersion(ctx, vendorDraft("blue bottle", office, model.SourceLearned))
	require.NoError(t, err)

	// No canary yet.
	err = env.svc.PromoteRuleVersion(ctx, wrong.ID, "ops")
	assert.ErrorIs(t, err, common.ErrCanaryNotPassed)

	// Failing canary.
	result, err := env.svc.RunCanaryTest(ctx, wrong.ID)
	require.NoError(t, err)
	assert.False(t, result.PassedThreshold)
	err = env.svc.PromoteRuleVersion(ctx, wrong.ID, "ops")
	assert.ErrorIs(t, err, common.ErrCanaryNotPassed)

	right, err := env.svc.CreateRuleVersion(ctx, vendorDraft("blue bottle", meals, model.SourceLearned))
	require.NoError(t, err)
	result, err = env.svc.RunCanaryTest(ctx, right.ID)
	require.NoError(t, err)
	require.True(t, result.PassedThreshold)

	require.NoError(t, env.svc.PromoteRuleVersion(ctx, right.ID, "ops"))

	active, err := env.svc.GetActiveRuleVersions(ctx, testOrg, model.RuleVendor)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, right.ID, active[0].ID)

	prev, err := env.store.GetRuleVersion(ctx, current.ID)
	require.NoError(t, err)
	assert.False(t, prev.IsActive)

	events, err := env.svc.GetRuleEvents(ctx, right.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.RuleActionPromote, events[1].Action)

	assert.ErrorIs(t, env.svc.PromoteRuleVersion(ctx, right.ID, ""), common.ErrInvalidInput)
}

func TestPromoteRuleVersionConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		env.seedLabeled(t, "Blue Bottle Coffee", meals)
	}

	ids := make([]string, 4)
	for i := range ids {
		v, err := env.svc.CreateRuleVersion(ctx, vendorDraft("blue bottle", meals, model.SourceLearned))
		require.NoError(t, err)
		_, err = env.svc.RunCanaryTest(ctx, v.ID)
		require.NoError(t, err)
		ids[i] = v.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = env.svc.PromoteRuleVersion(ctx, id, "ops")
		}(id)
	}
	wg.Wait()

	active, err := env.svc.GetActiveRuleVersions(ctx, testOrg, model.RuleVendor)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Zero(t, env.svc.locks.size())
}

func TestRollbackRuleVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1, err := env.svc.CreateRuleVersion(ctx, vendorDraft("uber", travel, model.SourceManual))
	require.NoError(t, err)
	v2, err := env.svc.CreateRuleVersion(ctx, vendorDraft("uber", meals, model.SourceManual))
	require.NoError(t, err)

	_, err = env.svc.RollbackRuleVersion(ctx, v2.ID, " ", "ops")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	ok, err := env.svc.RollbackRuleVersion(ctx, v2.ID, "eats orders misfiled", "ops")
	require.NoError(t, err)
	assert.True(t, ok)

	active, err := env.svc.GetActiveRuleVersions(ctx, testOrg, 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, v1.ID, active[0].ID)

	// The first version has no parent.
	ok, err = env.svc.RollbackRuleVersion(ctx, v1.ID, "try anyway", "ops")
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := env.store.GetRuleVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	history, err := env.svc.GetRuleVersionHistory(ctx, v1.Key())
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRecordApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.svc.CreateRuleVersion(ctx, vendorDraft("uber", travel, model.SourceManual))
	require.NoError(t, err)
	b, err := env.svc.CreateRuleVersion(ctx, vendorDraft("lyft", travel, model.SourceManual))
	require.NoError(t, err)

	require.NoError(t, env.svc.RecordApplication(ctx, []string{a.ID, b.ID}, 0.9))
	require.NoError(t, env.svc.RecordApplication(ctx, []string{a.ID}, 0.7))

	eff, err := env.svc.GetRuleEffectiveness(ctx, a.ID, fixedAt, fixedAt)
	require.NoError(t, err)
	require.Len(t, eff, 1)
	assert.Equal(t, 2, eff[0].ApplicationsCount)
	assert.InDelta(t, 0.8, eff[0].AvgConfidence, 1e-9)

	err = env.svc.RecordApplication(ctx, []string{"missing"}, 0.9)
	assert.Error(t, err)
}
