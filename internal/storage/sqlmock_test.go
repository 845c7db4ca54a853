package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*SQLiteStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFromDB(db), mock
}

func TestApplyDecision_AuditFailureRollsBack(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE transactions SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decision_audits")).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := store.ApplyDecision(context.Background(),
		service.DecisionUpdate{OrgID: testOrg, TxID: "tx-1", CategoryID: "cat-meals", Confidence: 0.9},
		testAudit("a-1", "tx-1", "cat-meals"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append decision audit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateRuleVersion_LostRace(t *testing.T) {
	store, mock := newMockStorage(t)

	columns := []string{"id", "org_id", "rule_type", "rule_identifier", "category_id", "confidence", "version",
		"source", "parent_version_id", "metadata", "is_active", "created_by", "created_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM rule_versions WHERE id = ?")).
		WithArgs("rv-2").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"rv-2", testOrg, "vendor", "uber", "cat-travel", 0.9, 2,
			"learned", "rv-1", nil, 0, "tester", time.Now().UTC(),
		))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rule_versions SET is_active = 0")).
		WithArgs(testOrg, "vendor", "uber").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE rule_versions SET is_active = ? WHERE id = ? AND is_active = ?")).
		WithArgs(1, "rv-2", 0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.ActivateRuleVersion(context.Background(), "rv-2", "reviewer")
	assert.ErrorIs(t, err, common.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestCanaryResult_QueryError(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM canary_results")).
		WithArgs("rv-1").
		WillReturnError(errors.New("database is locked"))

	_, err := store.GetLatestCanaryResult(context.Background(), "rv-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectQuery(regexp.QuoteMeta("PRAGMA user_version")).
		WillReturnRows(sqlmock.NewRows([]string{"user_version"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS categories")).
		WillReturnError(errors.New("read-only database"))
	mock.ExpectRollback()

	err := store.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 1 failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRuleVersion_CorruptRow(t *testing.T) {
	store, mock := newMockStorage(t)

	columns := []string{"id", "org_id", "rule_type", "rule_identifier", "category_id", "confidence", "version",
		"source", "parent_version_id", "metadata", "is_active", "created_by", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM rule_versions WHERE id = ?")).
		WithArgs("rv-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"rv-1", testOrg, "regex", "uber", "cat-travel", 0.9, 1,
			"manual", nil, nil, 1, "tester", time.Now().UTC(),
		))

	_, err := store.GetRuleVersion(context.Background(), "rv-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrNotFound)
	assert.Contains(t, err.Error(), `unknown rule type "regex"`)
}
