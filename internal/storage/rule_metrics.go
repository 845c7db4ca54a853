package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/google/uuid"
)

const measurementDateLayout = "2006-01-02"

// SaveCanaryResult appends a canary result. Results are never updated.
func (s *SQLiteStorage) SaveCanaryResult(ctx context.Context, result *model.CanaryTestResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("%w: result", ErrNilParameter)
	}
	if err := validateString(result.RuleVersionID, "ruleVersionID"); err != nil {
		return err
	}
	if result.TestSetSize < 0 || result.CorrectCount < 0 || result.IncorrectCount < 0 ||
		result.CorrectCount+result.IncorrectCount > result.TestSetSize {
		return fmt.Errorf("%w: inconsistent canary counts", ErrInvalidRuleVersion)
	}

	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = s.now()
	}
	result.CreatedAt = result.CreatedAt.UTC()

	var metadata sql.NullString
	if len(result.TestMetadata) > 0 {
		data, err := json.Marshal(result.TestMetadata)
		if err != nil {
			return fmt.Errorf("failed to encode test metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canary_results (
			id, rule_version_id, test_set_size, correct_count, incorrect_count, accuracy,
			precision, recall, f1_score, passed_threshold, test_metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.ID, result.RuleVersionID, result.TestSetSize, result.CorrectCount, result.IncorrectCount,
		result.Accuracy, nullFloat(result.Precision), nullFloat(result.Recall), nullFloat(result.F1Score),
		boolToInt(result.PassedThreshold), metadata, result.CreatedAt,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: canary result for %s: %w", ErrInvalidRuleVersion, result.RuleVersionID, err)
		}
		return fmt.Errorf("failed to save canary result: %w", err)
	}
	return nil
}

// GetLatestCanaryResult returns the most recent canary result of a rule
// version, or nil if it was never tested.
func (s *SQLiteStorage) GetLatestCanaryResult(ctx context.Context, ruleVersionID string) (*model.CanaryTestResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ruleVersionID, "ruleVersionID"); err != nil {
		return nil, err
	}

	var (
		r                     model.CanaryTestResult
		precision, recall, f1 sql.NullFloat64
		metadata              sql.NullString
		passed                int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, rule_version_id, test_set_size, correct_count, incorrect_count, accuracy,
			precision, recall, f1_score, passed_threshold, test_metadata, created_at
		FROM canary_results
		WHERE rule_version_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, ruleVersionID).Scan(
		&r.ID, &r.RuleVersionID, &r.TestSetSize, &r.CorrectCount, &r.IncorrectCount, &r.Accuracy,
		&precision, &recall, &f1, &passed, &metadata, &r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get canary result: %w", err)
	}

	r.Precision = floatPtr(precision)
	r.Recall = floatPtr(recall)
	r.F1Score = floatPtr(f1)
	r.PassedThreshold = passed == 1
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &r.TestMetadata); err != nil {
			return nil, fmt.Errorf("failed to parse test metadata: %w", err)
		}
	}
	return &r, nil
}

// RecordRuleApplication counts one application of a rule version on day.
func (s *SQLiteStorage) RecordRuleApplication(ctx context.Context, ruleVersionID string, day time.Time, confidence float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ruleVersionID, "ruleVersionID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_effectiveness (rule_version_id, measurement_date, applications_count, confidence_sum)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(rule_version_id, measurement_date) DO UPDATE SET
			applications_count = applications_count + 1,
			confidence_sum = confidence_sum + excluded.confidence_sum
	`, ruleVersionID, day.UTC().Format(measurementDateLayout), confidence)
	if err != nil {
		return fmt.Errorf("failed to record rule application: %w", err)
	}
	return nil
}

// RecordRuleOutcome counts a reviewed application as correct or incorrect.
func (s *SQLiteStorage) RecordRuleOutcome(ctx context.Context, ruleVersionID string, day time.Time, correct bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ruleVersionID, "ruleVersionID"); err != nil {
		return err
	}

	correctInc, incorrectInc := 0, 1
	if correct {
		correctInc, incorrectInc = 1, 0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_effectiveness (rule_version_id, measurement_date, correct_count, incorrect_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(rule_version_id, measurement_date) DO UPDATE SET
			correct_count = correct_count + excluded.correct_count,
			incorrect_count = incorrect_count + excluded.incorrect_count
	`, ruleVersionID, day.UTC().Format(measurementDateLayout), correctInc, incorrectInc)
	if err != nil {
		return fmt.Errorf("failed to record rule outcome: %w", err)
	}
	return nil
}

// GetRuleEffectiveness returns daily metrics between from and to inclusive,
// oldest first.
func (s *SQLiteStorage) GetRuleEffectiveness(ctx context.Context, ruleVersionID string, from, to time.Time) ([]model.RuleEffectiveness, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ruleVersionID, "ruleVersionID"); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT measurement_date, applications_count, correct_count, incorrect_count, confidence_sum
		FROM rule_effectiveness
		WHERE rule_version_id = ? AND measurement_date BETWEEN ? AND ?
		ORDER BY measurement_date
	`, ruleVersionID, from.UTC().Format(measurementDateLayout), to.UTC().Format(measurementDateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query rule effectiveness: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RuleEffectiveness
	for rows.Next() {
		var (
			e       model.RuleEffectiveness
			date    string
			confSum float64
		)
		if err := rows.Scan(&date, &e.ApplicationsCount, &e.CorrectCount, &e.IncorrectCount, &confSum); err != nil {
			return nil, fmt.Errorf("failed to scan rule effectiveness: %w", err)
		}
		if e.MeasurementDate, err = time.Parse(measurementDateLayout, date); err != nil {
			return nil, fmt.Errorf("invalid measurement date %q: %w", date, err)
		}
		e.RuleVersionID = ruleVersionID
		if e.ApplicationsCount > 0 {
			e.AvgConfidence = confSum / float64(e.ApplicationsCount)
		}
		if judged := e.CorrectCount + e.IncorrectCount; judged > 0 {
			p := float64(e.CorrectCount) / float64(judged)
			e.Precision = &p
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule effectiveness: %w", err)
	}
	return out, nil
}
