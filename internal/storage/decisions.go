package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

// ApplyDecision writes the decision's transaction fields and appends its
// audit row atomically. The update is scoped to the decision's organization,
// so a transaction of another organization is reported as not found.
func (s *SQLiteStorage) ApplyDecision(ctx context.Context, update service.DecisionUpdate, audit model.DecisionAudit) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(update.TxID, "txID"); err != nil {
		return err
	}
	if err := validateString(update.OrgID, "orgID"); err != nil {
		return err
	}
	if err := validateAudit(&audit); err != nil {
		return err
	}

	rationale, err := json.Marshal(audit.Rationale)
	if err != nil {
		return fmt.Errorf("failed to encode rationale: %w", err)
	}
	var ruleIDs sql.NullString
	if len(audit.RuleVersionIDs) > 0 {
		data, err := json.Marshal(audit.RuleVersionIDs)
		if err != nil {
			return fmt.Errorf("failed to encode rule version ids: %w", err)
		}
		ruleIDs = sql.NullString{String: string(data), Valid: true}
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = s.now()
	}
	audit.CreatedAt = audit.CreatedAt.UTC()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions SET
				category_id = COALESCE(NULLIF(?, ''), category_id),
				confidence = ?,
				needs_review = ?,
				reviewed = CASE WHEN ? = 1 THEN 1 ELSE reviewed END,
				reviewed_at = CASE WHEN ? = 1 THEN ? ELSE reviewed_at END
			WHERE id = ? AND org_id = ?
		`,
			update.CategoryID,
			update.Confidence,
			boolToInt(update.NeedsReview),
			boolToInt(update.Reviewed),
			boolToInt(update.Reviewed), audit.CreatedAt,
			update.TxID, update.OrgID,
		)
		if err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound("transaction", update.TxID)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decision_audits
				(id, org_id, tx_id, category_id, source, reason, confidence, rationale, rule_version_ids, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			audit.ID,
			audit.OrgID,
			audit.TxID,
			nullString(audit.CategoryID),
			string(audit.Source),
			nullString(audit.Reason),
			audit.Confidence,
			string(rationale),
			ruleIDs,
			audit.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append decision audit: %w", err)
		}
		return nil
	})
}

// GetDecisionAudits returns a transaction's audit trail, oldest first.
func (s *SQLiteStorage) GetDecisionAudits(ctx context.Context, txID string) ([]model.DecisionAudit, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(txID, "txID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, tx_id, category_id, source, reason, confidence, rationale, rule_version_ids, created_at
		FROM decision_audits
		WHERE tx_id = ?
		ORDER BY created_at, rowid
	`, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision audits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var audits []model.DecisionAudit
	for rows.Next() {
		var (
			a                  model.DecisionAudit
			category, reason   sql.NullString
			rationale, ruleIDs sql.NullString
			source             string
		)
		if err := rows.Scan(&a.ID, &a.OrgID, &a.TxID, &category, &source, &reason,
			&a.Confidence, &rationale, &ruleIDs, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision audit: %w", err)
		}
		a.CategoryID = category.String
		a.Reason = reason.String
		a.Source = model.DecisionSource(source)
		if rationale.Valid {
			if err := json.Unmarshal([]byte(rationale.String), &a.Rationale); err != nil {
				return nil, fmt.Errorf("failed to parse rationale: %w", err)
			}
		}
		if ruleIDs.Valid {
			if err := json.Unmarshal([]byte(ruleIDs.String), &a.RuleVersionIDs); err != nil {
				return nil, fmt.Errorf("failed to parse rule version ids: %w", err)
			}
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision audits: %w", err)
	}
	return audits, nil
}

// GetCategoryHistory derives each transaction's category sequence from the
// audit log. Decisions at or before a transaction's latest oscillation
// resolution are left out, so a resolved oscillation is not detected again
// from the same history.
func (s *SQLiteStorage) GetCategoryHistory(ctx context.Context, orgID string, since time.Time) (map[string][]model.CategoryChange, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.tx_id, d.category_id, d.source, d.created_at
		FROM decision_audits d
		WHERE d.org_id = ? AND d.created_at >= ?
			AND d.category_id IS NOT NULL AND d.category_id != ''
			AND d.created_at > COALESCE((
				SELECT MAX(o.resolved_at) FROM category_oscillations o
				WHERE o.tx_id = d.tx_id AND o.is_resolved = 1
			), '')
		ORDER BY d.tx_id, d.created_at, d.rowid
	`, orgID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query category history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := make(map[string][]model.CategoryChange)
	for rows.Next() {
		var (
			txID   string
			change model.CategoryChange
		)
		if err := rows.Scan(&txID, &change.CategoryID, &change.ChangedBy, &change.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category history: %w", err)
		}
		history[txID] = append(history[txID], change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category history: %w", err)
	}
	return history, nil
}
