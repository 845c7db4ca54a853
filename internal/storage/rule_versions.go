package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
	"github.com/google/uuid"
)

const ruleVersionColumns = `id, org_id, rule_type, rule_identifier, category_id, confidence, version,
	source, parent_version_id, metadata, is_active, created_by, created_at`

// CreateRuleVersion inserts the next version of the draft's lineage. The
// version number and parent link are assigned here; a manual draft replaces
// the active version.
func (s *SQLiteStorage) CreateRuleVersion(ctx context.Context, draft model.RuleVersion) (*model.RuleVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateRuleVersion(&draft); err != nil {
		return nil, err
	}

	v := draft
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.IsActive = v.Source.ActiveOnCreate()

	metadata, err := encodeMetadata(v.Metadata)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			prevID      string
			prevVersion int
		)
		err := tx.QueryRowContext(ctx, `
			SELECT id, version FROM rule_versions
			WHERE org_id = ? AND rule_type = ? AND rule_identifier = ?
			ORDER BY version DESC
			LIMIT 1
		`, v.OrgID, v.RuleType.String(), v.RuleIdentifier).Scan(&prevID, &prevVersion)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			v.Version = 1
			v.ParentVersionID = nil
		case err != nil:
			return fmt.Errorf("failed to read latest version: %w", err)
		default:
			v.Version = prevVersion + 1
			v.ParentVersionID = &prevID
		}

		if v.IsActive {
			if _, err := tx.ExecContext(ctx, `
				UPDATE rule_versions SET is_active = 0
				WHERE org_id = ? AND rule_type = ? AND rule_identifier = ? AND is_active = 1
			`, v.OrgID, v.RuleType.String(), v.RuleIdentifier); err != nil {
				return fmt.Errorf("failed to deactivate previous version: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rule_versions (`+ruleVersionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			v.ID, v.OrgID, v.RuleType.String(), v.RuleIdentifier, v.CategoryID, v.Confidence, v.Version,
			v.Source.String(), nullStringPtr(v.ParentVersionID), metadata, boolToInt(v.IsActive),
			v.CreatedBy, v.CreatedAt,
		); err != nil {
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: %s version %d: %w", common.ErrVersionConflict, v.Key(), v.Version, err)
			}
			return fmt.Errorf("failed to insert rule version: %w", err)
		}

		return insertRuleEvent(ctx, tx, v.ID, model.RuleActionCreate, v.CreatedBy, "", v.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetRuleVersion returns one rule version.
func (s *SQLiteStorage) GetRuleVersion(ctx context.Context, id string) (*model.RuleVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getRuleVersion(ctx, s.db, id)
}

func getRuleVersion(ctx context.Context, q queryable, id string) (*model.RuleVersion, error) {
	row := q.QueryRowContext(ctx, `SELECT `+ruleVersionColumns+` FROM rule_versions WHERE id = ?`, id)
	v, err := scanRuleVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("rule version", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule version: %w", err)
	}
	return v, nil
}

// GetActiveRuleVersions lists the active versions of orgID.
func (s *SQLiteStorage) GetActiveRuleVersions(ctx context.Context, orgID string, ruleType model.RuleType) ([]model.RuleVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleVersionColumns + ` FROM rule_versions WHERE org_id = ? AND is_active = 1`
	args := []any{orgID}
	if ruleType != 0 {
		if !ruleType.Valid() {
			return nil, fmt.Errorf("%w: unknown rule type %d", ErrInvalidRuleVersion, int(ruleType))
		}
		query += " AND rule_type = ?"
		args = append(args, ruleType.String())
	}
	query += " ORDER BY rule_type, rule_identifier"
	return s.queryRuleVersions(ctx, query, args...)
}

// GetRuleVersionHistory lists every version of a lineage, oldest first.
func (s *SQLiteStorage) GetRuleVersionHistory(ctx context.Context, key model.RuleKey) ([]model.RuleVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryRuleVersions(ctx, `
		SELECT `+ruleVersionColumns+` FROM rule_versions
		WHERE org_id = ? AND rule_type = ? AND rule_identifier = ?
		ORDER BY version
	`, key.OrgID, key.RuleType.String(), key.RuleIdentifier)
}

// ActivateRuleVersion deactivates the lineage's active version and activates
// id in one transaction. The activation only succeeds if id is still
// inactive when the update runs, so two concurrent promotions cannot both win.
func (s *SQLiteStorage) ActivateRuleVersion(ctx context.Context, id, actor string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(actor, "actor"); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		v, err := getRuleVersion(ctx, tx, id)
		if err != nil {
			return err
		}
		if v.IsActive {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE rule_versions SET is_active = 0
			WHERE org_id = ? AND rule_type = ? AND rule_identifier = ? AND is_active = 1
		`, v.OrgID, v.RuleType.String(), v.RuleIdentifier); err != nil {
			return fmt.Errorf("failed to deactivate current version: %w", err)
		}

		if err := compareAndSetActive(ctx, tx, id, true); err != nil {
			return err
		}
		return insertRuleEvent(ctx, tx, id, model.RuleActionPromote, actor, "", s.now())
	})
}

// RollbackRuleVersion deactivates the active version id and reactivates its
// parent. Versions without a parent are left untouched and nil is returned.
func (s *SQLiteStorage) RollbackRuleVersion(ctx context.Context, id, reason, actor string) (*model.RuleVersion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	if err := validateString(reason, "reason"); err != nil {
		return nil, err
	}
	if err := validateString(actor, "actor"); err != nil {
		return nil, err
	}

	var parent *model.RuleVersion
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		v, err := getRuleVersion(ctx, tx, id)
		if err != nil {
			return err
		}
		if v.ParentVersionID == nil {
			return nil
		}

		if err := compareAndSetActive(ctx, tx, id, false); err != nil {
			return err
		}
		if err := compareAndSetActive(ctx, tx, *v.ParentVersionID, true); err != nil {
			return err
		}
		if err := insertRuleEvent(ctx, tx, id, model.RuleActionRollback, actor, reason, s.now()); err != nil {
			return err
		}

		parent, err = getRuleVersion(ctx, tx, *v.ParentVersionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return parent, nil
}

// compareAndSetActive flips is_active for id only if it currently holds the
// opposite value.
func compareAndSetActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE rule_versions SET is_active = ? WHERE id = ? AND is_active = ?`,
		boolToInt(active), id, boolToInt(!active))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: another version of %s is active", common.ErrVersionConflict, id)
		}
		return fmt.Errorf("failed to update rule version %s: %w", id, err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n != 1 {
		state := "inactive"
		if active {
			state = "active"
		}
		return fmt.Errorf("%w: rule version %s is already %s", common.ErrVersionConflict, id, state)
	}
	return nil
}

// GetRuleEvents returns the lifecycle log of a rule version, oldest first.
func (s *SQLiteStorage) GetRuleEvents(ctx context.Context, ruleVersionID string) ([]model.RuleEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ruleVersionID, "ruleVersionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_version_id, action, actor, reason, created_at
		FROM rule_events
		WHERE rule_version_id = ?
		ORDER BY created_at, rowid
	`, ruleVersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.RuleEvent
	for rows.Next() {
		var (
			e      model.RuleEvent
			reason sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RuleVersionID, &e.Action, &e.Actor, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule event: %w", err)
		}
		e.Reason = reason.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule events: %w", err)
	}
	return events, nil
}

func insertRuleEvent(ctx context.Context, tx *sql.Tx, ruleVersionID, action, actor, reason string, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rule_events (id, rule_version_id, action, actor, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), ruleVersionID, action, actor, nullString(reason), at.UTC()); err != nil {
		return fmt.Errorf("failed to record rule event: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) queryRuleVersions(ctx context.Context, query string, args ...any) ([]model.RuleVersion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RuleVersion
	for rows.Next() {
		v, err := scanRuleVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule version: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule versions: %w", err)
	}
	return out, nil
}

func scanRuleVersion(sc scanner) (*model.RuleVersion, error) {
	var (
		v                model.RuleVersion
		ruleType, source string
		parent, metadata sql.NullString
		active           int
	)
	if err := sc.Scan(&v.ID, &v.OrgID, &ruleType, &v.RuleIdentifier, &v.CategoryID, &v.Confidence, &v.Version,
		&source, &parent, &metadata, &active, &v.CreatedBy, &v.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if v.RuleType, err = model.ParseRuleType(ruleType); err != nil {
		return nil, err
	}
	if v.Source, err = model.ParseRuleSource(source); err != nil {
		return nil, err
	}
	v.ParentVersionID = stringPtr(parent)
	v.IsActive = active == 1
	if metadata.Valid && strings.TrimSpace(metadata.String) != "" {
		if err := json.Unmarshal([]byte(metadata.String), &v.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}
	return &v, nil
}

func encodeMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
