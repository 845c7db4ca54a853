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

// SaveOscillation records o as unresolved. If the transaction already has an
// unresolved oscillation, that row is refreshed and o takes its ID.
func (s *SQLiteStorage) SaveOscillation(ctx context.Context, o *model.CategoryOscillation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("%w: oscillation", ErrNilParameter)
	}
	if err := validateString(o.OrgID, "orgID"); err != nil {
		return err
	}
	if err := validateString(o.TxID, "txID"); err != nil {
		return err
	}
	if o.IsResolved {
		return fmt.Errorf("%w: %s is already resolved", ErrInvalidOscillation, o.ID)
	}

	sequence, err := json.Marshal(o.Sequence)
	if err != nil {
		return fmt.Errorf("failed to encode oscillation sequence: %w", err)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.DetectedAt.IsZero() {
		o.DetectedAt = s.now()
	}
	o.DetectedAt = o.DetectedAt.UTC()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM category_oscillations WHERE tx_id = ? AND is_resolved = 0`, o.TxID,
		).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO category_oscillations (id, org_id, tx_id, sequence, oscillation_count, detected_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, o.ID, o.OrgID, o.TxID, string(sequence), o.Count, o.DetectedAt)
			if err != nil {
				return fmt.Errorf("failed to insert oscillation: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to look up oscillation: %w", err)
		}

		o.ID = existing
		if _, err := tx.ExecContext(ctx, `
			UPDATE category_oscillations
			SET sequence = ?, oscillation_count = ?, detected_at = ?
			WHERE id = ?
		`, string(sequence), o.Count, o.DetectedAt, existing); err != nil {
			return fmt.Errorf("failed to update oscillation: %w", err)
		}
		return nil
	})
}

// GetUnresolvedOscillations lists open oscillations of orgID, most recent first.
func (s *SQLiteStorage) GetUnresolvedOscillations(ctx context.Context, orgID string) ([]model.CategoryOscillation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, tx_id, sequence, oscillation_count, is_resolved,
			resolution_category_id, resolved_by, resolved_at, detected_at
		FROM category_oscillations
		WHERE org_id = ? AND is_resolved = 0
		ORDER BY detected_at DESC, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query oscillations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.CategoryOscillation
	for rows.Next() {
		o, err := scanOscillation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating oscillations: %w", err)
	}
	return out, nil
}

// ResolveOscillation marks an oscillation resolved. It returns false without
// error when the oscillation was already resolved.
func (s *SQLiteStorage) ResolveOscillation(ctx context.Context, id, categoryID, resolvedBy string, at time.Time) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(id, "id"); err != nil {
		return false, err
	}
	if err := validateString(categoryID, "categoryID"); err != nil {
		return false, err
	}
	if err := validateString(resolvedBy, "resolvedBy"); err != nil {
		return false, err
	}

	var resolved bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE category_oscillations
			SET is_resolved = 1, resolution_category_id = ?, resolved_by = ?, resolved_at = ?
			WHERE id = ? AND is_resolved = 0
		`, categoryID, resolvedBy, at.UTC(), id)
		if err != nil {
			return fmt.Errorf("failed to resolve oscillation: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 1 {
			resolved = true
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM category_oscillations WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("oscillation", id)
		}
		if err != nil {
			return fmt.Errorf("failed to look up oscillation: %w", err)
		}
		return nil
	})
	return resolved, err
}

func scanOscillation(sc scanner) (*model.CategoryOscillation, error) {
	var (
		o                         model.CategoryOscillation
		sequence                  string
		resolved                  int
		resolutionCat, resolvedBy sql.NullString
		resolvedAt                sql.NullTime
	)
	if err := sc.Scan(&o.ID, &o.OrgID, &o.TxID, &sequence, &o.Count, &resolved,
		&resolutionCat, &resolvedBy, &resolvedAt, &o.DetectedAt); err != nil {
		return nil, fmt.Errorf("failed to scan oscillation: %w", err)
	}
	if err := json.Unmarshal([]byte(sequence), &o.Sequence); err != nil {
		return nil, fmt.Errorf("failed to parse oscillation sequence: %w", err)
	}
	o.IsResolved = resolved == 1
	o.ResolutionCategoryID = stringPtr(resolutionCat)
	o.ResolvedBy = stringPtr(resolvedBy)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		o.ResolvedAt = &t
	}
	return &o, nil
}
