package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/saffron/internal/model"
	"github.com/Veraticus/saffron/internal/service"
)

const transactionColumns = `id, org_id, date, amount_cents, currency, description,
	merchant_name, mcc, category_id, confidence, needs_review, reviewed, reviewed_at`

// SaveTransactions inserts transactions. Re-imported transactions update their
// source fields and keep any categorization already applied.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.NormalizedTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (id, org_id, date, amount_cents, currency, description, merchant_name, mcc)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				date = excluded.date,
				amount_cents = excluded.amount_cents,
				currency = excluded.currency,
				description = excluded.description,
				merchant_name = excluded.merchant_name,
				mcc = excluded.mcc
			WHERE transactions.org_id = excluded.org_id
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			currency := txn.Currency
			if currency == "" {
				currency = "USD"
			}
			if _, err := stmt.ExecContext(ctx,
				txn.ID,
				txn.OrgID,
				txn.Date,
				strings.TrimSpace(txn.AmountCents),
				currency,
				txn.Description,
				nullString(txn.MerchantName),
				nullString(txn.MCC),
			); err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
			}
		}
		return nil
	})
}

// GetTransaction returns one transaction with its categorization state.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.TransactionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, q queryable, id string) (*model.TransactionRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	rec, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return rec, nil
}

// GetTransactions lists transactions matching filter, newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.TransactionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.OrgID != "" {
		where = append(where, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.NeedsReview != nil {
		where = append(where, "needs_review = ?")
		args = append(args, boolToInt(*filter.NeedsReview))
	}
	if filter.Uncategorized {
		where = append(where, "(category_id IS NULL OR category_id = '')")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryTransactions(ctx, query, args...)
}

// GetLabeledSample returns the most recently reviewed categorized
// transactions of orgID.
func (s *SQLiteStorage) GetLabeledSample(ctx context.Context, orgID string, limit int) ([]model.TransactionRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(orgID, "orgID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE org_id = ? AND reviewed = 1 AND category_id IS NOT NULL AND category_id != ''
		ORDER BY reviewed_at DESC, id
		LIMIT ?
	`, orgID, limit)
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(sc scanner) (*model.TransactionRecord, error) {
	var (
		rec                 model.TransactionRecord
		merchant, mcc, cat  sql.NullString
		needsReview, review int
		reviewedAt          sql.NullTime
	)
	t := &rec.Transaction
	if err := sc.Scan(
		&t.ID,
		&t.OrgID,
		&t.Date,
		&t.AmountCents,
		&t.Currency,
		&t.Description,
		&merchant,
		&mcc,
		&cat,
		&rec.Confidence,
		&needsReview,
		&review,
		&reviewedAt,
	); err != nil {
		return nil, err
	}
	t.MerchantName = merchant.String
	t.MCC = mcc.String
	rec.CategoryID = cat.String
	rec.NeedsReview = needsReview == 1
	rec.Reviewed = review == 1
	if reviewedAt.Valid {
		at := reviewedAt.Time
		rec.ReviewedAt = &at
	}
	return &rec, nil
}
