// Package storage persists transactions, decisions and the rule lifecycle in
// SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/saffron/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidRuleVersion = errors.New("invalid rule version")
	ErrInvalidAudit       = errors.New("invalid decision audit")
	ErrInvalidOscillation = errors.New("invalid oscillation")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateTransactions(transactions []model.NormalizedTransaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}
	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

func validateTransaction(txn *model.NormalizedTransaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	switch {
	case txn.ID == "":
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	case txn.OrgID == "":
		return fmt.Errorf("%w: missing org ID", ErrInvalidTransaction)
	case txn.Date.IsZero():
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	case txn.Description == "":
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	if _, err := txn.Amount(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	return nil
}

func validateCategory(c *model.Category) error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: missing ID", ErrInvalidCategory)
	case c.Slug == "":
		return fmt.Errorf("%w: missing slug", ErrInvalidCategory)
	case c.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidCategory)
	case !c.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCategory, c.Type)
	}
	return nil
}

func validateRuleVersion(v *model.RuleVersion) error {
	switch {
	case v.OrgID == "":
		return fmt.Errorf("%w: missing org ID", ErrInvalidRuleVersion)
	case !v.RuleType.Valid():
		return fmt.Errorf("%w: unknown rule type %d", ErrInvalidRuleVersion, int(v.RuleType))
	case !v.Source.Valid():
		return fmt.Errorf("%w: unknown source %d", ErrInvalidRuleVersion, int(v.Source))
	case strings.TrimSpace(v.RuleIdentifier) == "":
		return fmt.Errorf("%w: missing rule identifier", ErrInvalidRuleVersion)
	case v.CategoryID == "":
		return fmt.Errorf("%w: missing category", ErrInvalidRuleVersion)
	case v.Confidence <= 0 || v.Confidence > 1:
		return fmt.Errorf("%w: confidence %v out of range", ErrInvalidRuleVersion, v.Confidence)
	case v.CreatedBy == "":
		return fmt.Errorf("%w: missing creator", ErrInvalidRuleVersion)
	}
	return nil
}

func validateAudit(a *model.DecisionAudit) error {
	switch {
	case a.ID == "":
		return fmt.Errorf("%w: missing ID", ErrInvalidAudit)
	case a.TxID == "":
		return fmt.Errorf("%w: missing transaction ID", ErrInvalidAudit)
	case a.OrgID == "":
		return fmt.Errorf("%w: missing org ID", ErrInvalidAudit)
	case a.Source == "":
		return fmt.Errorf("%w: missing source", ErrInvalidAudit)
	case a.Confidence < 0 || a.Confidence > 1:
		return fmt.Errorf("%w: confidence %v out of range", ErrInvalidAudit, a.Confidence)
	case a.CategoryID != "" && len(a.Rationale) == 0:
		return fmt.Errorf("%w: category without rationale", ErrInvalidAudit)
	}
	return nil
}
