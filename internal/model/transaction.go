package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizedTransaction is a transaction as delivered by an ingestion connector.
// Amounts are decimal-string integer cents; negative amounts are outflows.
type NormalizedTransaction struct {
	Date         time.Time `json:"date"`
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	AmountCents  string    `json:"amount_cents"`
	Currency     string    `json:"currency"`
	Description  string    `json:"description"`
	MerchantName string    `json:"merchant_name,omitempty"`
	MCC          string    `json:"mcc,omitempty"`
}

// ParseCents parses a decimal-string integer cents value.
// Fractional cents are rejected so values round-trip losslessly.
func ParseCents(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid cents amount %q: %w", s, err)
	}
	if !d.IsInteger() {
		return decimal.Zero, fmt.Errorf("invalid cents amount %q: fractional cents", s)
	}
	return d, nil
}

// Amount returns the parsed amount in cents.
func (t NormalizedTransaction) Amount() (decimal.Decimal, error) {
	return ParseCents(t.AmountCents)
}

// IsRefund reports whether the transaction looks like a refund: a negative
// amount or the word "refund" in its description.
func (t NormalizedTransaction) IsRefund() bool {
	if strings.Contains(strings.ToLower(t.Description), "refund") {
		return true
	}
	amount, err := t.Amount()
	if err != nil {
		return false
	}
	return amount.IsNegative()
}

// Text returns the merchant name and description joined for matching.
func (t NormalizedTransaction) Text() string {
	if t.MerchantName == "" {
		return t.Description
	}
	return t.MerchantName + " " + t.Description
}

// Fingerprint returns a stable hash of the fields that drive categorization.
// Two transactions with the same fingerprint categorize identically.
func (t NormalizedTransaction) Fingerprint() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.OrgID,
		strings.ToLower(t.MerchantName),
		strings.ToLower(t.Description),
		t.MCC,
		signOf(t.AmountCents))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

func signOf(cents string) string {
	if strings.HasPrefix(strings.TrimSpace(cents), "-") {
		return "-"
	}
	return "+"
}

// TransactionRecord is the persisted view of a transaction, including the
// fields the engine writes back.
type TransactionRecord struct {
	ReviewedAt  *time.Time
	CategoryID  string
	Transaction NormalizedTransaction
	Confidence  float64
	NeedsReview bool
	Reviewed    bool
}
