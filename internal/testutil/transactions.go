package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/saffron/internal/model"
)

// DefaultDate is the date transactions get unless the builder sets one.
var DefaultDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// TxBuilder builds normalized transactions with sensible defaults: an
// expense of 12.50 USD on DefaultDate.
type TxBuilder struct {
	tx model.NormalizedTransaction
}

// NewTx starts a transaction with the given id and organization.
func NewTx(id, orgID string) *TxBuilder {
	return &TxBuilder{tx: model.NormalizedTransaction{
		ID:          id,
		OrgID:       orgID,
		Date:        DefaultDate,
		AmountCents: "-1250",
		Currency:    "USD",
		Description: "POS PURCHASE " + id,
	}}
}

// Merchant sets the merchant name and a matching description.
func (b *TxBuilder) Merchant(name string) *TxBuilder {
	b.tx.MerchantName = name
	b.tx.Description = "POS " + name
	return b
}

// Description overrides the description.
func (b *TxBuilder) Description(d string) *TxBuilder {
	b.tx.Description = d
	return b
}

// Cents sets the signed amount in cents.
func (b *TxBuilder) Cents(c int64) *TxBuilder {
	b.tx.AmountCents = fmt.Sprintf("%d", c)
	return b
}

// MCC sets the merchant category code.
func (b *TxBuilder) MCC(code string) *TxBuilder {
	b.tx.MCC = code
	return b
}

// On sets the transaction date.
func (b *TxBuilder) On(d time.Time) *TxBuilder {
	b.tx.Date = d.UTC()
	return b
}

// Build returns the transaction.
func (b *TxBuilder) Build() model.NormalizedTransaction {
	return b.tx
}
