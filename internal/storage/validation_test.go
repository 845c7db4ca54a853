package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/saffron/internal/model"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{name: "valid context", ctx: context.Background()},
		{name: "nil context", ctx: nil, wantErr: true},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTransaction(t *testing.T) {
	valid := model.NormalizedTransaction{
		ID:          "tx-1",
		OrgID:       testOrg,
		Date:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		AmountCents: "-1299",
		Description: "COFFEE",
	}

	tests := []struct {
		mutate  func(*model.NormalizedTransaction)
		wantErr error
		name    string
	}{
		{name: "valid", mutate: func(*model.NormalizedTransaction) {}},
		{name: "missing id", mutate: func(tx *model.NormalizedTransaction) { tx.ID = "" }, wantErr: ErrInvalidTransaction},
		{name: "missing date", mutate: func(tx *model.NormalizedTransaction) { tx.Date = time.Time{} }, wantErr: ErrInvalidTransaction},
		{name: "missing description", mutate: func(tx *model.NormalizedTransaction) { tx.Description = "" }, wantErr: ErrInvalidTransaction},
		{name: "non-numeric amount", mutate: func(tx *model.NormalizedTransaction) { tx.AmountCents = "12,99" }, wantErr: ErrInvalidTransaction},
		{name: "large amount", mutate: func(tx *model.NormalizedTransaction) { tx.AmountCents = "123456789012345678901234567890" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid
			tt.mutate(&tx)
			err := validateTransaction(&tx)
			if tt.wantErr == nil && err != nil {
				t.Errorf("validateTransaction() unexpected error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("validateTransaction() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCategory(t *testing.T) {
	tests := []struct {
		name     string
		category model.Category
		wantErr  bool
	}{
		{name: "valid", category: model.Category{ID: "c", Slug: "meals", Name: "Meals", Type: model.CategoryTypeOpex}},
		{name: "missing slug", category: model.Category{ID: "c", Name: "Meals", Type: model.CategoryTypeOpex}, wantErr: true},
		{name: "unknown type", category: model.Category{ID: "c", Slug: "meals", Name: "Meals", Type: "asset"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCategory(&tt.category)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateCategory() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCategory) {
				t.Errorf("validateCategory() error = %v, want ErrInvalidCategory", err)
			}
		})
	}
}

func TestValidateAudit(t *testing.T) {
	tests := []struct {
		name    string
		audit   model.DecisionAudit
		wantErr bool
	}{
		{name: "valid", audit: testAudit("a", "tx", "cat")},
		{name: "flag without category", audit: model.DecisionAudit{ID: "a", TxID: "tx", OrgID: testOrg, Source: model.DecisionSourceLLM}},
		{name: "missing source", audit: model.DecisionAudit{ID: "a", TxID: "tx", OrgID: testOrg}, wantErr: true},
		{
			name: "confidence out of range",
			audit: func() model.DecisionAudit {
				a := testAudit("a", "tx", "cat")
				a.Confidence = 1.01
				return a
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAudit(&tt.audit)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAudit() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
