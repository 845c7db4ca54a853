package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Veraticus/saffron/internal/common"
	"github.com/Veraticus/saffron/internal/model"
)

// GetCategories returns the taxonomy in slug order.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, name, type, attribute_schema, created_at
		FROM categories
		ORDER BY slug
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var (
			c      model.Category
			schema sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.Type, &schema, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if schema.Valid && schema.String != "" {
			if err := json.Unmarshal([]byte(schema.String), &c.AttributeSchema); err != nil {
				return nil, fmt.Errorf("failed to parse attribute schema of %s: %w", c.Slug, err)
			}
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, nil
}

// SaveCategories upserts categories by id.
func (s *SQLiteStorage) SaveCategories(ctx context.Context, categories []model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(categories) == 0 {
		return fmt.Errorf("%w: categories", ErrEmptySlice)
	}
	for i := range categories {
		if err := validateCategory(&categories[i]); err != nil {
			return fmt.Errorf("category at index %d: %w", i, err)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range categories {
			var schema sql.NullString
			if len(c.AttributeSchema) > 0 {
				data, err := json.Marshal(c.AttributeSchema)
				if err != nil {
					return fmt.Errorf("failed to encode attribute schema: %w", err)
				}
				schema = sql.NullString{String: string(data), Valid: true}
			}
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = s.now()
			}
			createdAt = createdAt.UTC()
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO categories (id, slug, name, type, attribute_schema, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					slug = excluded.slug,
					name = excluded.name,
					type = excluded.type,
					attribute_schema = excluded.attribute_schema
			`, c.ID, c.Slug, c.Name, string(c.Type), schema, createdAt); err != nil {
				if isConstraintViolation(err) {
					return fmt.Errorf("%w: category slug %q: %w", common.ErrDuplicateEntry, c.Slug, err)
				}
				return fmt.Errorf("failed to save category %s: %w", c.Slug, err)
			}
		}
		return nil
	})
}
