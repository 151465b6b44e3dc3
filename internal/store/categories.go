package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/smartlife/capture/internal/domain"
)

// ListCategories returns the user's category set. The capture engine reads
// this list; it never creates or deletes categories.
func (s *Store) ListCategories(ctx context.Context, userID uuid.UUID) ([]domain.Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, color, icon
		FROM categories
		WHERE user_id = $1
		ORDER BY name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Icon); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// GetCategory resolves one category reference. Used at save time to confirm
// the draft's category still exists.
func (s *Store) GetCategory(ctx context.Context, userID, id uuid.UUID) (domain.Category, error) {
	var c domain.Category
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, color, icon
		FROM categories
		WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&c.ID, &c.Name, &c.Color, &c.Icon)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Category{}, ErrNotFound
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}
