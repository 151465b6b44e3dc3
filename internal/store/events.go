package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/smartlife/capture/internal/domain"
)

const eventColumns = `
	id, user_id, title, start_datetime, end_datetime, amount, category_id,
	description, recurrence, color, reminders, has_attachment, status,
	created_at, updated_at`

// CreateEvent persists a completed draft as a new event and returns the
// stored record.
func (s *Store) CreateEvent(ctx context.Context, userID uuid.UUID, draft domain.DraftEvent) (domain.PersistedEvent, error) {
	if draft.Title == "" || draft.Start == nil || draft.CategoryID == nil {
		return domain.PersistedEvent{}, &ValidationError{Reason: "title, start_datetime and category_id are required"}
	}

	id := uuid.New()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (id, user_id, title, start_datetime, end_datetime, amount,
			category_id, description, recurrence, color, reminders, has_attachment,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		id, userID, draft.Title, draft.Start, draft.End, draft.Amount,
		draft.CategoryID, draft.Description, draft.Recurrence, draft.Color,
		remindersArray(draft.Reminders), draft.Attachment, draft.Status, now,
	)
	if err != nil {
		return domain.PersistedEvent{}, fmt.Errorf("insert event: %w", err)
	}
	return s.GetEvent(ctx, userID, id)
}

// UpdateEvent overwrites an existing event with the edited draft.
func (s *Store) UpdateEvent(ctx context.Context, userID, id uuid.UUID, draft domain.DraftEvent) (domain.PersistedEvent, error) {
	if draft.Title == "" || draft.Start == nil || draft.CategoryID == nil {
		return domain.PersistedEvent{}, &ValidationError{Reason: "title, start_datetime and category_id are required"}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE events
		SET title = $3, start_datetime = $4, end_datetime = $5, amount = $6,
			category_id = $7, description = $8, recurrence = $9, color = $10,
			reminders = $11, has_attachment = $12, status = $13, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		id, userID, draft.Title, draft.Start, draft.End, draft.Amount,
		draft.CategoryID, draft.Description, draft.Recurrence, draft.Color,
		remindersArray(draft.Reminders), draft.Attachment, draft.Status,
	)
	if err != nil {
		return domain.PersistedEvent{}, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.PersistedEvent{}, ErrNotFound
	}
	return s.GetEvent(ctx, userID, id)
}

// DeleteEvent soft-deletes an event.
func (s *Store) DeleteEvent(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE events SET deleted_at = now()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, userID, id uuid.UUID) (domain.PersistedEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`,
		id, userID,
	)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PersistedEvent{}, ErrNotFound
	}
	if err != nil {
		return domain.PersistedEvent{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// ListUpcoming returns the user's next events, soonest first. Used to build
// the events context given to the understanding backend.
func (s *Store) ListUpcoming(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PersistedEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE user_id = $1 AND deleted_at IS NULL AND start_datetime >= now() - interval '1 day'
		ORDER BY start_datetime ASC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// SearchEvents does a case-insensitive substring match over title and
// description. Final ordering is the ranker's job; this just over-fetches
// candidates.
func (s *Store) SearchEvents(ctx context.Context, userID uuid.UUID, query string, limit int) ([]domain.PersistedEvent, error) {
	pattern := "%" + query + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE user_id = $1 AND deleted_at IS NULL
			AND (title ILIKE $2 OR description ILIKE $2)
		ORDER BY start_datetime DESC
		LIMIT $3`,
		userID, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.PersistedEvent, error) {
	var ev domain.PersistedEvent
	var reminders []int32
	err := row.Scan(
		&ev.ID, &ev.UserID, &ev.Title, &ev.Start, &ev.End, &ev.Amount,
		&ev.CategoryID, &ev.Description, &ev.Recurrence, &ev.Color,
		&reminders, &ev.Attachment, &ev.Status, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return domain.PersistedEvent{}, err
	}
	for _, m := range reminders {
		ev.Reminders = append(ev.Reminders, int(m))
	}
	return ev, nil
}

func collectEvents(rows pgx.Rows) ([]domain.PersistedEvent, error) {
	var events []domain.PersistedEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func remindersArray(reminders []int) []int32 {
	out := make([]int32, len(reminders))
	for i, m := range reminders {
		out[i] = int32(m)
	}
	return out
}
