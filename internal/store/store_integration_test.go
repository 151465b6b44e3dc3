//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/smartlife/capture/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func seedCategory(t *testing.T, s *Store, userID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO categories (id, user_id, name, color, icon)
		VALUES ($1, $2, $3, $4, $5)`,
		id, userID, "integration-test", "#00ff00", "bolt",
	)
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(context.Background(), `DELETE FROM categories WHERE id = $1`, id)
	})
	return id
}

func TestIntegration_EventLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	catID := seedCategory(t, s, userID)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	amount := 75.50
	draft := domain.NewDraft()
	draft.Title = "Bolletta luce"
	draft.Start = &start
	draft.Amount = &amount
	draft.CategoryID = &catID
	draft.Reminders = []int{30, 1440}

	ev, err := s.CreateEvent(ctx, userID, draft)
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, ev.ID)
	})
	if ev.Title != "Bolletta luce" || len(ev.Reminders) != 2 {
		t.Fatalf("unexpected stored event: %+v", ev)
	}

	// Update
	draft.Title = "Bolletta luce Enel"
	updated, err := s.UpdateEvent(ctx, userID, ev.ID, draft)
	if err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}
	if updated.Title != "Bolletta luce Enel" {
		t.Errorf("update not applied: %+v", updated)
	}

	// Visible in upcoming and search
	upcoming, err := s.ListUpcoming(ctx, userID, 20)
	if err != nil {
		t.Fatalf("ListUpcoming failed: %v", err)
	}
	if len(upcoming) != 1 {
		t.Errorf("expected 1 upcoming event, got %d", len(upcoming))
	}
	hits, err := s.SearchEvents(ctx, userID, "enel", 10)
	if err != nil {
		t.Fatalf("SearchEvents failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 search hit, got %d", len(hits))
	}

	// Soft delete hides the event everywhere
	if err := s.DeleteEvent(ctx, userID, ev.ID); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	if _, err := s.GetEvent(ctx, userID, ev.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteEvent(ctx, userID, ev.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestIntegration_ValidationRejectsIncompleteDraft(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	draft := domain.NewDraft()
	draft.Title = "no start or category"

	_, err := s.CreateEvent(ctx, uuid.New(), draft)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestIntegration_CategoriesAreScopedToUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	userID := uuid.New()
	catID := seedCategory(t, s, userID)

	cat, err := s.GetCategory(ctx, userID, catID)
	if err != nil {
		t.Fatalf("GetCategory failed: %v", err)
	}
	if cat.Name != "integration-test" {
		t.Errorf("unexpected category: %+v", cat)
	}

	if _, err := s.GetCategory(ctx, uuid.New(), catID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign user should get ErrNotFound, got %v", err)
	}
}
