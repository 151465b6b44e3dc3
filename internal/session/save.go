package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartlife/capture/internal/bus"
	"github.com/smartlife/capture/internal/domain"
	"github.com/smartlife/capture/internal/form"
)

// RequestSave validates and persists the draft. At most one persistence call
// is ever in flight; a concurrent call gets ErrSaveInProgress immediately.
// On failure the draft is preserved bit-identically and the session stays
// open for retry.
func (s *Session) RequestSave(ctx context.Context) (*domain.PersistedEvent, error) {
	if !s.coord.begin() {
		return nil, ErrSaveInProgress
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.coord.done()
		return nil, ErrSessionClosed
	}
	draft, err := s.form.BeginSave()
	if err != nil {
		var missing *form.MissingFieldsError
		if errors.As(err, &missing) {
			s.appendTurn(domain.RoleAssistant, missingFieldsReply(missing.Fields))
		}
		s.mu.Unlock()
		s.coord.done()
		return nil, err
	}
	editing := s.editing
	s.mu.Unlock()

	// The category reference must still resolve at save time.
	if _, err := s.store.GetCategory(ctx, s.userID, *draft.CategoryID); err != nil {
		return nil, s.failSave(fmt.Errorf("category no longer exists: %w", err))
	}

	var (
		saved      domain.PersistedEvent
		persistErr error
	)
	if editing != nil {
		saved, persistErr = s.store.UpdateEvent(ctx, s.userID, *editing, draft)
	} else {
		saved, persistErr = s.store.CreateEvent(ctx, s.userID, draft)
	}
	if persistErr != nil {
		return nil, s.failSave(persistErr)
	}

	s.mu.Lock()
	s.form.ResolveSave(true)
	s.savedEvent = &saved
	s.appendTurn(domain.RoleAssistant, fmt.Sprintf("Evento %q salvato!", saved.Title))
	s.mu.Unlock()
	s.coord.done()

	if s.bus != nil {
		if err := s.bus.Publish(bus.SubjectEventSaved, map[string]any{
			"event_id":  saved.ID.String(),
			"user_id":   s.userID.String(),
			"title":     saved.Title,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			s.logger.Warn("failed to publish event saved", "error", err)
		}
	}

	s.logger.Info("event saved", "session_id", s.ID, "event_id", saved.ID)

	// Leave the confirmation on screen briefly, then close the session.
	time.AfterFunc(s.closeDelay, s.closeAfterSave)

	return &saved, nil
}

// failSave records a persistence failure: the draft stays fully intact, an
// error turn explains the reason, and the session remains open.
func (s *Session) failSave(cause error) error {
	s.mu.Lock()
	warnings := s.form.ResolveSave(false)
	for _, w := range warnings {
		s.logger.Warn("form warning", "session_id", s.ID, "warning", w)
	}
	s.appendTurn(domain.RoleAssistant, "Non sono riuscito a salvare l'evento: "+reason(cause)+". Il modulo è rimasto com'era, puoi riprovare.")
	s.mu.Unlock()
	s.coord.done()

	s.logger.Error("save failed", "session_id", s.ID, "error", cause)
	return fmt.Errorf("save event: %w", cause)
}

func reason(err error) string {
	if err == nil {
		return "errore sconosciuto"
	}
	return err.Error()
}

func missingFieldsReply(fields []string) string {
	names := map[string]string{
		"title":          "il titolo",
		"start_datetime": "la data di inizio",
		"category_id":    "la categoria",
	}
	var parts []string
	for _, f := range fields {
		if n, ok := names[f]; ok {
			parts = append(parts, n)
		} else {
			parts = append(parts, f)
		}
	}
	out := "Prima di salvare mancano: "
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out + "."
}
