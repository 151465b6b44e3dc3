// Package session hosts the capture-session controller: it owns the
// conversation log, funnels every extraction channel through the form state
// machine, and serializes persistence through the save coordinator. One
// Session corresponds to one open capture modal.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartlife/capture/internal/channel"
	"github.com/smartlife/capture/internal/domain"
	"github.com/smartlife/capture/internal/form"
	"github.com/smartlife/capture/internal/interpreter"
	"github.com/smartlife/capture/internal/search"
)

// EventStore is the persistence collaborator contract.
type EventStore interface {
	CreateEvent(ctx context.Context, userID uuid.UUID, draft domain.DraftEvent) (domain.PersistedEvent, error)
	UpdateEvent(ctx context.Context, userID, id uuid.UUID, draft domain.DraftEvent) (domain.PersistedEvent, error)
	DeleteEvent(ctx context.Context, userID, id uuid.UUID) error
	GetEvent(ctx context.Context, userID, id uuid.UUID) (domain.PersistedEvent, error)
	ListUpcoming(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PersistedEvent, error)
	SearchEvents(ctx context.Context, userID uuid.UUID, query string, limit int) ([]domain.PersistedEvent, error)
	ListCategories(ctx context.Context, userID uuid.UUID) ([]domain.Category, error)
	GetCategory(ctx context.Context, userID, id uuid.UUID) (domain.Category, error)
}

// Notifier publishes post-save notifications. Optional; a nil notifier
// disables the downstream fan-out without affecting the session.
type Notifier interface {
	Publish(subject string, data any) error
}

// VoiceStream is one open bidirectional voice session.
type VoiceStream interface {
	Events() <-chan channel.Event
	Send(frame []byte) error
	Close() error
}

// Session is the controller for one capture session. The mutex is the single
// serialization point: all field-update applies and log appends execute under
// it, in completion order.
type Session struct {
	ID     uuid.UUID
	userID uuid.UUID

	mu              sync.Mutex
	form            *form.Form
	turns           []domain.ConversationTurn
	channels        map[domain.ChannelKind]domain.ChannelStatus
	editing         *uuid.UUID
	categories      []domain.Category
	lastSearch      []domain.PersistedEvent
	highlightUpload bool
	savedEvent      *domain.PersistedEvent
	closed          bool
	provisionalIdx  int // index of the amendable voice transcript turn, -1 when none

	voiceStream VoiceStream
	voiceAudio  func([]byte)

	coord coordinator

	store         EventStore
	text          *channel.Text
	document      *channel.Document
	openVoice     func(ctx context.Context, token string, prior []domain.ConversationTurn) (VoiceStream, error)
	interp        *interpreter.Interpreter
	bus           Notifier
	logger        *slog.Logger
	closeDelay    time.Duration
	eventsContext int
	onClosed      func(id uuid.UUID)
}

// UserID returns the owning user.
func (s *Session) UserID() uuid.UUID {
	return s.userID
}

// View is a read-only snapshot of the session for the API layer.
type View struct {
	ID              uuid.UUID                                   `json:"id"`
	State           form.State                                  `json:"state"`
	Draft           domain.DraftEvent                           `json:"draft"`
	Turns           []domain.ConversationTurn                   `json:"turns"`
	Channels        map[domain.ChannelKind]domain.ChannelStatus `json:"channels"`
	SaveInFlight    bool                                        `json:"save_in_flight"`
	HighlightUpload bool                                        `json:"highlight_upload"`
	LastSearch      []domain.PersistedEvent                     `json:"last_search,omitempty"`
	SavedEventID    *uuid.UUID                                  `json:"saved_event_id,omitempty"`
	EditingEventID  *uuid.UUID                                  `json:"editing_event_id,omitempty"`
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := make(map[domain.ChannelKind]domain.ChannelStatus, len(s.channels))
	for k, v := range s.channels {
		channels[k] = v
	}
	v := View{
		ID:              s.ID,
		State:           s.form.State(),
		Draft:           s.form.Draft(),
		Turns:           append([]domain.ConversationTurn(nil), s.turns...),
		Channels:        channels,
		SaveInFlight:    s.coord.busy(),
		HighlightUpload: s.highlightUpload,
		LastSearch:      append([]domain.PersistedEvent(nil), s.lastSearch...),
		EditingEventID:  s.editing,
	}
	if s.savedEvent != nil {
		id := s.savedEvent.ID
		v.SavedEventID = &id
	}
	return v
}

// appendTurn records one conversation turn. Turns land in the order their
// producing operation completes, which is not necessarily issuance order.
func (s *Session) appendTurn(role domain.Role, content string) {
	s.turns = append(s.turns, domain.ConversationTurn{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
}

// HandleMessage processes one typed user utterance through the text channel
// and returns the assistant's reply. Transient channel errors become
// conversational apologies, never session failures.
func (s *Session) HandleMessage(ctx context.Context, content string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	prior := append([]domain.ConversationTurn(nil), s.turns...)
	s.appendTurn(domain.RoleUser, content)
	snapshot := s.form.Draft()
	categories := s.categories
	s.mu.Unlock()

	events, err := s.store.ListUpcoming(ctx, s.userID, s.eventsContext)
	if err != nil {
		s.logger.Warn("events context unavailable", "error", err)
		events = nil
	}

	result, err := s.text.Submit(ctx, content, prior, categories, snapshot, events)
	if err != nil {
		reply := "Mi dispiace, il servizio non è al momento disponibile. Riprova tra poco."
		s.mu.Lock()
		if !s.closed {
			s.appendTurn(domain.RoleAssistant, reply)
		}
		s.mu.Unlock()
		return reply, nil
	}

	intent := s.interp.Interpret(*result, snapshot)
	reply := result.Text

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	s.applyUpdates(intent)
	if reply == "" {
		reply = defaultReply(intent)
	}
	s.appendTurn(domain.RoleAssistant, reply)
	s.mu.Unlock()

	if followUp := s.handleDirective(ctx, intent.Directive); followUp != "" {
		reply = followUp
	}
	return reply, nil
}

// HandleDocument runs one-shot document analysis and merges the result into
// the draft. Analysis failure is reported conversationally; the draft stays
// untouched.
func (s *Session) HandleDocument(ctx context.Context, data []byte, mimeType string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	s.channels[domain.ChannelDocument] = domain.ChannelConnecting
	snapshot := s.form.Draft()
	s.mu.Unlock()

	analysis, err := s.document.Analyze(ctx, data, mimeType)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	s.channels[domain.ChannelDocument] = domain.ChannelIdle

	if err != nil {
		reply := "Non sono riuscito ad analizzare il documento. Puoi riprovare o inserire i dati manualmente."
		s.appendTurn(domain.RoleAssistant, reply)
		return reply, nil
	}

	intent := s.interp.FromAnalysis(*analysis, snapshot)
	s.applyUpdates(intent)

	reply := documentReply(*analysis)
	s.appendTurn(domain.RoleAssistant, reply)
	return reply, nil
}

// applyUpdates pushes the intent's field updates through the form. Must be
// called with the mutex held.
func (s *Session) applyUpdates(intent interpreter.Intent) {
	for _, w := range intent.Warnings {
		s.logger.Warn("interpreter warning", "session_id", s.ID, "warning", w)
	}
	if intent.Updates.Empty() {
		return
	}
	for _, w := range s.form.Apply(intent.Updates) {
		s.logger.Warn("form warning", "session_id", s.ID, "warning", w)
	}
}

// handleDirective executes the intent's directive, if any. Runs without the
// session mutex; each branch re-acquires it around mutations.
func (s *Session) handleDirective(ctx context.Context, d domain.Directive) string {
	switch d.Kind {
	case domain.DirectiveSave:
		return s.saveFromDirective(ctx)
	case domain.DirectiveHighlightUpload:
		s.mu.Lock()
		s.highlightUpload = true
		s.mu.Unlock()
		return ""
	case domain.DirectiveSearch:
		return s.runSearch(ctx, d)
	case domain.DirectiveOpenRecord:
		return s.openRecord(ctx, d.RecordRef)
	default:
		return ""
	}
}

func (s *Session) saveFromDirective(ctx context.Context) string {
	_, err := s.RequestSave(ctx)
	if err == nil {
		return ""
	}
	// RequestSave already appended the explanatory turn.
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == domain.RoleAssistant {
		return s.turns[n-1].Content
	}
	return ""
}

func (s *Session) runSearch(ctx context.Context, d domain.Directive) string {
	hits, err := s.store.SearchEvents(ctx, s.userID, d.Query, d.TopK*4)
	if err != nil {
		s.logger.Warn("search failed", "session_id", s.ID, "error", err)
		return ""
	}
	ranked := search.Rank(hits, d.Query, time.Now(), d.TopK)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ""
	}
	s.lastSearch = ranked

	if len(ranked) == 0 {
		reply := fmt.Sprintf("Non ho trovato eventi per %q.", d.Query)
		s.appendTurn(domain.RoleAssistant, reply)
		return reply
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Ho trovato %d eventi:\n", len(ranked))
	for i, ev := range ranked {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, ev.Title, ev.Start.Format("2006-01-02 15:04"))
	}
	reply := strings.TrimRight(b.String(), "\n")
	s.appendTurn(domain.RoleAssistant, reply)
	return reply
}

// openRecord resolves a reference (event id, or 1-based index into the last
// search results) and reseeds the form from the stored event.
func (s *Session) openRecord(ctx context.Context, ref string) string {
	s.mu.Lock()
	id, ok := s.resolveRecordRef(ref)
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("unresolvable record reference", "session_id", s.ID, "ref", ref)
		return ""
	}

	ev, err := s.store.GetEvent(ctx, s.userID, id)
	if err != nil {
		s.logger.Warn("open record failed", "session_id", s.ID, "event_id", id, "error", err)
		s.mu.Lock()
		defer s.mu.Unlock()
		reply := "Non sono riuscito ad aprire quell'evento."
		s.appendTurn(domain.RoleAssistant, reply)
		return reply
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ""
	}
	s.form = form.NewFromEvent(ev)
	evID := ev.ID
	s.editing = &evID
	reply := fmt.Sprintf("Ho aperto %q. Cosa vuoi modificare?", ev.Title)
	s.appendTurn(domain.RoleAssistant, reply)
	return reply
}

func (s *Session) resolveRecordRef(ref string) (uuid.UUID, bool) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil {
		if n >= 1 && n <= len(s.lastSearch) {
			return s.lastSearch[n-1].ID, true
		}
	}
	return uuid.Nil, false
}

func defaultReply(intent interpreter.Intent) string {
	if !intent.Updates.Empty() {
		return "Ho aggiornato i dettagli dell'evento."
	}
	return "Ok."
}

func documentReply(a domain.DocumentAnalysis) string {
	var parts []string
	if a.Reason != "" {
		parts = append(parts, a.Reason)
	} else if a.DocumentType != "" {
		parts = append(parts, a.DocumentType)
	}
	if a.Amount != nil {
		parts = append(parts, fmt.Sprintf("importo €%.2f", *a.Amount))
	}
	if a.DueDate != "" {
		parts = append(parts, "scadenza "+a.DueDate)
	}
	if len(parts) == 0 {
		return "Documento analizzato, ma non ho trovato dati utili."
	}
	return "Ho analizzato il documento: " + strings.Join(parts, ", ") + ". Controlla i campi e completa quelli mancanti."
}
