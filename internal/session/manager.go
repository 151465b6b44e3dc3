package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartlife/capture/internal/channel"
	"github.com/smartlife/capture/internal/domain"
	"github.com/smartlife/capture/internal/form"
	"github.com/smartlife/capture/internal/interpreter"
)

// LLM is the language-understanding collaborator shared by the text and
// document channels.
type LLM interface {
	channel.ChatClient
	channel.Analyzer
}

// Config wires a Manager's collaborators.
type Config struct {
	Store         EventStore
	LLM           LLM
	OpenVoice     func(ctx context.Context, token string, prior []domain.ConversationTurn) (VoiceStream, error)
	Bus           Notifier // optional
	Logger        *slog.Logger
	CloseDelay    time.Duration
	EventsContext int
}

const voiceTokenTTL = time.Minute

type voiceGrant struct {
	sessionID uuid.UUID
	expires   time.Time
}

// Manager owns the set of open capture sessions and mints the per-session
// capability tokens the voice channel requires.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	grants   map[string]voiceGrant
}

func NewManager(cfg Config) *Manager {
	if cfg.CloseDelay <= 0 {
		cfg.CloseDelay = 2 * time.Second
	}
	if cfg.EventsContext <= 0 {
		cfg.EventsContext = 20
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[uuid.UUID]*Session),
		grants:   make(map[string]voiceGrant),
	}
}

// Open starts a capture session for a user. When seedEventID is set the form
// is pre-seeded from that event for editing; otherwise it starts empty.
func (m *Manager) Open(ctx context.Context, userID uuid.UUID, seedEventID *uuid.UUID) (*Session, error) {
	categories, err := m.cfg.Store.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	s := &Session{
		ID:     uuid.New(),
		userID: userID,
		form:   form.New(),
		channels: map[domain.ChannelKind]domain.ChannelStatus{
			domain.ChannelText:     domain.ChannelIdle,
			domain.ChannelVoice:    domain.ChannelIdle,
			domain.ChannelDocument: domain.ChannelIdle,
		},
		categories:     categories,
		provisionalIdx: -1,
		store:          m.cfg.Store,
		text:           channel.NewText(m.cfg.LLM, m.cfg.Logger),
		document:       channel.NewDocument(m.cfg.LLM, m.cfg.Logger),
		openVoice:      m.cfg.OpenVoice,
		interp:         interpreter.New(m.cfg.Logger),
		bus:            m.cfg.Bus,
		logger:         m.cfg.Logger,
		closeDelay:     m.cfg.CloseDelay,
		eventsContext:  m.cfg.EventsContext,
		onClosed:       m.remove,
	}

	if seedEventID != nil {
		ev, err := m.cfg.Store.GetEvent(ctx, userID, *seedEventID)
		if err != nil {
			return nil, fmt.Errorf("load event %s: %w", seedEventID, err)
		}
		s.form = form.NewFromEvent(ev)
		id := ev.ID
		s.editing = &id
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.cfg.Logger.Info("capture session opened", "session_id", s.ID, "user_id", userID, "editing", seedEventID != nil)
	return s, nil
}

func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) remove(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	for token, g := range m.grants {
		if g.sessionID == id {
			delete(m.grants, token)
		}
	}
	m.mu.Unlock()
}

// MintVoiceToken issues a short-lived capability token scoped to one session.
// The voice channel cannot be opened without one.
func (m *Manager) MintVoiceToken(sessionID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return "", fmt.Errorf("unknown session %s", sessionID)
	}
	token := uuid.NewString()
	m.grants[token] = voiceGrant{sessionID: sessionID, expires: time.Now().Add(voiceTokenTTL)}
	return token, nil
}

// RedeemVoiceToken exchanges a token for its session, consuming it. Expired
// or unknown tokens fail.
func (m *Manager) RedeemVoiceToken(token string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[token]
	if !ok {
		return nil, false
	}
	delete(m.grants, token)
	if time.Now().After(g.expires) {
		return nil, false
	}
	s, ok := m.sessions[g.sessionID]
	return s, ok
}
