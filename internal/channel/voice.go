package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smartlife/capture/internal/domain"
)

// EventKind tags one voice stream event.
type EventKind string

const (
	EventTranscript EventKind = "transcript"
	EventAudio      EventKind = "audio"
	EventIntent     EventKind = "intent"
	EventError      EventKind = "error"
	EventClosed     EventKind = "closed"
)

// TranscriptDelta is an incremental transcript update. Replace amends the
// last emitted provisional transcript in place instead of appending.
type TranscriptDelta struct {
	Text    string
	Final   bool
	Replace bool
}

// Event is the tagged union yielded by a voice stream. Exactly one payload
// field is meaningful per kind.
type Event struct {
	Kind       EventKind
	Transcript TranscriptDelta
	Audio      []byte
	Result     *domain.ExtractionResult
	Err        error
}

// Voice maintains a long-lived bidirectional session with the remote voice
// collaborator. Each Open establishes one session scoped to one capability
// token.
type Voice struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewVoice(url string, logger *slog.Logger) *Voice {
	return &Voice{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (v *Voice) Kind() domain.ChannelKind {
	return domain.ChannelVoice
}

// wire messages exchanged with the remote voice service.
type wireMessage struct {
	Type    string                `json:"type"`
	Text    string                `json:"text,omitempty"`
	Final   bool                  `json:"final,omitempty"`
	Replace bool                  `json:"replace,omitempty"`
	Data    string                `json:"data,omitempty"` // base64 audio
	Calls   []domain.FunctionCall `json:"calls,omitempty"`
	Message string                `json:"message,omitempty"`
	Turns   []wireTurn            `json:"turns,omitempty"`
}

type wireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Open dials the remote session, primes it with the prior turns, and starts
// the single reader loop. The returned stream yields tagged events until
// closed.
func (v *Voice) Open(ctx context.Context, token string, prior []domain.ConversationTurn) (*Stream, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := v.dialer.DialContext(ctx, v.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial voice stream: %w", err)
	}

	turns := make([]wireTurn, 0, len(prior))
	for _, t := range prior {
		turns = append(turns, wireTurn{Role: string(t.Role), Content: t.Content})
	}
	if err := conn.WriteJSON(wireMessage{Type: "session.open", Turns: turns}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open voice session: %w", err)
	}

	s := &Stream{
		conn:   conn,
		events: make(chan Event, 16),
		closed: make(chan struct{}),
		logger: v.logger,
	}
	go s.readLoop()
	return s, nil
}

// Stream is one open bidirectional voice session.
type Stream struct {
	conn   *websocket.Conn
	events chan Event
	logger *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
	writeMu   sync.Mutex
}

// Events yields the tagged event stream. The channel itself is closed after
// the session ends; EventClosed is the last event delivered before that.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Send pushes one raw audio frame to the remote service.
func (s *Stream) Send(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.closed:
		return fmt.Errorf("voice stream closed")
	default:
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("send audio frame: %w", err)
	}
	return nil
}

// Close terminates the remote session and releases the connection. Idempotent
// and safe to call from an error state; every exit path must go through here
// so the device handle is never leaked.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}

// readLoop is the single consumer of the socket. It converts every inbound
// message into a tagged event and guarantees the events channel is closed
// exactly once, after a final EventClosed.
func (s *Stream) readLoop() {
	defer func() {
		select {
		case s.events <- Event{Kind: EventClosed}:
		default:
		}
		close(s.events)
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
				// explicit Close, not a fault
			default:
				s.emit(Event{Kind: EventError, Err: fmt.Errorf("voice stream read: %w", err)})
				s.Close()
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			s.emit(Event{Kind: EventAudio, Audio: data})
			continue
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("dropping malformed voice message", "error", err)
			continue
		}

		switch msg.Type {
		case "transcript":
			s.emit(Event{Kind: EventTranscript, Transcript: TranscriptDelta{
				Text:    msg.Text,
				Final:   msg.Final,
				Replace: msg.Replace,
			}})
		case "audio":
			frame, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				s.logger.Warn("dropping undecodable audio frame", "error", err)
				continue
			}
			s.emit(Event{Kind: EventAudio, Audio: frame})
		case "intent":
			s.emit(Event{Kind: EventIntent, Result: &domain.ExtractionResult{
				Text:  msg.Text,
				Calls: msg.Calls,
			}})
		case "error":
			s.emit(Event{Kind: EventError, Err: fmt.Errorf("voice service: %s", msg.Message)})
		default:
			s.logger.Debug("ignoring unknown voice message", "type", msg.Type)
		}
	}
}

func (s *Stream) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
		// consumer gone; drop rather than block the reader
	}
}
