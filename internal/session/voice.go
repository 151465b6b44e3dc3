package session

import (
	"context"
	"fmt"

	"github.com/smartlife/capture/internal/channel"
	"github.com/smartlife/capture/internal/domain"
)

// StartVoice opens the bidirectional voice stream. onAudio receives
// synthesized playback frames as they arrive. The channel transitions
// idle → connecting → active; a transport fault sends it error → idle with a
// user-visible apology turn.
func (s *Session) StartVoice(ctx context.Context, token string, onAudio func([]byte)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.voiceStream != nil {
		s.mu.Unlock()
		return fmt.Errorf("voice channel already active")
	}
	s.channels[domain.ChannelVoice] = domain.ChannelConnecting
	prior := append([]domain.ConversationTurn(nil), s.turns...)
	s.mu.Unlock()

	stream, err := s.openVoice(ctx, token, prior)
	if err != nil {
		s.mu.Lock()
		s.channels[domain.ChannelVoice] = domain.ChannelIdle
		if !s.closed {
			s.appendTurn(domain.RoleAssistant, "Non riesco ad attivare la voce al momento. Riprova.")
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.closed {
		// Close raced the open; release the stream before anything leaks.
		s.mu.Unlock()
		stream.Close()
		return ErrSessionClosed
	}
	s.voiceStream = stream
	s.voiceAudio = onAudio
	s.channels[domain.ChannelVoice] = domain.ChannelActive
	s.provisionalIdx = -1
	s.mu.Unlock()

	go s.consumeVoice(stream)
	return nil
}

// SendAudio pushes one microphone frame to the remote service.
func (s *Session) SendAudio(frame []byte) error {
	s.mu.Lock()
	stream := s.voiceStream
	s.mu.Unlock()
	if stream == nil {
		return fmt.Errorf("voice channel not active")
	}
	return stream.Send(frame)
}

// StopVoice closes the voice stream and returns the channel to idle.
// Idempotent; safe from any state.
func (s *Session) StopVoice() {
	s.mu.Lock()
	stream := s.voiceStream
	s.voiceStream = nil
	s.voiceAudio = nil
	s.channels[domain.ChannelVoice] = domain.ChannelIdle
	s.mu.Unlock()
	if stream != nil {
		stream.Close()
	}
}

// consumeVoice is the single loop draining one voice stream. Every mutation
// goes through the session mutex with a closed check, so no event whose
// completion arrives after close is ever applied.
func (s *Session) consumeVoice(stream VoiceStream) {
	for ev := range stream.Events() {
		switch ev.Kind {
		case channel.EventTranscript:
			s.applyTranscript(ev.Transcript)
		case channel.EventAudio:
			s.mu.Lock()
			sink := s.voiceAudio
			closed := s.closed
			if !closed && sink != nil {
				s.channels[domain.ChannelVoice] = domain.ChannelSpeaking
			}
			s.mu.Unlock()
			if !closed && sink != nil {
				sink(ev.Audio)
			}
		case channel.EventIntent:
			s.applyVoiceIntent(ev.Result)
		case channel.EventError:
			s.mu.Lock()
			if !s.closed {
				s.channels[domain.ChannelVoice] = domain.ChannelError
				s.appendTurn(domain.RoleAssistant, "Mi dispiace, ho perso la connessione audio. Riprova con la voce o scrivi qui.")
			}
			s.mu.Unlock()
			s.logger.Warn("voice channel error", "session_id", s.ID, "error", ev.Err)
		case channel.EventClosed:
			s.mu.Lock()
			if s.voiceStream == stream {
				s.voiceStream = nil
				s.voiceAudio = nil
			}
			s.channels[domain.ChannelVoice] = domain.ChannelIdle
			s.mu.Unlock()
		}
	}
}

// applyTranscript appends or amends the provisional user transcript turn.
// Provisional transcripts are amended in place until marked final.
func (s *Session) applyTranscript(delta channel.TranscriptDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.channels[domain.ChannelVoice] = domain.ChannelListening

	if delta.Replace && s.provisionalIdx >= 0 && s.provisionalIdx < len(s.turns) {
		s.turns[s.provisionalIdx].Content = delta.Text
	} else {
		s.appendTurn(domain.RoleUser, delta.Text)
		s.provisionalIdx = len(s.turns) - 1
	}
	if delta.Final {
		s.provisionalIdx = -1
		s.channels[domain.ChannelVoice] = domain.ChannelActive
	}
}

// applyVoiceIntent treats a structured voice intent exactly like a text one.
func (s *Session) applyVoiceIntent(result *domain.ExtractionResult) {
	if result == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	snapshot := s.form.Draft()
	intent := s.interp.Interpret(*result, snapshot)
	s.applyUpdates(intent)
	if result.Text != "" {
		s.appendTurn(domain.RoleAssistant, result.Text)
	}
	directive := intent.Directive
	s.mu.Unlock()

	if directive.Kind != domain.DirectiveNone {
		s.handleDirective(context.Background(), directive)
	}
}
