package session

import (
	"github.com/smartlife/capture/internal/form"
)

// Close tears the session down: the voice stream is released before the
// session is considered closed, the draft is discarded, and the transcript
// is cleared. Closing while a save is in flight is refused; a save is not
// cancellable once initiated.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.form.State() == form.StateSaving || s.coord.busy() {
		s.mu.Unlock()
		return ErrCloseWhileSaving
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.logger.Info("session closed", "session_id", s.ID)
	if s.onClosed != nil {
		s.onClosed(s.ID)
	}
	return nil
}

// closeAfterSave closes the session once the save confirmation has been on
// screen for the configured delay.
func (s *Session) closeAfterSave() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.logger.Info("session closed after save", "session_id", s.ID)
	if s.onClosed != nil {
		s.onClosed(s.ID)
	}
}

// teardownLocked marks the session closed and releases the voice stream.
// Must be called with the mutex held; the closed flag is set before the
// stream close so any late completion is discarded, never applied.
func (s *Session) teardownLocked() {
	s.closed = true
	stream := s.voiceStream
	s.voiceStream = nil
	s.voiceAudio = nil
	if s.form.State() != form.StateSaved {
		s.form.Discard()
	}
	s.turns = nil

	if stream != nil {
		// The stream close does not need the mutex; do it inline so the
		// microphone is released before Close returns.
		s.mu.Unlock()
		stream.Close()
		s.mu.Lock()
	}
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
