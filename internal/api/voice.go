package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin is the gateway's concern; tokens are single-use and
	// minted seconds before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// voiceSocket bridges the client's microphone to the session's voice channel.
// Binary frames from the client are raw audio in; binary frames to the client
// are synthesized audio out. The upgrade requires a single-use token from
// POST /voice-token.
func (s *Server) voiceSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	sess, ok := s.sessions.RedeemVoiceToken(token)
	if !ok || sess.ID != sessionID {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("voice upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	// Playback frames arrive from the session's consumer goroutine while the
	// read loop below may be writing control frames; gorilla allows one
	// writer at a time.
	var writeMu sync.Mutex
	onAudio := func(frame []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			s.logger.Debug("voice playback write failed", "session_id", sessionID, "error", err)
		}
	}

	if err := sess.StartVoice(r.Context(), token, onAudio); err != nil {
		s.logger.Warn("voice start failed", "session_id", sessionID, "error", err)
		writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "voice unavailable"))
		writeMu.Unlock()
		conn.Close()
		return
	}

	defer func() {
		sess.StopVoice()
		conn.Close()
	}()

	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if err := sess.SendAudio(frame); err != nil {
			s.logger.Debug("voice uplink failed", "session_id", sessionID, "error", err)
			return
		}
	}
}
