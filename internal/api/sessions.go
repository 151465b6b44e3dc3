package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/smartlife/capture/internal/form"
	"github.com/smartlife/capture/internal/session"
)

// maxDocumentBytes caps uploaded document size. Gemini inline data tops out
// around 20MB; we stay under it.
const maxDocumentBytes = 15 << 20

type openSessionRequest struct {
	SeedEventID *uuid.UUID `json:"seed_event_id,omitempty"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type replyResponse struct {
	Reply   string       `json:"reply"`
	Session session.View `json:"session"`
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
			return
		}
	}

	sess, err := s.sessions.Open(r.Context(), userIDFrom(r), req.SeedEventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "open session: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// resolveSession loads the addressed session and enforces ownership. A
// session belonging to another user is indistinguishable from a missing one.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, ok := s.sessions.Get(id)
	if !ok || sess.UserID() != userIDFrom(r) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	if err := sess.Close(); err != nil {
		if errors.Is(err, session.ErrCloseWhileSaving) {
			writeError(w, http.StatusConflict, "save in flight, try again shortly")
			return
		}
		writeError(w, http.StatusInternalServerError, "close session: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: %v", err)
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	reply, err := sess.HandleMessage(r.Context(), req.Content)
	if err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			writeError(w, http.StatusGone, "session closed")
			return
		}
		writeError(w, http.StatusInternalServerError, "handle message: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Reply: reply, Session: sess.Snapshot()})
}

func (s *Server) postDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: %v", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: %v", err)
		return
	}
	if len(data) > maxDocumentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "document exceeds %d bytes", maxDocumentBytes)
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	reply, err := sess.HandleDocument(r.Context(), data, mimeType)
	if err != nil {
		if errors.Is(err, session.ErrSessionClosed) {
			writeError(w, http.StatusGone, "session closed")
			return
		}
		writeError(w, http.StatusInternalServerError, "handle document: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, replyResponse{Reply: reply, Session: sess.Snapshot()})
}

func (s *Server) postSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}

	saved, err := sess.RequestSave(r.Context())
	if err != nil {
		var missing *form.MissingFieldsError
		switch {
		case errors.As(err, &missing):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":          "missing required fields",
				"missing_fields": missing.Fields,
			})
		case errors.Is(err, session.ErrSaveInProgress):
			writeError(w, http.StatusConflict, "save already in progress")
		case errors.Is(err, session.ErrSessionClosed):
			writeError(w, http.StatusGone, "session closed")
		default:
			writeError(w, http.StatusBadGateway, "save failed: %v", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) mintVoiceToken(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	token, err := s.sessions.MintVoiceToken(sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "mint voice token: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
