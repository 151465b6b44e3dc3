// Package api exposes the capture engine over HTTP: session lifecycle,
// message and document submission, save, and the voice websocket. Identity
// arrives as an X-User-ID header set by the gateway; this service performs no
// authentication of its own.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/smartlife/capture/internal/session"
)

type Server struct {
	router   *chi.Mux
	port     int
	sessions *session.Manager
	logger   *slog.Logger
}

func NewServer(port int, sessions *session.Manager, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		sessions: sessions,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/capture/status", s.status)

	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(userIDMiddleware)
		r.Post("/", s.openSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.closeSession)
			r.Post("/messages", s.postMessage)
			r.Post("/documents", s.postDocument)
			r.Post("/save", s.postSave)
			r.Post("/voice-token", s.mintVoiceToken)
		})
	})

	// The websocket upgrade cannot carry custom headers from a browser, so
	// the voice endpoint authenticates by capability token alone.
	router.Get("/api/v1/sessions/{sessionID}/voice", s.voiceSocket)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "capture",
		"status":  "ok",
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}

type ctxKey string

const userIDKey ctxKey = "user_id"

// userIDMiddleware extracts the caller identity set by the gateway. Requests
// without a valid X-User-ID never reach a handler.
func userIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid X-User-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return id
}
