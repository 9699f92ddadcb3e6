// Package api exposes the relay's HTTP surface: the websocket endpoint,
// a health probe, and read access to the envelope log.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"classboard/internal/relay"
	"classboard/pkg/interfaces"
)

// Server wires the relay components into an http.Handler.
type Server struct {
	registry  *relay.Registry
	store     interfaces.EnvelopeStore
	wsHandler *relay.Handler
	log       zerolog.Logger
	router    chi.Router
}

// NewServer builds the route table. store may be nil when the relay runs
// without an envelope log; the history endpoint then reports 503.
func NewServer(registry *relay.Registry, store interfaces.EnvelopeStore, wsHandler *relay.Handler, log zerolog.Logger) *Server {
	s := &Server{
		registry:  registry,
		store:     store,
		wsHandler: wsHandler,
		log:       log.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", wsHandler.HandleWS)
	r.Get("/api/classrooms/{classroomID}/tasks/{taskID}/history", s.handleTaskHistory)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.Stats()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": stats["connections"],
		"classrooms":  stats["classrooms"],
	})
}

func (s *Server) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "envelope log is disabled")
		return
	}

	classroomID := chi.URLParam(r, "classroomID")
	taskID := chi.URLParam(r, "taskID")
	userID, err := strconv.Atoi(r.URL.Query().Get("user_id"))
	if err != nil || userID <= 0 {
		s.writeError(w, http.StatusBadRequest, "user_id must be a positive integer")
		return
	}

	records, err := s.store.TaskHistory(r.Context(), classroomID, taskID, userID)
	if err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("task history query failed")
		s.writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if records == nil {
		// Serve an empty list, not null.
		s.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
