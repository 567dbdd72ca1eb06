package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fitcoach/pkg/logx"
	"fitcoach/pkg/orchestrator"
	"fitcoach/pkg/persistence"
)

// Server is the thin HTTP adapter over the orchestrator. All policy lives in
// the core; this layer only decodes, dispatches, and encodes.
type Server struct {
	orch   *orchestrator.Orchestrator
	store  *persistence.Store
	logger *logx.Logger
}

// NewServer wires the HTTP surface.
func NewServer(orch *orchestrator.Orchestrator, store *persistence.Store) *Server {
	return &Server{
		orch:   orch,
		store:  store,
		logger: logx.NewLogger("http"),
	}
}

// Routes builds the request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/turn", s.handleTurn)
	mux.HandleFunc("POST /v1/users/{user}/provision", s.handleProvision)
	mux.HandleFunc("GET /v1/users/{user}/progress", s.handleProgress)
	mux.HandleFunc("DELETE /v1/sessions/{session}", s.handleSessionEnd)
	mux.HandleFunc("GET /v1/admin/logs", s.handleLogs)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Message == "" || req.Mode == "" {
		s.writeError(w, http.StatusBadRequest, "user_id, message, and mode are required")
		return
	}

	result, err := s.orch.HandleTurn(r.Context(), req)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown user")
			return
		}
		s.logger.Error("turn failed for %s: %v", req.UserID, err)
		s.writeError(w, http.StatusInternalServerError, "turn handling failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	if err := s.store.Provision(userID); err != nil {
		s.logger.Error("provision failed for %s: %v", userID, err)
		s.writeError(w, http.StatusInternalServerError, "provisioning failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"user_id": userID})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	view, err := s.store.ProgressViewFor(userID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown user")
			return
		}
		s.logger.Error("progress lookup failed for %s: %v", userID, err)
		s.writeError(w, http.StatusInternalServerError, "progress lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// handleSessionEnd drops a closed voice session's memoized routing state.
func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	s.orch.EndSession(r.PathValue("session"))
	w.WriteHeader(http.StatusNoContent)
}

// handleLogs serves the recent in-memory log entries, optionally filtered by
// the component query parameter.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, logx.RecentEntries(r.URL.Query().Get("component")))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
