package api

import (
	"net/http"
)

type statusResponse struct {
	OK        bool    `json:"ok"`
	SessionID string  `json:"session_id"`
	State     string  `json:"state"`
	Ready     bool    `json:"ready"`
	Error     *string `json:"error"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	if userID == "" {
		writeValidationError(w, "X-User-ID header is required")
		return
	}

	view, err := s.manager.Create(r.Context(), userID)
	if err != nil {
		s.logger.Error("create session", "user_id", userID, "error", err)
		writeAPIError(w, err)
		return
	}
	s.logger.Debug("session create accepted", "session_id", view.ID, "user_id", userID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":         true,
		"session_id": view.ID,
		"state":      view.State,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"sessions": s.manager.List(userIDFrom(r.Context())),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	view, err := s.manager.Status(id)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	var errCode *string
	if view.Error != "" {
		errCode = &view.Error
	}
	writeJSON(w, http.StatusOK, statusResponse{
		OK:        true,
		SessionID: view.ID,
		State:     view.State,
		Ready:     view.Ready,
		Error:     errCode,
	})
}

// handleEnsureContainer triggers or confirms container creation for an
// existing session; idempotent by design.
func (s *Server) handleEnsureContainer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	view, err := s.manager.EnsureContainer(r.Context(), id)
	if err != nil {
		s.logger.Error("ensure container", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}

	var errCode *string
	if view.Error != "" {
		errCode = &view.Error
	}
	writeJSON(w, http.StatusOK, statusResponse{
		OK:        true,
		SessionID: view.ID,
		State:     view.State,
		Ready:     view.Ready,
		Error:     errCode,
	})
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	deleteVolume := r.URL.Query().Get("delete_volume") == "true"

	s.logger.Debug("terminate session", "session_id", id, "delete_volume", deleteVolume)

	s.terminals.CloseSession(id)
	s.execs.Cancel(id)

	if err := s.manager.Terminate(r.Context(), id, deleteVolume); err != nil {
		s.logger.Error("terminate", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}
	s.manager.Remove(id)

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
