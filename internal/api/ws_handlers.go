package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/codecrate/codecrate/internal/session"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The daemon sits behind the platform gateway which enforces
		// origin policy.
		return true
	},
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if err := s.readyGate(w, id); err != nil {
		return
	}

	cols := parseDimension(r, "cols", 80)
	rows := parseDimension(r, "rows", 24)

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("terminal upgrade", "session_id", id, "error", err)
		return
	}

	if err := s.terminals.Attach(r.Context(), id, ws, cols, rows); err != nil {
		s.logger.Error("terminal attach", "session_id", id, "error", err)
	}
	_ = ws.Close()
}

func (s *Server) handleExecChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if err := s.readyGate(w, id); err != nil {
		return
	}

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("exec upgrade", "session_id", id, "error", err)
		return
	}

	if err := s.execs.Serve(r.Context(), id, ws); err != nil {
		s.logger.Error("exec channel", "session_id", id, "error", err)
	}
	_ = ws.Close()
}

// readyGate rejects the request with a JSON error before the websocket
// upgrade when the session is missing or has no running container yet.
func (s *Server) readyGate(w http.ResponseWriter, id string) error {
	view, err := s.manager.Status(id)
	if err != nil {
		writeAPIError(w, err)
		return err
	}
	if !view.Ready {
		writeAPIError(w, session.ErrNotReady)
		return session.ErrNotReady
	}
	return nil
}

func parseDimension(r *http.Request, name string, fallback uint) uint {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return fallback
	}
	return uint(n)
}
