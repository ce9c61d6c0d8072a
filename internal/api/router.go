// Package api exposes the orchestrator over HTTP and websockets. All HTTP
// responses are JSON, errors included.
package api

import (
	"log/slog"
	"net/http"

	"github.com/codecrate/codecrate/internal/channel"
	"github.com/codecrate/codecrate/internal/config"
)

type Server struct {
	cfg       *config.Config
	manager   SessionService
	terminals *channel.TerminalHub
	execs     *channel.ExecHub
	logger    *slog.Logger
	mux       *http.ServeMux
}

func NewServer(cfg *config.Config, mgr SessionService, terminals *channel.TerminalHub, execs *channel.ExecHub, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		manager:   mgr,
		terminals: terminals,
		execs:     execs,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.recoverMiddleware(s.authMiddleware(s.identityMiddleware(s.requestIDMiddleware(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /v1/sessions/{id}/status", s.handleStatus)
	s.mux.HandleFunc("POST /v1/sessions/{id}/container", s.handleEnsureContainer)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleTerminate)

	s.mux.HandleFunc("POST /v1/sessions/{id}/files/tree", s.handleTree)
	s.mux.HandleFunc("POST /v1/sessions/{id}/files/read", s.handleRead)
	s.mux.HandleFunc("POST /v1/sessions/{id}/files/write", s.handleWrite)
	s.mux.HandleFunc("POST /v1/sessions/{id}/files/move", s.handleMove)

	s.mux.HandleFunc("GET /v1/sessions/{id}/terminal", s.handleTerminal)
	s.mux.HandleFunc("GET /v1/sessions/{id}/exec", s.handleExecChannel)

	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
