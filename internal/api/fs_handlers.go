package api

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/codecrate/codecrate/protocol"
)

type treeRequest struct {
	MaxEntries int `json:"max_entries"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	var req treeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if req.MaxEntries < 0 {
		writeValidationError(w, "max_entries must not be negative")
		return
	}

	result, err := s.manager.Tree(r.Context(), id, req.MaxEntries)
	if err != nil {
		s.logger.Error("fs tree", "session_id", id, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"root":      result.Root,
		"truncated": result.Truncated,
	})
}

type readRequest struct {
	Path     string `json:"path"`
	MaxBytes int    `json:"max_bytes"`
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	var req readRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if err := validateWorkspacePath(req.Path); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if req.MaxBytes < 0 {
		writeValidationError(w, "max_bytes must not be negative")
		return
	}
	if req.MaxBytes == 0 {
		req.MaxBytes = protocol.DefaultMaxReadBytes
	}

	s.logger.Debug("fs read", "session_id", id, "path", req.Path, "max_bytes", req.MaxBytes)
	content, truncated, err := s.manager.ReadFile(r.Context(), id, req.Path, req.MaxBytes)
	if err != nil {
		s.logger.Error("fs read", "session_id", id, "path", req.Path, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"path":           req.Path,
		"content_base64": base64.StdEncoding.EncodeToString(content),
		"truncated":      truncated,
	})
}

type writeRequest struct {
	Path          string `json:"path"`
	ContentBase64 string `json:"content_base64"`
	Text          string `json:"text"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	var req writeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if err := validateWorkspacePath(req.Path); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	content, err := extractContent(req)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	s.logger.Debug("fs write", "session_id", id, "path", req.Path, "content_len", len(content))
	if err := s.manager.WriteFile(r.Context(), id, req.Path, content); err != nil {
		s.logger.Error("fs write", "session_id", id, "path", req.Path, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type moveRequest struct {
	Path         string `json:"path"`
	TargetParent string `json:"target_parent"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validateSessionID(id); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	var req moveRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeValidationError(w, "invalid json: "+err.Error())
		return
	}
	if err := validateWorkspacePath(req.Path); err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if req.TargetParent != "" {
		if err := validateWorkspacePath(req.TargetParent); err != nil {
			writeValidationError(w, err.Error())
			return
		}
	}

	s.logger.Debug("fs move", "session_id", id, "path", req.Path, "target_parent", req.TargetParent)
	if err := s.manager.Move(r.Context(), id, req.Path, req.TargetParent); err != nil {
		s.logger.Error("fs move", "session_id", id, "path", req.Path, "error", err)
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// extractContent returns the decoded write payload. Callers must set either
// text or content_base64, not both.
func extractContent(req writeRequest) ([]byte, error) {
	if req.Text != "" && req.ContentBase64 != "" {
		return nil, fmt.Errorf("provide either 'text' or 'content_base64', not both")
	}
	if req.ContentBase64 != "" {
		content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 content: %w", err)
		}
		return content, nil
	}
	return []byte(req.Text), nil
}
