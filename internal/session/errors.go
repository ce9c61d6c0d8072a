package session

import "errors"

var (
	// ErrNotReady is returned for any operation attempted against a
	// session before its readiness probe has succeeded.
	ErrNotReady = errors.New("session not ready")

	// ErrInvalidMove is returned when a move would place a folder inside
	// its own descendant. Distinct from I/O failure so callers can tell
	// "invalid request" from "engine broke".
	ErrInvalidMove = errors.New("invalid move target")

	// ErrInvalidPath is returned for paths that escape the workspace root.
	ErrInvalidPath = errors.New("invalid workspace path")
)
