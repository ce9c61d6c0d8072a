package api

import (
	"fmt"
	"regexp"
	"strings"
)

// sessionIDPattern matches the ids this daemon generates plus reasonable
// caller-supplied ones: hex/alnum with hyphens.
var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{3,63}$`)

func validateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session id: %s", id)
	}
	return nil
}

// validateWorkspacePath rejects paths that are empty or attempt to climb
// out of the workspace before they reach the session layer.
func validateWorkspacePath(p string) error {
	if p == "" {
		return fmt.Errorf("path is required")
	}
	if strings.Contains(p, "..") {
		return fmt.Errorf("path must not contain '..': %s", p)
	}
	if strings.ContainsRune(p, '\x00') {
		return fmt.Errorf("path contains NUL byte")
	}
	return nil
}
