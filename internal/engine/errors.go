package engine

import (
	"errors"
	"strings"
)

var (
	// ErrImageUnavailable means the configured image does not exist in the
	// registry or cannot be accessed. Non-retryable.
	ErrImageUnavailable = errors.New("image unavailable")

	// ErrReadyTimeout means the container started but never announced
	// readiness within the probe deadline.
	ErrReadyTimeout = errors.New("readiness probe timed out")

	// ErrIsDirectory means a file read was attempted on a directory path.
	ErrIsDirectory = errors.New("path is a directory")
)

// isImageUnavailable classifies a pull failure as permanent. The Docker SDK
// surfaces registry responses as flat error strings, so this is a substring
// check over the known "no such image" shapes.
func isImageUnavailable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, marker := range []string{
		"not found",
		"manifest unknown",
		"repository does not exist",
		"pull access denied",
		"unauthorized",
		"invalid reference format",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
