package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSessionID(t *testing.T) {
	valid := []string{"abc123def456", "a1b2", "session-with-hyphens", "ABCD"}
	for _, id := range valid {
		assert.NoError(t, validateSessionID(id), "id %q should be valid", id)
	}

	invalid := []string{
		"",
		"abc",               // too short
		"-leading-hyphen",   // must start alphanumeric
		"has spaces here",   // whitespace
		"has/slash",         // path characters
		"under_score_chars", // underscores
	}
	for _, id := range invalid {
		assert.Error(t, validateSessionID(id), "id %q should be invalid", id)
	}
}

func TestValidateWorkspacePath(t *testing.T) {
	assert.NoError(t, validateWorkspacePath("/src/main.py"))
	assert.NoError(t, validateWorkspacePath("relative/file.txt"))
	assert.NoError(t, validateWorkspacePath("/"))

	assert.Error(t, validateWorkspacePath(""))
	assert.Error(t, validateWorkspacePath("../escape"))
	assert.Error(t, validateWorkspacePath("/src/../../etc/passwd"))
	assert.Error(t, validateWorkspacePath("file\x00name"))
}
