package testutil

import (
	"time"

	"github.com/codecrate/codecrate/internal/config"
	"github.com/codecrate/codecrate/internal/registry"
)

// TestConfig returns a Config with sensible test defaults.
func TestConfig() *config.Config {
	return &config.Config{
		Listen:         "127.0.0.1:0",
		APIKey:         "test-api-key",
		DBPath:         ":memory:",
		Image:          "codecrate-sandbox:test",
		TemplateVolume: "codecrate-template-test",
		WorkspacePath:  "/workspace",
		HelperImage:    "busybox:stable",
		Limits: config.Limits{
			CPULimit:    1.0,
			MemLimitMB:  512,
			PidsLimit:   256,
			NetworkMode: "none",
		},
		Readiness: config.Readiness{
			TimeoutSeconds: 2,
			PollIntervalMs: 50,
		},
		IdleReapSeconds:     1800,
		ReapIntervalSeconds: 30,
		MaxTreeEntries:      2000,
		MaxExecTimeoutMs:    120000,
	}
}

// SessionFixture returns a populated session value for registry tests.
// Registering it resets the state to pending; tests drive transitions
// explicitly from there.
func SessionFixture(id string) registry.Session {
	now := time.Now().UTC()
	return registry.Session{
		ID:           id,
		UserID:       "user-1",
		Image:        "codecrate-sandbox:test",
		VolumeName:   "codecrate-ws-" + id,
		CreatedAt:    now,
		LastActivity: now,
	}
}
