package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "./codecrate.db", cfg.DBPath)
	assert.Equal(t, "codecrate-sandbox:latest", cfg.Image)
	assert.Equal(t, "codecrate-template", cfg.TemplateVolume)
	assert.Equal(t, "/workspace", cfg.WorkspacePath)
	assert.Equal(t, "busybox:stable", cfg.HelperImage)
	assert.Equal(t, 1.0, cfg.Limits.CPULimit)
	assert.Equal(t, 512, cfg.Limits.MemLimitMB)
	assert.Equal(t, 256, cfg.Limits.PidsLimit)
	assert.Equal(t, "none", cfg.Limits.NetworkMode)
	assert.Equal(t, 8, cfg.Readiness.TimeoutSeconds)
	assert.Equal(t, 250, cfg.Readiness.PollIntervalMs)
	assert.Equal(t, 1800, cfg.IdleReapSeconds)
	assert.Equal(t, 30, cfg.ReapIntervalSeconds)
	assert.Equal(t, 2000, cfg.MaxTreeEntries)
	assert.Equal(t, 120000, cfg.MaxExecTimeoutMs)
}

func TestLoadYAML(t *testing.T) {
	yamlContent := `
listen: "0.0.0.0:9090"
api_key: "sk-test"
image: "codecrate-sandbox:v42"
template_volume: "custom-template"
limits:
  cpu_limit: 2.0
  mem_limit_mb: 1024
readiness:
  timeout_seconds: 15
idle_reap_seconds: 600
`
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlContent), 0644))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Listen)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "codecrate-sandbox:v42", cfg.Image)
	assert.Equal(t, "custom-template", cfg.TemplateVolume)
	assert.Equal(t, 2.0, cfg.Limits.CPULimit)
	assert.Equal(t, 1024, cfg.Limits.MemLimitMB)
	assert.Equal(t, 15, cfg.Readiness.TimeoutSeconds)
	assert.Equal(t, 600, cfg.IdleReapSeconds)
	// Untouched keys keep defaults.
	assert.Equal(t, 256, cfg.Limits.PidsLimit)
	assert.Equal(t, 250, cfg.Readiness.PollIntervalMs)
}

func TestLoadYAMLMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("listen: [not a string"), 0644))

	_, err := Load(yamlPath)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CODECRATE_LISTEN", "0.0.0.0:7070")
	t.Setenv("CODECRATE_IMAGE", "codecrate-sandbox:env")
	t.Setenv("CODECRATE_MEM_LIMIT_MB", "2048")
	t.Setenv("CODECRATE_CPU_LIMIT", "1.5")
	t.Setenv("CODECRATE_READY_TIMEOUT_SECONDS", "20")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7070", cfg.Listen)
	assert.Equal(t, "codecrate-sandbox:env", cfg.Image)
	assert.Equal(t, 2048, cfg.Limits.MemLimitMB)
	assert.Equal(t, 1.5, cfg.Limits.CPULimit)
	assert.Equal(t, 20, cfg.Readiness.TimeoutSeconds)
}

func TestEnvOverridesIgnoreMalformed(t *testing.T) {
	t.Setenv("CODECRATE_MEM_LIMIT_MB", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Limits.MemLimitMB)
}
