package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Limits are the per-container resource ceilings.
type Limits struct {
	CPULimit    float64 `yaml:"cpu_limit"`
	MemLimitMB  int     `yaml:"mem_limit_mb"`
	PidsLimit   int     `yaml:"pids_limit"`
	NetworkMode string  `yaml:"network_mode"`
}

// Readiness controls the container readiness probe.
type Readiness struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

type Config struct {
	Listen string `yaml:"listen"`
	APIKey string `yaml:"api_key"`
	DBPath string `yaml:"db_path"`

	// Image is the sandbox image every session runs. It is a versioned
	// external artifact; this daemon only consumes it.
	Image          string `yaml:"image"`
	TemplateVolume string `yaml:"template_volume"`
	WorkspacePath  string `yaml:"workspace_path"`

	// HelperImage runs the one-shot template clone into fresh workspace
	// volumes. Kept separate from Image so a big sandbox image pull never
	// blocks volume bootstrap.
	HelperImage string `yaml:"helper_image"`

	Limits    Limits    `yaml:"limits"`
	Readiness Readiness `yaml:"readiness"`

	IdleReapSeconds     int `yaml:"idle_reap_seconds"`
	ReapIntervalSeconds int `yaml:"reap_interval_seconds"`

	MaxTreeEntries   int `yaml:"max_tree_entries"`
	MaxExecTimeoutMs int `yaml:"max_exec_timeout_ms"`
}

func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Listen:         "127.0.0.1:8080",
		DBPath:         "./codecrate.db",
		Image:          "codecrate-sandbox:latest",
		TemplateVolume: "codecrate-template",
		WorkspacePath:  "/workspace",
		HelperImage:    "busybox:stable",
		Limits: Limits{
			CPULimit:    1.0,
			MemLimitMB:  512,
			PidsLimit:   256,
			NetworkMode: "none",
		},
		Readiness: Readiness{
			TimeoutSeconds: 8,
			PollIntervalMs: 250,
		},
		IdleReapSeconds:     1800,
		ReapIntervalSeconds: 30,
		MaxTreeEntries:      2000,
		MaxExecTimeoutMs:    120000,
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("CODECRATE_LISTEN", &cfg.Listen)
	setString("CODECRATE_API_KEY", &cfg.APIKey)
	setString("CODECRATE_DB_PATH", &cfg.DBPath)
	setString("CODECRATE_IMAGE", &cfg.Image)
	setString("CODECRATE_TEMPLATE_VOLUME", &cfg.TemplateVolume)
	setString("CODECRATE_WORKSPACE_PATH", &cfg.WorkspacePath)
	setString("CODECRATE_HELPER_IMAGE", &cfg.HelperImage)
	setString("CODECRATE_NETWORK_MODE", &cfg.Limits.NetworkMode)

	if v := os.Getenv("CODECRATE_CPU_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Limits.CPULimit = f
		}
	}
	setInt("CODECRATE_MEM_LIMIT_MB", &cfg.Limits.MemLimitMB)
	setInt("CODECRATE_PIDS_LIMIT", &cfg.Limits.PidsLimit)
	setInt("CODECRATE_READY_TIMEOUT_SECONDS", &cfg.Readiness.TimeoutSeconds)
	setInt("CODECRATE_READY_POLL_INTERVAL_MS", &cfg.Readiness.PollIntervalMs)
	setInt("CODECRATE_IDLE_REAP_SECONDS", &cfg.IdleReapSeconds)
	setInt("CODECRATE_REAP_INTERVAL_SECONDS", &cfg.ReapIntervalSeconds)
	setInt("CODECRATE_MAX_TREE_ENTRIES", &cfg.MaxTreeEntries)
	setInt("CODECRATE_MAX_EXEC_TIMEOUT_MS", &cfg.MaxExecTimeoutMs)
}
