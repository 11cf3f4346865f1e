// Package config loads the gateway/client's own YAML configuration file —
// distinct from the JSON `.safeclaw.json` workspace config a project
// carries (see internal/workspace), this file configures the process
// itself: where its state lives, how it reaches the control plane, and
// which deployment profile it runs under.
//
// The loader always produces a usable config even with nothing on disk:
// Load overlays an optional YAML file onto a built-in set of defaults
// rather than requiring every field to be present up front, then overlays
// a fixed set of SAFECLAW_* environment variables on top of the result —
// env always wins over file, and file always wins over default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of gateway/client tunables.
type Config struct {
	Profile string `yaml:"profile"`

	ControlPlane ControlPlaneConfig `yaml:"control_plane"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Paths        PathsConfig        `yaml:"paths"`
}

// ControlPlaneConfig configures the remote control-plane client, or
// disables it entirely for a fully offline/local-policy deployment.
type ControlPlaneConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token"`
	InstallID   string `yaml:"install_id"`
	Enabled     bool   `yaml:"enabled"`
}

// GatewayConfig mirrors gateway.Config's tunables in their YAML form.
type GatewayConfig struct {
	ApprovalTimeoutSeconds int `yaml:"approval_timeout_seconds"`
	PollIntervalSeconds    int `yaml:"poll_interval_seconds"`
	CacheTTLSeconds        int `yaml:"cache_ttl_seconds"`
}

// PathsConfig locates the three on-disk stores.
type PathsConfig struct {
	AuditLog    string `yaml:"audit_log"`
	Cache       string `yaml:"cache"`
	PolicyStore string `yaml:"policy_store"`
}

// Default returns the configuration used when no file is present: a
// local-only profile rooted under the user's config directory, with the
// control plane disabled.
func Default() Config {
	base := defaultStateDir()
	return Config{
		Profile: "default",
		ControlPlane: ControlPlaneConfig{
			Enabled: false,
		},
		Gateway: GatewayConfig{
			ApprovalTimeoutSeconds: 300,
			PollIntervalSeconds:    3,
			CacheTTLSeconds:        3600,
		},
		Paths: PathsConfig{
			AuditLog:    filepath.Join(base, "audit.jsonl"),
			Cache:       filepath.Join(base, "cache.json"),
			PolicyStore: filepath.Join(base, "policy.json"),
		},
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "safeclaw")
	}
	return ".safeclaw"
}

// Load reads path as YAML and overlays it onto Default(), then overlays
// any set environment variables on top of that. A missing file is not an
// error — callers get the pure-default config, matching the "works with
// zero configuration" expectation of a local trust boundary tool.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides overlays a fixed set of SAFECLAW_* environment
// variables onto cfg, each taking effect only when set and otherwise
// leaving whatever Load already resolved (default or YAML) untouched.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SAFECLAW_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv("SAFECLAW_CONTROL_PLANE_BASE_URL"); v != "" {
		cfg.ControlPlane.BaseURL = v
	}
	if v := os.Getenv("SAFECLAW_BEARER_TOKEN"); v != "" {
		cfg.ControlPlane.BearerToken = v
	}
	if v := os.Getenv("SAFECLAW_INSTALL_ID"); v != "" {
		cfg.ControlPlane.InstallID = v
	}
	if v := os.Getenv("SAFECLAW_CONTROL_PLANE_ENABLED"); v != "" {
		cfg.ControlPlane.Enabled = v == "true"
	}
	if v := os.Getenv("SAFECLAW_AUDIT_LOG"); v != "" {
		cfg.Paths.AuditLog = v
	}
	if v := os.Getenv("SAFECLAW_CACHE"); v != "" {
		cfg.Paths.Cache = v
	}
	if v := os.Getenv("SAFECLAW_POLICY_STORE"); v != "" {
		cfg.Paths.PolicyStore = v
	}
}

// ApprovalTimeout returns the configured approval timeout as a Duration.
func (c Config) ApprovalTimeout() time.Duration {
	return time.Duration(c.Gateway.ApprovalTimeoutSeconds) * time.Second
}

// PollInterval returns the configured poll interval as a Duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Gateway.PollIntervalSeconds) * time.Second
}
