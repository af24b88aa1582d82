// Package config loads and validates keywarden.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vtlabs/keywarden/internal/keys"
	"github.com/vtlabs/keywarden/internal/logging"
	"github.com/vtlabs/keywarden/internal/policy"
	"github.com/vtlabs/keywarden/internal/services"
)

// DefaultMasterKeyEnv is the environment variable holding the 32-byte
// (base64 or hex) master key when the config does not name another one.
const DefaultMasterKeyEnv = "KEYWARDEN_MASTER_KEY"

// Config holds the runtime configuration assembled by the CLI layer.
type Config struct {
	Path       string
	Logger     *logging.Logger
	Actor      string
	Definition *Definition
}

// Definition represents the keywarden.yaml structure.
type Definition struct {
	Version        int                      `yaml:"version"`
	Storage        StorageConfig            `yaml:"storage"`
	MasterKeyEnv   string                   `yaml:"master_key_env,omitempty"`
	GuardTimeoutMs int                      `yaml:"guard_timeout_ms,omitempty"`
	AuditLog       string                   `yaml:"audit_log,omitempty"`
	SecretPolicy   *policy.SecretPolicy     `yaml:"secret_policy,omitempty"`
	Services       map[string]ServiceEntry  `yaml:"services,omitempty"`
}

// StorageConfig locates the key record database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ServiceEntry is the per-service lifetime policy as written in YAML.
// Durations accept Go syntax plus a day suffix ("90d").
type ServiceEntry struct {
	MaxLifetime      string            `yaml:"max_lifetime,omitempty"`
	WarningThreshold float64           `yaml:"warning_threshold,omitempty"`
	GraceWindows     map[string]string `yaml:"grace_windows,omitempty"`
}

// Load reads and parses the configuration file at c.Path. A missing file
// is not an error; built-in defaults apply.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			c.Definition = &Definition{Version: 1}
			return nil
		}
		return fmt.Errorf("read config %s: %w", c.Path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parse config %s: %w", c.Path, err)
	}
	if def.Version == 0 {
		def.Version = 1
	}
	if def.Version != 1 {
		return fmt.Errorf("config %s: unsupported version %d", c.Path, def.Version)
	}

	c.Definition = &def
	return nil
}

// GuardTimeout returns the bounded wait for the per-service guard.
func (c *Config) GuardTimeout() time.Duration {
	if c.Definition != nil && c.Definition.GuardTimeoutMs > 0 {
		return time.Duration(c.Definition.GuardTimeoutMs) * time.Millisecond
	}
	return 5 * time.Second
}

// StoragePath returns the sqlite database path, defaulting under the
// user's home directory.
func (c *Config) StoragePath() string {
	if c.Definition != nil && c.Definition.Storage.Path != "" {
		return expandHome(c.Definition.Storage.Path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "keywarden.db"
	}
	return filepath.Join(home, ".keywarden", "keys.db")
}

// AuditLogPath returns the JSONL audit log path, defaulting next to the
// database.
func (c *Config) AuditLogPath() string {
	if c.Definition != nil && c.Definition.AuditLog != "" {
		return expandHome(c.Definition.AuditLog)
	}
	return filepath.Join(filepath.Dir(c.StoragePath()), "audit.log")
}

// MasterKeyEnv returns the environment variable naming the master key.
func (c *Config) MasterKeyEnv() string {
	if c.Definition != nil && c.Definition.MasterKeyEnv != "" {
		return c.Definition.MasterKeyEnv
	}
	return DefaultMasterKeyEnv
}

// SecretPolicy returns the configured secret acceptance policy, or a zero
// policy that only rejects empty values.
func (c *Config) SecretPolicy() policy.SecretPolicy {
	if c.Definition != nil && c.Definition.SecretPolicy != nil {
		return *c.Definition.SecretPolicy
	}
	return policy.SecretPolicy{}
}

// BuildRegistry constructs the service registry: built-in services plus
// any extra services declared in YAML, with per-service overrides applied.
func (c *Config) BuildRegistry() (*services.Registry, error) {
	registry := services.NewRegistry()
	if c.Definition == nil {
		return registry, nil
	}

	for name, entry := range c.Definition.Services {
		lifetime, err := entry.policy()
		if err != nil {
			return nil, fmt.Errorf("config service %q: %w", name, err)
		}
		registry.Register(keys.Service(strings.ToLower(name)), lifetime)
	}
	return registry, nil
}

func (e ServiceEntry) policy() (services.LifetimePolicy, error) {
	out := services.LifetimePolicy{WarningThreshold: e.WarningThreshold}

	if e.MaxLifetime != "" {
		d, err := ParseLifetime(e.MaxLifetime)
		if err != nil {
			return out, fmt.Errorf("max_lifetime: %w", err)
		}
		out.MaxLifetime = d
	}

	if len(e.GraceWindows) > 0 {
		out.GraceWindows = make(map[keys.RotationReason]time.Duration, len(e.GraceWindows))
		for rawReason, rawDur := range e.GraceWindows {
			reason, ok := keys.ParseReason(rawReason)
			if !ok {
				return out, fmt.Errorf("grace_windows: unknown rotation reason %q", rawReason)
			}
			d, err := ParseLifetime(rawDur)
			if err != nil {
				return out, fmt.Errorf("grace_windows[%s]: %w", rawReason, err)
			}
			out.GraceWindows[reason] = d
		}
	}
	return out, nil
}

// ParseLifetime parses a duration in Go syntax ("72h") or with a day
// suffix ("90d").
func ParseLifetime(raw string) (time.Duration, error) {
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || days < 0 {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: negative", raw)
	}
	return d, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
