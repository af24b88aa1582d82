package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtlabs/keywarden/internal/keys"
)

func writeConfig(t *testing.T, content string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keywarden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return &Config{Path: path}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{Path: filepath.Join(t.TempDir(), "nope.yaml")}
	require.NoError(t, cfg.Load())

	assert.Equal(t, 1, cfg.Definition.Version)
	assert.Equal(t, 5*time.Second, cfg.GuardTimeout())
	assert.Equal(t, DefaultMasterKeyEnv, cfg.MasterKeyEnv())

	registry, err := cfg.BuildRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini", "livekit", "supabase"}, registry.Names())
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, `
version: 1
storage:
  path: /var/lib/keywarden/keys.db
master_key_env: PLATFORM_MASTER_KEY
guard_timeout_ms: 2500
audit_log: /var/log/keywarden/audit.jsonl
secret_policy:
  min_length: 20
services:
  stripe:
    max_lifetime: 30d
    warning_threshold: 0.5
    grace_windows:
      security_incident: 30m
  gemini:
    max_lifetime: 120d
`)
	require.NoError(t, cfg.Load())

	assert.Equal(t, "/var/lib/keywarden/keys.db", cfg.StoragePath())
	assert.Equal(t, "PLATFORM_MASTER_KEY", cfg.MasterKeyEnv())
	assert.Equal(t, 2500*time.Millisecond, cfg.GuardTimeout())
	assert.Equal(t, "/var/log/keywarden/audit.jsonl", cfg.AuditLogPath())
	assert.Equal(t, 20, cfg.SecretPolicy().MinLength)

	registry, err := cfg.BuildRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini", "livekit", "stripe", "supabase"}, registry.Names())

	stripe, err := registry.Lookup("stripe")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, stripe.MaxLifetime)
	assert.Equal(t, 0.5, stripe.WarningThreshold)
	assert.Equal(t, 30*time.Minute, stripe.GraceWindow(keys.ReasonSecurityIncident))

	// Overriding a built-in keeps it registered with the new lifetime.
	gemini, err := registry.Lookup(keys.ServiceGemini)
	require.NoError(t, err)
	assert.Equal(t, 120*24*time.Hour, gemini.MaxLifetime)
	assert.Equal(t, 0.70, gemini.WarningThreshold, "unset threshold falls back to default")
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, "version: 2\n")
	err := cfg.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, "version: [broken\n")
	assert.Error(t, cfg.Load())
}

func TestBuildRegistryRejectsBadDurations(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, `
services:
  stripe:
    max_lifetime: soon
`)
	require.NoError(t, cfg.Load())
	_, err := cfg.BuildRegistry()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestBuildRegistryRejectsUnknownGraceReason(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, `
services:
  stripe:
    grace_windows:
      emergency: 1h
`)
	require.NoError(t, cfg.Load())
	_, err := cfg.BuildRegistry()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown rotation reason")
}

func TestParseLifetime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"90d", 90 * 24 * time.Hour, false},
		{"0d", 0, false},
		{"72h", 72 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"", 0, true},
		{"-5d", 0, true},
		{"-1h", 0, true},
		{"soon", 0, true},
	}

	for _, tc := range tests {
		d, err := ParseLifetime(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, d, tc.raw)
	}
}
