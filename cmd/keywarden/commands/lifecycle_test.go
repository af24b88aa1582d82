package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtlabs/keywarden/internal/config"
	"github.com/vtlabs/keywarden/internal/logging"
)

// newTestConfig writes a minimal config pointing at a temp database and
// sets the master key. Uses t.Setenv, so callers cannot be parallel.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "keywarden.yaml")
	content := fmt.Sprintf("version: 1\nstorage:\n  path: %s\n", filepath.Join(dir, "keys.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	masterKey := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	t.Setenv(config.DefaultMasterKeyEnv, masterKey)

	return &config.Config{
		Path:   configPath,
		Logger: logging.New(false, true),
		Actor:  "tester",
	}
}

func TestGenerateCommand_SecretFromEnv(t *testing.T) {
	cfg := newTestConfig(t)
	t.Setenv("NEW_KEY", "sk-gemini-test-secret-value")

	cmd := NewGenerateCommand(cfg)
	cmd.SetArgs([]string{"--service", "gemini", "--reason", "scheduled", "--secret-env", "NEW_KEY"})
	require.NoError(t, cmd.Execute())

	// The key is visible through list as pending.
	app, cleanup, err := newApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	views, err := app.engine.List(context.Background(), "gemini")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "tester", views[0].CreatedBy)
}

func TestGenerateCommand_RejectsUnknownService(t *testing.T) {
	cfg := newTestConfig(t)
	t.Setenv("NEW_KEY", "sk-some-test-secret-value")

	cmd := NewGenerateCommand(cfg)
	cmd.SetArgs([]string{"--service", "stripe", "--reason", "manual", "--secret-env", "NEW_KEY"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown service")
}

func TestGenerateCommand_RequiresMasterKey(t *testing.T) {
	cfg := newTestConfig(t)
	t.Setenv(config.DefaultMasterKeyEnv, "")
	t.Setenv("NEW_KEY", "sk-gemini-test-secret-value")

	cmd := NewGenerateCommand(cfg)
	cmd.SetArgs([]string{"--service", "gemini", "--reason", "manual", "--secret-env", "NEW_KEY"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "master key")
}
