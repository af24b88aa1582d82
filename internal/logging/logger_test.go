package logging

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	logger := NewWithWriter(&sb, false, true)

	logger.Info("rotated key %s", "k1")
	logger.Warn("key %s aging", "k2")
	logger.Error("key %s expired", "k3")
	logger.Debug("hidden without debug flag")

	out := sb.String()
	assert.Contains(t, out, "✓ rotated key k1")
	assert.Contains(t, out, "⚠ key k2 aging")
	assert.Contains(t, out, "✗ key k3 expired")
	assert.NotContains(t, out, "hidden")
}

func TestLoggerDebugEnabled(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	logger := NewWithWriter(&sb, true, true)
	logger.Debug("guard acquired for %s", "gemini")
	assert.Contains(t, sb.String(), "[DEBUG] guard acquired for gemini")
}

func TestSecretAlwaysRedacts(t *testing.T) {
	t.Parallel()

	secret := Secret("sk-live-abc123")
	assert.Equal(t, "[REDACTED]", secret.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", secret))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", secret))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", secret))
}

func TestRedact(t *testing.T) {
	t.Parallel()

	out := Redact("key sk-live-abc123 leaked via sk-live-abc123", []string{"sk-live-abc123"})
	assert.Equal(t, "key [REDACTED] leaked via [REDACTED]", out)

	// Very short values stay as-is so common substrings survive.
	assert.Equal(t, "get a key", Redact("get a key", []string{"a"}))
}
