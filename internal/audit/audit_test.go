package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtlabs/keywarden/internal/keys"
)

func TestTrailAppendAndTail(t *testing.T) {
	t.Parallel()

	trail, err := NewTrail(filepath.Join(t.TempDir(), "logs", "audit.jsonl"))
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, op := range []string{"generate", "activate", "deprecate"} {
		require.NoError(t, trail.Append(Entry{
			Timestamp: at.Add(time.Duration(i) * time.Minute),
			Actor:     "alice",
			Operation: op,
			Service:   keys.ServiceGemini,
			KeyID:     "k1",
		}))
	}

	entries, err := trail.Tail(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "activate", entries[0].Operation)
	assert.Equal(t, "deprecate", entries[1].Operation)

	all, err := trail.Tail(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTrailMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	trail, err := NewTrail(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)

	entries, err := trail.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTrailFillsTimestamp(t *testing.T) {
	t.Parallel()

	trail, err := NewTrail(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)

	require.NoError(t, trail.Append(Entry{
		Actor:     "bob",
		Operation: "revoke",
		Service:   keys.ServiceLiveKit,
		KeyID:     "k2",
	}))

	entries, err := trail.Tail(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestTrailSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := NewTrail(path)
	require.NoError(t, err)

	require.NoError(t, trail.Append(Entry{Operation: "generate", KeyID: "k1"}))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, trail.Append(Entry{Operation: "activate", KeyID: "k1"}))

	entries, err := trail.Tail(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "generate", entries[0].Operation)
	assert.Equal(t, "activate", entries[1].Operation)
}

func TestTrailNeverContainsSecretField(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := NewTrail(path)
	require.NoError(t, err)

	require.NoError(t, trail.Append(Entry{
		Operation: "generate",
		Service:   keys.ServiceSupabase,
		KeyID:     "k3",
		Details:   map[string]string{"ticket": "OPS-42"},
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "secret"),
		"audit lines carry no secret-bearing fields")
}
