package keys

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCanAdvanceTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusActive, true},
		{StatusActive, StatusDeprecating, true},
		{StatusDeprecating, StatusRevoked, true},
		{StatusPending, StatusRevoked, true},
		{StatusActive, StatusRevoked, true},

		// No skipping forward except to revoked.
		{StatusPending, StatusDeprecating, false},

		// No moving backward.
		{StatusActive, StatusPending, false},
		{StatusDeprecating, StatusActive, false},
		{StatusDeprecating, StatusPending, false},

		// Revoked is terminal.
		{StatusRevoked, StatusPending, false},
		{StatusRevoked, StatusActive, false},
		{StatusRevoked, StatusDeprecating, false},
		{StatusRevoked, StatusRevoked, false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.from.CanAdvanceTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestParseReason(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"scheduled", "security_incident", "compliance", "manual"} {
		reason, ok := ParseReason(valid)
		assert.True(t, ok, valid)
		assert.Equal(t, RotationReason(valid), reason)
	}

	for _, invalid := range []string{"", "Scheduled", "incident", "routine"} {
		_, ok := ParseReason(invalid)
		assert.False(t, ok, invalid)
	}
}

func TestLifetimeConsumed(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	record := &Record{
		CreatedAt: created,
		ExpiresAt: created.Add(100 * 24 * time.Hour),
	}

	assert.InDelta(t, 0.0, record.LifetimeConsumed(created), 0.001)
	assert.InDelta(t, 0.7, record.LifetimeConsumed(created.Add(70*24*time.Hour)), 0.001)
	assert.InDelta(t, 1.0, record.LifetimeConsumed(created.Add(100*24*time.Hour)), 0.001)
	assert.Greater(t, record.LifetimeConsumed(created.Add(120*24*time.Hour)), 1.0)

	// Degenerate lifetime counts as fully consumed.
	record.ExpiresAt = created
	assert.Equal(t, 1.0, record.LifetimeConsumed(created))
}

func TestRecordJSONNeverContainsSecret(t *testing.T) {
	t.Parallel()

	record := &Record{
		ID:              "k1",
		Service:         ServiceGemini,
		EncryptedSecret: []byte("super-sealed-bytes"),
		Status:          StatusActive,
		Role:            RolePrimary,
	}

	encoded, err := json.Marshal(record)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "super-sealed-bytes")
	assert.NotContains(t, string(encoded), "secret")

	assert.NotContains(t, record.String(), "super-sealed-bytes")
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	activated := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	record := &Record{
		ID:              "k1",
		EncryptedSecret: []byte("sealed"),
		ActivatedAt:     &activated,
		Metadata:        map[string]string{"a": "1"},
	}

	clone := record.Clone()
	clone.EncryptedSecret[0] = 'X'
	clone.Metadata["a"] = "2"
	*clone.ActivatedAt = activated.Add(time.Hour)

	assert.Equal(t, byte('s'), record.EncryptedSecret[0])
	assert.Equal(t, "1", record.Metadata["a"])
	assert.True(t, record.ActivatedAt.Equal(activated))
}

func TestUsable(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Record{Status: StatusPending}).Usable())
	assert.True(t, (&Record{Status: StatusActive}).Usable())
	assert.True(t, (&Record{Status: StatusDeprecating}).Usable())
	assert.False(t, (&Record{Status: StatusRevoked}).Usable())
}
