package issuer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kwerrors "github.com/vtlabs/keywarden/internal/errors"
	"github.com/vtlabs/keywarden/internal/keys"
	"github.com/vtlabs/keywarden/internal/policy"
	"github.com/vtlabs/keywarden/internal/sealer"
	"github.com/vtlabs/keywarden/internal/services"
	"github.com/vtlabs/keywarden/internal/store"
)

func newTestIssuer(t *testing.T) (*Issuer, *store.MemoryStore, *sealer.Sealer) {
	t.Helper()

	masterKey := make([]byte, sealer.KeySize)
	copy(masterKey, []byte("0123456789abcdef0123456789abcdef"))
	s, err := sealer.New(masterKey)
	require.NoError(t, err)

	enforcer, err := policy.NewEnforcer(policy.SecretPolicy{MinLength: 8})
	require.NoError(t, err)

	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	iss := New(services.NewRegistry(), enforcer, s, st).
		WithClock(func() time.Time { return now }).
		WithIDSource(func() string { return "fixed-id" })
	return iss, st, s
}

func TestIssueCreatesPendingRecord(t *testing.T) {
	t.Parallel()

	iss, st, seal := newTestIssuer(t)

	view, err := iss.Issue(context.Background(), Request{
		Service:  keys.ServiceGemini,
		Secret:   "sk-gemini-abc123",
		Reason:   "scheduled",
		Actor:    "alice",
		Metadata: map[string]string{"ticket": "OPS-42"},
	})
	require.NoError(t, err)

	assert.Equal(t, "fixed-id", view.ID)
	assert.Equal(t, keys.ServiceGemini, view.Service)
	assert.Equal(t, keys.StatusPending, view.Status)
	assert.Equal(t, keys.RoleNone, view.Role)
	assert.Equal(t, keys.ReasonScheduled, view.Reason)
	assert.Equal(t, "alice", view.CreatedBy)
	assert.Equal(t, view.CreatedAt.Add(90*24*time.Hour), view.ExpiresAt)

	stored, err := st.Get(context.Background(), "fixed-id")
	require.NoError(t, err)
	require.NotEmpty(t, stored.EncryptedSecret)
	assert.NotContains(t, string(stored.EncryptedSecret), "sk-gemini-abc123",
		"stored secret must be ciphertext")

	buf, err := seal.Open(stored.EncryptedSecret)
	require.NoError(t, err)
	locked, err := buf.Open()
	require.NoError(t, err)
	defer locked.Destroy()
	assert.Equal(t, "sk-gemini-abc123", locked.String())
}

func TestIssueRejectsUnknownService(t *testing.T) {
	t.Parallel()

	iss, _, _ := newTestIssuer(t)

	_, err := iss.Issue(context.Background(), Request{
		Service: "stripe",
		Secret:  "sk-stripe-abc123",
		Reason:  "scheduled",
	})
	require.Error(t, err)
	assert.True(t, kwerrors.IsInvalidInput(err))

	var svcErr kwerrors.InvalidServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, []string{"gemini", "livekit", "supabase"}, svcErr.Known)
}

func TestIssueRejectsUnknownReason(t *testing.T) {
	t.Parallel()

	iss, _, _ := newTestIssuer(t)

	_, err := iss.Issue(context.Background(), Request{
		Service: keys.ServiceGemini,
		Secret:  "sk-gemini-abc123",
		Reason:  "because",
	})
	require.Error(t, err)

	var reasonErr kwerrors.InvalidReasonError
	assert.ErrorAs(t, err, &reasonErr)
}

func TestIssueRejectsWeakSecret(t *testing.T) {
	t.Parallel()

	iss, st, _ := newTestIssuer(t)

	_, err := iss.Issue(context.Background(), Request{
		Service: keys.ServiceGemini,
		Secret:  "short",
		Reason:  "manual",
	})
	require.Error(t, err)

	var secretErr kwerrors.InvalidSecretError
	require.ErrorAs(t, err, &secretErr)
	assert.NotContains(t, secretErr.Error(), "short", "rejection must not echo the value")

	records, err := st.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records, "rejected requests must not persist anything")
}
