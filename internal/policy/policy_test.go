package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kwerrors "github.com/vtlabs/keywarden/internal/errors"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	enforcer, err := NewEnforcer(SecretPolicy{
		MinLength:         8,
		MaxLength:         64,
		ForbiddenPatterns: []string{`^test-`, `(?i)password`},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"valid", "sk-live-abc123def456", false},
		{"empty", "", true},
		{"too short", "short", true},
		{"too long", strings.Repeat("x", 65), true},
		{"forbidden prefix", "test-abc123def456", true},
		{"forbidden word case-insensitive", "myPASSWORD123456", true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := enforcer.Validate(tc.secret)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)

			var secretErr kwerrors.InvalidSecretError
			require.ErrorAs(t, err, &secretErr)
			if tc.secret != "" {
				assert.NotContains(t, err.Error(), tc.secret,
					"rejection must never echo the secret")
			}
		})
	}
}

func TestZeroPolicyOnlyRejectsEmpty(t *testing.T) {
	t.Parallel()

	enforcer, err := NewEnforcer(SecretPolicy{})
	require.NoError(t, err)
	assert.NoError(t, enforcer.Validate("x"))
	assert.Error(t, enforcer.Validate(""))
}

func TestNewEnforcerRejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := NewEnforcer(SecretPolicy{ForbiddenPatterns: []string{"("}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile forbidden pattern")
}
