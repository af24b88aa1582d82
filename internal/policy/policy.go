// Package policy validates raw secret material before it is accepted by
// the issuance gateway. Violations surface as InvalidSecret at the
// boundary; nothing here ever stores or logs the value it checks.
package policy

import (
	"fmt"
	"regexp"

	kwerrors "github.com/vtlabs/keywarden/internal/errors"
)

// SecretPolicy defines acceptance requirements for raw secret values.
type SecretPolicy struct {
	MinLength         int      `yaml:"min_length,omitempty"`
	MaxLength         int      `yaml:"max_length,omitempty"`
	ForbiddenPatterns []string `yaml:"forbidden_patterns,omitempty"` // regexes the secret must not match
}

// Enforcer checks secrets against a SecretPolicy. A nil or zero policy
// only rejects empty values.
type Enforcer struct {
	policy    SecretPolicy
	forbidden []*regexp.Regexp
}

// NewEnforcer compiles the policy's patterns. An invalid regex is a
// configuration mistake and is reported immediately.
func NewEnforcer(policy SecretPolicy) (*Enforcer, error) {
	e := &Enforcer{policy: policy}
	for _, pattern := range policy.ForbiddenPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile forbidden pattern %q: %w", pattern, err)
		}
		e.forbidden = append(e.forbidden, re)
	}
	return e, nil
}

// Validate checks a raw secret value. The returned error never contains
// the value itself.
func (e *Enforcer) Validate(secret string) error {
	if secret == "" {
		return kwerrors.InvalidSecretError{Reason: "value is empty"}
	}
	if e.policy.MinLength > 0 && len(secret) < e.policy.MinLength {
		return kwerrors.InvalidSecretError{
			Reason: fmt.Sprintf("value is shorter than the %d character minimum", e.policy.MinLength),
		}
	}
	if e.policy.MaxLength > 0 && len(secret) > e.policy.MaxLength {
		return kwerrors.InvalidSecretError{
			Reason: fmt.Sprintf("value exceeds the %d character maximum", e.policy.MaxLength),
		}
	}
	for _, re := range e.forbidden {
		if re.MatchString(secret) {
			return kwerrors.InvalidSecretError{Reason: "value matches a forbidden pattern"}
		}
	}
	return nil
}
