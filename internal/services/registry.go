// Package services holds the registry of downstream services whose
// credentials keywarden manages, together with each service's lifetime
// policy. Invalid service names are rejected here, at the boundary, so the
// state machine never sees them.
package services

import (
	"sort"
	"sync"
	"time"

	kwerrors "github.com/vtlabs/keywarden/internal/errors"
	"github.com/vtlabs/keywarden/internal/keys"
)

// LifetimePolicy controls how long a service's keys live and when the
// health analyzer starts complaining about them.
type LifetimePolicy struct {
	// MaxLifetime is the interval from creation to ExpiresAt.
	MaxLifetime time.Duration

	// WarningThreshold is the fraction of lifetime consumed at which a
	// warning alert fires, e.g. 0.70.
	WarningThreshold float64

	// GraceWindows gives the intended deprecation grace period per
	// rotation reason. Security-incident keys get the shortest window.
	GraceWindows map[keys.RotationReason]time.Duration
}

// DefaultLifetimePolicy is applied to any service registered without an
// explicit policy. The values are starting points, not load-bearing
// constants; deployments tune them in keywarden.yaml.
func DefaultLifetimePolicy() LifetimePolicy {
	return LifetimePolicy{
		MaxLifetime:      90 * 24 * time.Hour,
		WarningThreshold: 0.70,
		GraceWindows: map[keys.RotationReason]time.Duration{
			keys.ReasonScheduled:        72 * time.Hour,
			keys.ReasonCompliance:       72 * time.Hour,
			keys.ReasonManual:           24 * time.Hour,
			keys.ReasonSecurityIncident: 1 * time.Hour,
		},
	}
}

// Registry maps recognized service names to their lifetime policies.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	policies map[keys.Service]LifetimePolicy
}

// NewRegistry creates a registry pre-populated with the platform's
// built-in services under the default policy.
func NewRegistry() *Registry {
	r := &Registry{policies: make(map[keys.Service]LifetimePolicy)}
	for _, svc := range []keys.Service{keys.ServiceGemini, keys.ServiceLiveKit, keys.ServiceSupabase} {
		r.policies[svc] = DefaultLifetimePolicy()
	}
	return r
}

// Register adds a service or replaces its policy. Zero fields in policy
// fall back to the defaults.
func (r *Registry) Register(svc keys.Service, policy LifetimePolicy) {
	def := DefaultLifetimePolicy()
	if policy.MaxLifetime <= 0 {
		policy.MaxLifetime = def.MaxLifetime
	}
	if policy.WarningThreshold <= 0 || policy.WarningThreshold >= 1 {
		policy.WarningThreshold = def.WarningThreshold
	}
	if policy.GraceWindows == nil {
		policy.GraceWindows = def.GraceWindows
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[svc] = policy
}

// Lookup returns the policy for a recognized service, or an
// InvalidServiceError naming the known services.
func (r *Registry) Lookup(svc keys.Service) (LifetimePolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	policy, ok := r.policies[svc]
	if !ok {
		return LifetimePolicy{}, kwerrors.InvalidServiceError{
			Service: string(svc),
			Known:   r.namesLocked(),
		}
	}
	return policy, nil
}

// Known reports whether svc is registered.
func (r *Registry) Known(svc keys.Service) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.policies[svc]
	return ok
}

// Names returns the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.policies))
	for svc := range r.policies {
		names = append(names, string(svc))
	}
	sort.Strings(names)
	return names
}

// GraceWindow returns the deprecation grace period for a reason, falling
// back to the manual window when the reason has no explicit entry.
func (p LifetimePolicy) GraceWindow(reason keys.RotationReason) time.Duration {
	if w, ok := p.GraceWindows[reason]; ok {
		return w
	}
	if w, ok := p.GraceWindows[keys.ReasonManual]; ok {
		return w
	}
	return 24 * time.Hour
}
