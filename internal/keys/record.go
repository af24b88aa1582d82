// Package keys defines the credential record model shared by the store,
// the lifecycle engine and the health analyzer.
package keys

import (
	"fmt"
	"time"
)

// Service identifies a downstream service whose credential we manage.
// The set of recognized services is held by the services registry; this
// type only carries the canonical lowercase name.
type Service string

// Built-in services of the tutoring platform. Additional services can be
// registered through configuration.
const (
	ServiceGemini   Service = "gemini"   // model inference provider
	ServiceLiveKit  Service = "livekit"  // voice conferencing provider
	ServiceSupabase Service = "supabase" // database provider
)

// Status is the lifecycle state of a key record. Transitions are strictly
// forward: pending -> active -> deprecating -> revoked. Revoked is terminal.
type Status string

const (
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusDeprecating Status = "deprecating"
	StatusRevoked     Status = "revoked"
)

// rank orders statuses for the forward-only check. Higher never goes lower.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusActive:
		return 1
	case StatusDeprecating:
		return 2
	case StatusRevoked:
		return 3
	}
	return -1
}

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// CanAdvanceTo reports whether moving from s to next respects the
// forward-only lifecycle. Revocation is permitted from every non-revoked
// state (the emergency path); all other moves must step forward.
func (s Status) CanAdvanceTo(next Status) bool {
	if s == StatusRevoked {
		return false
	}
	if next == StatusRevoked {
		return true
	}
	return next.rank() == s.rank()+1
}

// Role marks which record currently answers for a service. It is only
// meaningful while the status is active or deprecating.
type Role string

const (
	RoleNone      Role = "none"
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Valid reports whether r is a recognized role.
func (r Role) Valid() bool {
	switch r {
	case RoleNone, RolePrimary, RoleSecondary:
		return true
	}
	return false
}

// RotationReason records why a key was issued. Security-incident keys get
// shorter grace windows from the per-service policy.
type RotationReason string

const (
	ReasonScheduled        RotationReason = "scheduled"
	ReasonSecurityIncident RotationReason = "security_incident"
	ReasonCompliance       RotationReason = "compliance"
	ReasonManual           RotationReason = "manual"
)

// Valid reports whether r is a recognized rotation reason.
func (r RotationReason) Valid() bool {
	switch r {
	case ReasonScheduled, ReasonSecurityIncident, ReasonCompliance, ReasonManual:
		return true
	}
	return false
}

// ParseReason converts a raw string to a RotationReason, reporting whether
// the value is recognized.
func ParseReason(raw string) (RotationReason, bool) {
	r := RotationReason(raw)
	return r, r.Valid()
}

// Record is one version of one service's credential. Records are
// append-only: rotation creates new records, it never rewrites the secret
// of an existing one, and revoked records are retained for audit history.
type Record struct {
	ID              string            `json:"id"`
	Service         Service           `json:"service"`
	ExternalKeyID   string            `json:"external_key_id,omitempty"`
	EncryptedSecret []byte            `json:"-"`
	Status          Status            `json:"status"`
	Role            Role              `json:"role"`
	Reason          RotationReason    `json:"rotation_reason"`
	CreatedAt       time.Time         `json:"created_at"`
	ActivatedAt     *time.Time        `json:"activated_at,omitempty"`
	DeprecatedAt    *time.Time        `json:"deprecated_at,omitempty"`
	RevokedAt       *time.Time        `json:"revoked_at,omitempty"`
	ExpiresAt       time.Time         `json:"expires_at"`
	CreatedBy       string            `json:"created_by"`
	LastModifiedBy  string            `json:"last_modified_by"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// IsPrimary reports whether the record is the authoritative credential for
// its service right now.
func (r *Record) IsPrimary() bool {
	return r.Status == StatusActive && r.Role == RolePrimary
}

// Usable reports whether the record may still be resolved to a secret:
// active or deprecating, in any role. Pending keys have never been
// published; revoked keys are dead.
func (r *Record) Usable() bool {
	return r.Status == StatusActive || r.Status == StatusDeprecating
}

// AgeInDays returns how many whole days have passed since creation.
func (r *Record) AgeInDays(now time.Time) int {
	if now.Before(r.CreatedAt) {
		return 0
	}
	return int(now.Sub(r.CreatedAt).Hours() / 24)
}

// LifetimeConsumed returns the fraction of the record's configured lifetime
// that has elapsed, e.g. 0.7 when 70% of the way to ExpiresAt. Returns 1.0
// or more once expired.
func (r *Record) LifetimeConsumed(now time.Time) float64 {
	total := r.ExpiresAt.Sub(r.CreatedAt)
	if total <= 0 {
		return 1.0
	}
	return float64(now.Sub(r.CreatedAt)) / float64(total)
}

// Clone returns a deep copy of the record. The store hands out clones so
// callers cannot mutate persisted state behind its back.
func (r *Record) Clone() *Record {
	cp := *r
	if r.EncryptedSecret != nil {
		cp.EncryptedSecret = append([]byte(nil), r.EncryptedSecret...)
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	if r.ActivatedAt != nil {
		t := *r.ActivatedAt
		cp.ActivatedAt = &t
	}
	if r.DeprecatedAt != nil {
		t := *r.DeprecatedAt
		cp.DeprecatedAt = &t
	}
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

// View is the redacted representation returned by every read path other
// than Resolve. It never carries secret material.
type View struct {
	ID             string            `json:"id"`
	Service        Service           `json:"service"`
	ExternalKeyID  string            `json:"external_key_id,omitempty"`
	Status         Status            `json:"status"`
	Role           Role              `json:"role"`
	Reason         RotationReason    `json:"rotation_reason"`
	CreatedAt      time.Time         `json:"created_at"`
	ActivatedAt    *time.Time        `json:"activated_at,omitempty"`
	DeprecatedAt   *time.Time        `json:"deprecated_at,omitempty"`
	RevokedAt      *time.Time        `json:"revoked_at,omitempty"`
	ExpiresAt      time.Time         `json:"expires_at"`
	CreatedBy      string            `json:"created_by"`
	LastModifiedBy string            `json:"last_modified_by"`
	AgeInDays      int               `json:"age_in_days"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// View builds the redacted representation of the record as of now.
func (r *Record) View(now time.Time) View {
	return View{
		ID:             r.ID,
		Service:        r.Service,
		ExternalKeyID:  r.ExternalKeyID,
		Status:         r.Status,
		Role:           r.Role,
		Reason:         r.Reason,
		CreatedAt:      r.CreatedAt,
		ActivatedAt:    r.ActivatedAt,
		DeprecatedAt:   r.DeprecatedAt,
		RevokedAt:      r.RevokedAt,
		ExpiresAt:      r.ExpiresAt,
		CreatedBy:      r.CreatedBy,
		LastModifiedBy: r.LastModifiedBy,
		AgeInDays:      r.AgeInDays(now),
		Metadata:       r.Metadata,
	}
}

// String implements fmt.Stringer without exposing the secret.
func (r *Record) String() string {
	return fmt.Sprintf("key %s (%s, %s/%s)", r.ID, r.Service, r.Status, r.Role)
}
