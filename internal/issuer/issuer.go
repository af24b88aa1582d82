// Package issuer is the gateway through which new credentials enter the
// system. It validates the request at the boundary, seals the raw secret
// and persists a pending record. Raw secret material never survives the
// call: it is wiped inside the sealer.
package issuer

import (
	"context"
	"time"

	"github.com/google/uuid"

	kwerrors "github.com/vtlabs/keywarden/internal/errors"
	"github.com/vtlabs/keywarden/internal/keys"
	"github.com/vtlabs/keywarden/internal/policy"
	"github.com/vtlabs/keywarden/internal/sealer"
	"github.com/vtlabs/keywarden/internal/services"
	"github.com/vtlabs/keywarden/internal/store"
)

// Request carries everything needed to issue a new key record.
type Request struct {
	Service       keys.Service
	Secret        string // raw secret material, encrypted before storage
	Reason        string
	ExternalKeyID string
	Actor         string
	Metadata      map[string]string
}

// Issuer validates issuance requests and persists sealed pending records.
type Issuer struct {
	registry *services.Registry
	enforcer *policy.Enforcer
	sealer   *sealer.Sealer
	store    store.Store

	now   func() time.Time
	newID func() string
}

// New builds an Issuer. All dependencies are required.
func New(registry *services.Registry, enforcer *policy.Enforcer, s *sealer.Sealer, st store.Store) *Issuer {
	return &Issuer{
		registry: registry,
		enforcer: enforcer,
		sealer:   s,
		store:    st,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Issue validates the request, seals the secret and stores a new pending
// record. The returned view is redacted; the caller never gets the sealed
// bytes back.
func (i *Issuer) Issue(ctx context.Context, req Request) (keys.View, error) {
	lifetime, err := i.registry.Lookup(req.Service)
	if err != nil {
		return keys.View{}, err
	}

	reason, ok := keys.ParseReason(req.Reason)
	if !ok {
		return keys.View{}, kwerrors.InvalidReasonError{Reason: req.Reason}
	}

	if err := i.enforcer.Validate(req.Secret); err != nil {
		return keys.View{}, err
	}

	sealed, err := i.sealer.Seal([]byte(req.Secret))
	if err != nil {
		return keys.View{}, err
	}

	now := i.now().UTC()
	record := &keys.Record{
		ID:              i.newID(),
		Service:         req.Service,
		ExternalKeyID:   req.ExternalKeyID,
		EncryptedSecret: sealed,
		Status:          keys.StatusPending,
		Role:            keys.RoleNone,
		Reason:          reason,
		CreatedAt:       now,
		ExpiresAt:       now.Add(lifetime.MaxLifetime),
		CreatedBy:       req.Actor,
		LastModifiedBy:  req.Actor,
		Metadata:        req.Metadata,
	}

	if err := i.store.Insert(ctx, record); err != nil {
		return keys.View{}, err
	}
	return record.View(now), nil
}

// WithClock overrides the time source. Test hook.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// WithIDSource overrides the id generator. Test hook.
func (i *Issuer) WithIDSource(newID func() string) *Issuer {
	i.newID = newID
	return i
}
