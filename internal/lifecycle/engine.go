// Package lifecycle implements the key state machine: generate, activate,
// deprecate, revoke and resolve. All transitions are forward-only, every
// mutating operation re-reads current state under the per-service guard,
// and at most one record per service is ever active primary.
package lifecycle

import (
	"context"
	"time"

	"github.com/vtlabs/keywarden/internal/audit"
	kwerrors "github.com/vtlabs/keywarden/internal/errors"
	"github.com/vtlabs/keywarden/internal/health"
	"github.com/vtlabs/keywarden/internal/issuer"
	"github.com/vtlabs/keywarden/internal/keys"
	"github.com/vtlabs/keywarden/internal/logging"
	"github.com/vtlabs/keywarden/internal/sealer"
	"github.com/vtlabs/keywarden/internal/secure"
	"github.com/vtlabs/keywarden/internal/services"
	"github.com/vtlabs/keywarden/internal/store"
)

// Engine coordinates the key lifecycle for all services.
type Engine struct {
	store    store.Store
	issuer   *issuer.Issuer
	sealer   *sealer.Sealer
	registry *services.Registry
	guard    *guard
	trail    *audit.Trail
	metrics  *health.Metrics
	logger   *logging.Logger

	now func() time.Time
}

// Options carries the Engine's collaborators. Trail and Metrics are
// optional.
type Options struct {
	Store        store.Store
	Issuer       *issuer.Issuer
	Sealer       *sealer.Sealer
	Registry     *services.Registry
	Trail        *audit.Trail
	Metrics      *health.Metrics
	Logger       *logging.Logger
	GuardTimeout time.Duration
}

// DefaultGuardTimeout bounds how long a mutating operation waits for the
// per-service guard before reporting Busy.
const DefaultGuardTimeout = 5 * time.Second

// NewEngine builds an Engine.
func NewEngine(opts Options) *Engine {
	timeout := opts.GuardTimeout
	if timeout <= 0 {
		timeout = DefaultGuardTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(false, true)
	}
	return &Engine{
		store:    opts.Store,
		issuer:   opts.Issuer,
		sealer:   opts.Sealer,
		registry: opts.Registry,
		guard:    newGuard(timeout),
		trail:    opts.Trail,
		metrics:  opts.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// List returns redacted views of the service's records, newest first. An
// empty service lists every record.
func (e *Engine) List(ctx context.Context, svc keys.Service) ([]keys.View, error) {
	var (
		records []*keys.Record
		err     error
	)
	if svc == "" {
		records, err = e.store.ListAll(ctx)
	} else {
		if _, err := e.registry.Lookup(svc); err != nil {
			return nil, err
		}
		records, err = e.store.ListByService(ctx, svc)
	}
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	views := make([]keys.View, 0, len(records))
	for _, record := range records {
		views = append(views, record.View(now))
	}
	return views, nil
}

// Generate validates and stores a new pending key for the service. The
// new key takes no traffic until Activate.
func (e *Engine) Generate(ctx context.Context, req issuer.Request) (keys.View, error) {
	release, err := e.guard.acquire(ctx, req.Service)
	if err != nil {
		// Unknown services fail validation, not the guard.
		if _, lookupErr := e.registry.Lookup(req.Service); lookupErr != nil {
			return keys.View{}, lookupErr
		}
		return keys.View{}, err
	}
	defer release()

	view, err := e.issuer.Issue(ctx, req)
	if err != nil {
		return keys.View{}, err
	}

	e.logger.Debug("generated pending key %s for %s", view.ID, view.Service)
	e.record(audit.Entry{
		Actor:     req.Actor,
		Operation: "generate",
		Service:   view.Service,
		KeyID:     view.ID,
		ToStatus:  keys.StatusPending,
		Reason:    view.Reason,
	})
	e.metrics.RecordTransition(string(view.Service), "generate")
	return view, nil
}

// Activate promotes a pending key to active primary. The current primary,
// if any, is demoted to secondary in the same store transition; it stays
// active so in-flight callers keep working through the grace window. No
// moment shows two primaries.
func (e *Engine) Activate(ctx context.Context, keyID, actor string) (keys.View, error) {
	record, err := e.store.Get(ctx, keyID)
	if err != nil {
		return keys.View{}, err
	}

	release, err := e.guard.acquire(ctx, record.Service)
	if err != nil {
		return keys.View{}, err
	}
	defer release()

	// Re-read under the guard: the state may have moved while we waited.
	record, err = e.store.Get(ctx, keyID)
	if err != nil {
		return keys.View{}, err
	}
	if record.Status != keys.StatusPending {
		return keys.View{}, kwerrors.StateTransitionError{
			KeyID:    keyID,
			Op:       "activate",
			Current:  string(record.Status),
			Required: string(keys.StatusPending),
		}
	}

	now := e.now().UTC()
	var demoted *keys.Record
	current, err := e.store.ListByService(ctx, record.Service)
	if err != nil {
		return keys.View{}, err
	}
	for _, candidate := range current {
		if candidate.IsPrimary() {
			demoted = candidate.Clone()
			demoted.Role = keys.RoleSecondary
			demoted.LastModifiedBy = actor
			break
		}
	}

	promoted := record.Clone()
	promoted.Status = keys.StatusActive
	promoted.Role = keys.RolePrimary
	promoted.ActivatedAt = &now
	promoted.LastModifiedBy = actor

	if err := e.store.Transition(ctx, demoted, promoted); err != nil {
		return keys.View{}, err
	}

	if demoted != nil {
		e.logger.Debug("demoted %s to secondary", demoted.ID)
		e.record(audit.Entry{
			Actor:      actor,
			Operation:  "demote",
			Service:    demoted.Service,
			KeyID:      demoted.ID,
			FromStatus: keys.StatusActive,
			ToStatus:   keys.StatusActive,
			Details:    map[string]string{"role": "primary -> secondary", "cause": "superseded by " + promoted.ID},
		})
	}
	e.logger.Info("activated key %s as primary for %s", promoted.ID, promoted.Service)
	e.record(audit.Entry{
		Actor:      actor,
		Operation:  "activate",
		Service:    promoted.Service,
		KeyID:      promoted.ID,
		FromStatus: keys.StatusPending,
		ToStatus:   keys.StatusActive,
	})
	e.metrics.RecordTransition(string(promoted.Service), "activate")
	return promoted.View(now), nil
}

// Deprecate moves an active key to deprecating. It stays usable for
// callers that have not picked up the replacement yet. Deprecating an
// already-deprecating key is a no-op, so retried rotations are safe.
func (e *Engine) Deprecate(ctx context.Context, keyID, actor string) (keys.View, error) {
	record, err := e.store.Get(ctx, keyID)
	if err != nil {
		return keys.View{}, err
	}

	release, err := e.guard.acquire(ctx, record.Service)
	if err != nil {
		return keys.View{}, err
	}
	defer release()

	record, err = e.store.Get(ctx, keyID)
	if err != nil {
		return keys.View{}, err
	}
	now := e.now().UTC()

	if record.Status == keys.StatusDeprecating {
		return record.View(now), nil
	}
	if record.Status != keys.StatusActive {
		return keys.View{}, kwerrors.StateTransitionError{
			KeyID:    keyID,
			Op:       "deprecate",
			Current:  string(record.Status),
			Required: string(keys.StatusActive),
		}
	}

	// Role is left alone: a deprecating key keeps answering in whatever
	// role it had until it is revoked or expires.
	wasPrimary := record.IsPrimary()
	updated := record.Clone()
	updated.Status = keys.StatusDeprecating
	updated.DeprecatedAt = &now
	updated.LastModifiedBy = actor

	if err := e.store.Update(ctx, updated); err != nil {
		return keys.View{}, err
	}

	if wasPrimary {
		e.logger.Warn("deprecated primary key %s: %s has no active primary until a replacement is activated",
			updated.ID, updated.Service)
	} else {
		e.logger.Info("deprecated key %s for %s", updated.ID, updated.Service)
	}
	e.record(audit.Entry{
		Actor:      actor,
		Operation:  "deprecate",
		Service:    updated.Service,
		KeyID:      updated.ID,
		FromStatus: keys.StatusActive,
		ToStatus:   keys.StatusDeprecating,
	})
	e.metrics.RecordTransition(string(updated.Service), "deprecate")
	return updated.View(now), nil
}

// Revoke terminates a key from any non-revoked state. Revocation is
// permanent; the record stays in the store for audit history.
func (e *Engine) Revoke(ctx context.Context, keyID, actor string) (keys.View, error) {
	record, err := e.store.Get(ctx, keyID)
	if err != nil {
		return keys.View{}, err
	}

	release, err := e.guard.acquire(ctx, record.Service)
	if err != nil {
		return keys.View{}, err
	}
	defer release()

	record, err = e.store.Get(ctx, keyID)
	if err != nil {
		return keys.View{}, err
	}
	if record.Status == keys.StatusRevoked {
		return keys.View{}, kwerrors.StateTransitionError{
			KeyID:    keyID,
			Op:       "revoke",
			Current:  string(keys.StatusRevoked),
			Required: "any non-revoked status",
		}
	}

	now := e.now().UTC()
	wasPrimary := record.IsPrimary()
	fromStatus := record.Status

	updated := record.Clone()
	updated.Status = keys.StatusRevoked
	updated.Role = keys.RoleNone
	updated.RevokedAt = &now
	updated.LastModifiedBy = actor

	if err := e.store.Update(ctx, updated); err != nil {
		return keys.View{}, err
	}

	if wasPrimary {
		e.logger.Warn("revoked primary key %s: %s has no active primary until a replacement is activated",
			updated.ID, updated.Service)
	} else {
		e.logger.Info("revoked key %s for %s", updated.ID, updated.Service)
	}
	e.record(audit.Entry{
		Actor:      actor,
		Operation:  "revoke",
		Service:    updated.Service,
		KeyID:      updated.ID,
		FromStatus: fromStatus,
		ToStatus:   keys.StatusRevoked,
	})
	e.metrics.RecordTransition(string(updated.Service), "revoke")
	return updated.View(now), nil
}

// Resolution is the result of Resolve: the chosen record's redacted view
// plus the decrypted secret. Source tells callers whether they got the
// primary or a grace-window fallback.
type Resolution struct {
	View   keys.View
	Secret *secure.Buffer
	Source string // "primary" or "fallback"
}

// Resolve returns the decrypted secret the service should use right now:
// the active primary when one exists, otherwise the most recently created
// usable key (a deprecating or secondary record still inside its grace
// window). With no usable key at all it reports NoUsableKey.
func (e *Engine) Resolve(ctx context.Context, svc keys.Service) (Resolution, error) {
	if _, err := e.registry.Lookup(svc); err != nil {
		return Resolution{}, err
	}

	records, err := e.store.ListByService(ctx, svc)
	if err != nil {
		return Resolution{}, err
	}

	var chosen *keys.Record
	source := "primary"
	for _, record := range records {
		if record.IsPrimary() {
			chosen = record
			break
		}
	}
	if chosen == nil {
		source = "fallback"
		// Records are newest first; the first usable one is the most
		// recent fallback.
		for _, record := range records {
			if record.Usable() {
				chosen = record
				break
			}
		}
	}
	if chosen == nil {
		e.metrics.RecordResolve(string(svc), "none")
		return Resolution{}, kwerrors.NoUsableKeyError{Service: string(svc)}
	}

	secret, err := e.sealer.Open(chosen.EncryptedSecret)
	if err != nil {
		return Resolution{}, err
	}

	if source == "fallback" {
		e.logger.Warn("resolving %s through non-primary key %s: activate a replacement", svc, chosen.ID)
	}
	e.metrics.RecordResolve(string(svc), source)
	return Resolution{
		View:   chosen.View(e.now().UTC()),
		Secret: secret,
		Source: source,
	}, nil
}

// record appends an audit entry, logging rather than failing when the
// trail is unavailable.
func (e *Engine) record(entry audit.Entry) {
	if e.trail == nil {
		return
	}
	entry.Timestamp = e.now().UTC()
	if err := e.trail.Append(entry); err != nil {
		e.logger.Warn("audit append failed: %v", err)
	}
}
