// Package errors defines the typed failures returned by the lifecycle
// engine and issuance gateway. The admin boundary maps these to
// user-facing rejections; the engine itself never retries.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// InvalidServiceError reports an unrecognized downstream service name.
type InvalidServiceError struct {
	Service string
	Known   []string
}

func (e InvalidServiceError) Error() string {
	if len(e.Known) > 0 {
		return fmt.Sprintf("unknown service %q (known services: %v)", e.Service, e.Known)
	}
	return fmt.Sprintf("unknown service %q", e.Service)
}

// InvalidSecretError reports raw secret material that failed validation
// before encryption. The offending value is never included.
type InvalidSecretError struct {
	Reason string
}

func (e InvalidSecretError) Error() string {
	return "invalid secret: " + e.Reason
}

// InvalidReasonError reports an unrecognized rotation reason.
type InvalidReasonError struct {
	Reason string
}

func (e InvalidReasonError) Error() string {
	return fmt.Sprintf("unknown rotation reason %q (expected scheduled, security_incident, compliance or manual)", e.Reason)
}

// NotFoundError reports a key id with no stored record.
type NotFoundError struct {
	KeyID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("key %s not found", e.KeyID)
}

// StateTransitionError reports an operation applied to a key whose current
// status does not permit it. The message names current vs required status
// so operators can see exactly why the transition was rejected.
type StateTransitionError struct {
	KeyID    string
	Op       string
	Current  string
	Required string
}

func (e StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s key %s: status is %q, requires %q", e.Op, e.KeyID, e.Current, e.Required)
}

// BusyError reports that the per-service guard could not be acquired
// within its bounded wait. Safe to retry: every transition re-checks its
// precondition, so a retried operation never double-applies.
type BusyError struct {
	Service string
	Timeout time.Duration
}

func (e BusyError) Error() string {
	return fmt.Sprintf("service %s is busy with another key operation (waited %v); retry", e.Service, e.Timeout)
}

// NoUsableKeyError reports that Resolve found no active or deprecating
// record for a service. This is an operational emergency, not a caller
// mistake: the service has zero usable credentials.
type NoUsableKeyError struct {
	Service string
}

func (e NoUsableKeyError) Error() string {
	return fmt.Sprintf("no usable key for service %s: generate and activate a replacement", e.Service)
}

// StorageError wraps a failure in the record store so callers can
// distinguish infrastructure trouble from domain rejections.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

// Predicates used by the CLI boundary to pick exit codes and phrasing.

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e NotFoundError
	return errors.As(err, &e)
}

// IsBusy reports whether err is a BusyError and therefore retryable.
func IsBusy(err error) bool {
	var e BusyError
	return errors.As(err, &e)
}

// IsInvalidInput reports whether err is one of the reject-immediately
// input failures (bad service, bad secret, bad reason).
func IsInvalidInput(err error) bool {
	var s InvalidServiceError
	var v InvalidSecretError
	var r InvalidReasonError
	return errors.As(err, &s) || errors.As(err, &v) || errors.As(err, &r)
}

// IsStateTransition reports whether err is a StateTransitionError.
func IsStateTransition(err error) bool {
	var e StateTransitionError
	return errors.As(err, &e)
}

// IsNoUsableKey reports whether err is a NoUsableKeyError.
func IsNoUsableKey(err error) bool {
	var e NoUsableKeyError
	return errors.As(err, &e)
}
