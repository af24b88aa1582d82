// Package store persists key records. Two implementations: sqlite for
// real deployments and an in-memory store for tests. Records are
// append-only — there is no delete, and the encrypted secret column is
// write-once by construction (updates never touch it).
package store

import (
	"context"

	"github.com/vtlabs/keywarden/internal/keys"
)

// Store is the record store used by the lifecycle engine and the health
// analyzer. Implementations must provide atomic read-modify-write per
// record; Transition must apply its pair of updates as one logical unit,
// writing the demotion before the promotion.
type Store interface {
	// Insert persists a new record. Fails if the id already exists.
	Insert(ctx context.Context, record *keys.Record) error

	// Get returns the record with the given id, or a NotFoundError.
	Get(ctx context.Context, id string) (*keys.Record, error)

	// Update rewrites a record's mutable fields (status, role,
	// lifecycle timestamps, last_modified_by, metadata). The encrypted
	// secret is never rewritten.
	Update(ctx context.Context, record *keys.Record) error

	// Transition applies a demotion and a promotion as one unit. demote
	// may be nil when there is no previous primary. When the backend
	// cannot wrap both writes in a transaction it must still write the
	// demotion first, so no moment ever shows two primaries.
	Transition(ctx context.Context, demote, promote *keys.Record) error

	// ListByService returns all records for a service, newest first.
	ListByService(ctx context.Context, svc keys.Service) ([]*keys.Record, error)

	// ListAll returns every record, newest first. Used by the health
	// analyzer.
	ListAll(ctx context.Context) ([]*keys.Record, error)

	// Close releases backend resources.
	Close() error
}
