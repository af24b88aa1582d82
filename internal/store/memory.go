package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	kwerrors "github.com/vtlabs/keywarden/internal/errors"
	"github.com/vtlabs/keywarden/internal/keys"
)

// MemoryStore implements Store with a mutex-guarded map. Used by tests
// and as a reference for the concurrency semantics the sqlite store must
// match.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*keys.Record
	seq     map[string]int // insertion order, tiebreak for equal CreatedAt
	next    int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*keys.Record),
		seq:     make(map[string]int),
	}
}

// Insert persists a new record.
func (m *MemoryStore) Insert(ctx context.Context, record *keys.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; exists {
		return kwerrors.StorageError{Op: "insert", Err: fmt.Errorf("duplicate id %s", record.ID)}
	}
	m.records[record.ID] = record.Clone()
	m.seq[record.ID] = m.next
	m.next++
	return nil
}

// Get returns a clone of the record with the given id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*keys.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, kwerrors.NotFoundError{KeyID: id}
	}
	return record.Clone(), nil
}

// Update rewrites a record's mutable fields. The stored encrypted secret
// is preserved regardless of what the caller passes in.
func (m *MemoryStore) Update(ctx context.Context, record *keys.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(record)
}

func (m *MemoryStore) updateLocked(record *keys.Record) error {
	existing, ok := m.records[record.ID]
	if !ok {
		return kwerrors.NotFoundError{KeyID: record.ID}
	}
	updated := record.Clone()
	updated.EncryptedSecret = existing.EncryptedSecret // write-once
	updated.CreatedAt = existing.CreatedAt
	m.records[record.ID] = updated
	return nil
}

// Transition applies demote then promote under one lock acquisition.
func (m *MemoryStore) Transition(ctx context.Context, demote, promote *keys.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if demote != nil {
		if err := m.updateLocked(demote); err != nil {
			return err
		}
	}
	return m.updateLocked(promote)
}

// ListByService returns all records for a service, newest first.
func (m *MemoryStore) ListByService(ctx context.Context, svc keys.Service) ([]*keys.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*keys.Record
	for _, record := range m.records {
		if record.Service == svc {
			out = append(out, record.Clone())
		}
	}
	m.sortNewestFirst(out)
	return out, nil
}

// ListAll returns every record, newest first.
func (m *MemoryStore) ListAll(ctx context.Context) ([]*keys.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*keys.Record, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record.Clone())
	}
	m.sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) sortNewestFirst(records []*keys.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return m.seq[records[i].ID] > m.seq[records[j].ID]
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// Close clears the store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*keys.Record)
	m.seq = make(map[string]int)
	return nil
}
