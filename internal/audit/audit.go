// Package audit appends one JSON line per lifecycle operation to a local
// audit log. Entries carry the actor, the operation and the key's before
// and after state, never the secret. Audit failures are reported to the
// caller but must not abort the operation they describe; the record store
// remains the source of truth.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vtlabs/keywarden/internal/keys"
)

// Entry is one audit log line.
type Entry struct {
	Timestamp  time.Time           `json:"timestamp"`
	Actor      string              `json:"actor"`
	Operation  string              `json:"operation"` // generate, demote, activate, deprecate, revoke
	Service    keys.Service        `json:"service"`
	KeyID      string              `json:"key_id"`
	FromStatus keys.Status         `json:"from_status,omitempty"`
	ToStatus   keys.Status         `json:"to_status,omitempty"`
	Reason     keys.RotationReason `json:"reason,omitempty"`
	Details    map[string]string   `json:"details,omitempty"`
}

// Trail appends entries to a JSONL file. Safe for concurrent use within
// one process.
type Trail struct {
	mu   sync.Mutex
	path string
}

// NewTrail creates a trail writing to path, creating parent directories
// as needed.
func NewTrail(path string) (*Trail, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	return &Trail{path: path}, nil
}

// Append writes one entry. The timestamp is filled in if zero.
func (t *Trail) Append(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Tail returns the last n entries, oldest first. A missing log file
// yields an empty slice.
func (t *Trail) Tail(n int) ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A corrupt line loses itself, not the rest of the log.
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Path returns the log file location.
func (t *Trail) Path() string {
	return t.path
}
