// Package secure wraps memguard so plaintext secret material spends as
// little time as possible in ordinary heap memory. The issuance gateway
// parks raw secrets here between validation and sealing, and Resolve hands
// decrypted values back inside a locked buffer.
package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned by Open after Destroy has been called.
var ErrDestroyed = errors.New("secure buffer already destroyed")

// Buffer holds sensitive bytes encrypted at rest in memory (memguard
// enclave: XSalsa20-Poly1305, mlocked where the OS allows it).
type Buffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewBuffer copies data into a protected region. The caller still owns the
// input slice and should wipe it afterwards; memguard does not zero it.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave(data)}
}

// Open decrypts the buffer and returns the plaintext in a locked buffer.
// The caller MUST Destroy() the returned buffer when done:
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	use(locked.Bytes())
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return nil, ErrDestroyed
	}
	return b.enclave.Open()
}

// Destroy marks the buffer unusable. Idempotent; after Destroy, Open
// returns ErrDestroyed. Full memguard cleanup at process exit is the
// caller's job via memguard.Purge().
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}

// Wipe zeroes a byte slice in place. Used after copying raw input into a
// Buffer.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
