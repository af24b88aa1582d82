// Package sealer encrypts raw secret material with AES-256-GCM under a
// single master key before anything reaches the record store, and decrypts
// it again for Resolve. The master key itself is loaded from the
// environment; managing that key is out of keywarden's scope.
package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vtlabs/keywarden/internal/secure"
)

// KeySize is the required master key length (AES-256).
const KeySize = 32

var (
	// ErrNoMasterKey indicates the configured environment variable is
	// unset or empty.
	ErrNoMasterKey = errors.New("master key environment variable is not set")

	// ErrBadMasterKey indicates the variable was set but did not decode
	// to 32 bytes of base64 or hex.
	ErrBadMasterKey = errors.New("master key must decode to 32 bytes (base64 or hex)")
)

// Sealer performs authenticated encryption of secret values.
type Sealer struct {
	key *secure.Buffer
}

// New creates a Sealer from a 32-byte master key. The input slice is
// copied into protected memory and wiped.
func New(masterKey []byte) (*Sealer, error) {
	if len(masterKey) != KeySize {
		return nil, ErrBadMasterKey
	}
	s := &Sealer{key: secure.NewBuffer(masterKey)}
	secure.Wipe(masterKey)
	return s, nil
}

// FromEnv loads the master key from the named environment variable,
// accepting standard base64 or hex encoding.
func FromEnv(envVar string) (*Sealer, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil, fmt.Errorf("%w (%s)", ErrNoMasterKey, envVar)
	}

	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == KeySize {
		return New(decoded)
	}
	if decoded, err := hex.DecodeString(raw); err == nil && len(decoded) == KeySize {
		return New(decoded)
	}
	return nil, ErrBadMasterKey
}

// Seal encrypts plaintext and returns nonce||ciphertext||tag. The
// plaintext slice is wiped before returning.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	defer secure.Wipe(plaintext)

	gcm, done, err := s.cipher()
	if err != nil {
		return nil, err
	}
	defer done()

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends ciphertext to the nonce: nonce || ciphertext || tag.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. The plaintext is returned inside
// a secure.Buffer so the caller controls its exposure.
func (s *Sealer) Open(blob []byte) (*secure.Buffer, error) {
	gcm, done, err := s.cipher()
	if err != nil {
		return nil, err
	}
	defer done()

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}

	buf := secure.NewBuffer(plaintext)
	secure.Wipe(plaintext)
	return buf, nil
}

// cipher opens the master key just long enough to build a GCM instance.
func (s *Sealer) cipher() (cipher.AEAD, func(), error) {
	locked, err := s.key.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open master key: %w", err)
	}

	block, err := aes.NewCipher(locked.Bytes())
	if err != nil {
		locked.Destroy()
		return nil, nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		locked.Destroy()
		return nil, nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, locked.Destroy, nil
}
