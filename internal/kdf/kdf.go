// Package kdf stretches a user-supplied credential into a symmetric key.
//
// Derivation is deterministic: every replica re-derives the identical key
// from the shared secret and its stored salt, so the key itself is never
// transmitted or persisted.
package kdf

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost parameters, the interactive setting recommended by the
// x/crypto documentation.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

const (
	// KeySize is the length of derived keys, sized for AES-256.
	KeySize = 32
	// SaltSize is the length of salts produced by NewSalt.
	SaltSize = 16
)

// ErrKeyDerivation reports malformed derivation input. A wrong secret is
// not an error here: it derives a key that will fail authentication later.
var ErrKeyDerivation = errors.New("key derivation failed")

// Derive stretches secret into a KeySize-byte key using Argon2id.
// The salt must be at least SaltSize bytes.
func Derive(secret, salt []byte) ([]byte, error) {
	if len(salt) < SaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes, got %d", ErrKeyDerivation, SaltSize, len(salt))
	}
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, KeySize), nil
}

// NewSalt returns a fresh random salt. The salt is not secret and is
// persisted beside the encrypted data when a replica is first initialized.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
