// Package codec seals replica payloads with authenticated encryption.
//
// Every persisted or transmitted payload is wrapped in an Envelope of
// nonce, ciphertext and authentication tag produced by AES-256-GCM. Wrong
// credentials and tampered data are indistinguishable on open; both report
// ErrAuthentication and no plaintext is ever returned for either.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrAuthentication reports a failed integrity check: a wrong key, or a
// corrupted or tampered envelope.
var ErrAuthentication = errors.New("authentication failed")

// Envelope is the unit exchanged between replicas and persisted at rest.
type Envelope struct {
	// Nonce is the fresh random nonce used for this seal operation.
	Nonce []byte `json:"nonce"`
	// Ciphertext is the encrypted serialized replica payload.
	Ciphertext []byte `json:"ciphertext"`
	// Tag authenticates both the nonce and the ciphertext.
	Tag []byte `json:"tag"`
}

// Encode serializes the envelope for the transport.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses an envelope received from the transport.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// Codec performs authenticated encryption under a single derived key.
type Codec struct {
	aead cipher.AEAD
	rand io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithRandom substitutes the nonce source, for deterministic tests.
// The default is crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) { c.rand = r }
}

// New creates a codec for the given key. The key must be a valid AES key;
// derived keys are 32 bytes (see kdf.KeySize).
func New(key []byte, opts ...Option) (*Codec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	c := &Codec{aead: aead, rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Seal encrypts plaintext under a fresh random nonce. Nonces never repeat
// for a given key; reuse would break confidentiality for GCM.
func (c *Codec) Seal(plaintext []byte) (Envelope, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	tagAt := len(sealed) - c.aead.Overhead()
	return Envelope{Nonce: nonce, Ciphertext: sealed[:tagAt], Tag: sealed[tagAt:]}, nil
}

// Open verifies the envelope's tag and returns the plaintext. Any mismatch
// reports ErrAuthentication; partial plaintext is never returned.
func (c *Codec) Open(env Envelope) ([]byte, error) {
	if len(env.Nonce) != c.aead.NonceSize() || len(env.Tag) != c.aead.Overhead() {
		return nil, ErrAuthentication
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)
	plain, err := c.aead.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plain, nil
}
