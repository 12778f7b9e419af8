// Package cipher seals payloads into authenticated envelopes.
//
// An envelope is a 12-byte random nonce followed by the ChaCha20-Poly1305
// ciphertext and its 16-byte tag. Every failure to open an envelope is
// reported as model.ErrAuthenticationFailure, whether the key is wrong or the
// data was modified.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dtroode/gophkeeper-vault/internal/model"
)

// Cipher encrypts and decrypts envelopes.
type Cipher struct {
	rand io.Reader
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithRandom replaces the nonce source.
func WithRandom(r io.Reader) Option {
	return func(c *Cipher) {
		c.rand = r
	}
}

// New creates a Cipher drawing nonces from crypto/rand.
func New(opts ...Option) *Cipher {
	c := &Cipher{rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encrypt seals plaintext under key with a fresh nonce.
func (c *Cipher) Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	envelope := make([]byte, model.NonceSize, model.NonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(c.rand, envelope); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(envelope, envelope, plaintext, nil), nil
}

// Decrypt opens an envelope produced by Encrypt.
func (c *Cipher) Decrypt(envelope, key []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(envelope) < model.NonceSize {
		return nil, model.ErrAuthenticationFailure
	}

	nonce, sealed := envelope[:model.NonceSize], envelope[model.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, model.ErrAuthenticationFailure
	}
	if plaintext == nil {
		plaintext = []byte{}
	}

	return plaintext, nil
}

func newAEAD(key []byte) (stdcipher.AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", model.ErrInvalidKeyLength, chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return aead, nil
}
