// Package kdf turns passwords into 32-byte keys with Argon2id.
package kdf

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"

	"github.com/dtroode/gophkeeper-vault/internal/model"
)

// MinSaltPhraseLen is the minimum number of characters in a salt phrase.
const MinSaltPhraseLen = 8

// Deriver derives keys with fixed Argon2id parameters.
type Deriver struct {
	params model.KDFParams
	rand   io.Reader
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithRandom replaces the entropy source used for random salts.
func WithRandom(r io.Reader) Option {
	return func(d *Deriver) {
		d.rand = r
	}
}

// New creates a Deriver with the given cost parameters.
func New(params model.KDFParams, opts ...Option) *Deriver {
	d := &Deriver{
		params: params,
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Params returns the cost parameters of d.
func (d *Deriver) Params() model.KDFParams {
	return d.params
}

// Derive returns a key for password and the salt it was derived with.
//
// With a salt phrase the result is deterministic: the salt is the first 16
// bytes of SHA-256(phrase). Without one the salt is random and must be kept
// by the caller to rebuild the key with DeriveWithSalt.
func (d *Deriver) Derive(password string, saltPhrase *string) (key []byte, salt []byte, err error) {
	if saltPhrase != nil {
		salt, err = SaltFromPhrase(*saltPhrase)
		if err != nil {
			return nil, nil, err
		}
	} else {
		salt = make([]byte, model.SaltSize)
		if _, err := io.ReadFull(d.rand, salt); err != nil {
			return nil, nil, fmt.Errorf("%w: failed to read random salt: %w", model.ErrHashFailure, err)
		}
	}

	key, err = d.DeriveWithSalt(password, salt)
	if err != nil {
		return nil, nil, err
	}

	return key, salt, nil
}

// DeriveWithSalt rebuilds a key from password and a 16-byte salt.
func (d *Deriver) DeriveWithSalt(password string, salt []byte) ([]byte, error) {
	if len(salt) != model.SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", model.ErrInvalidSalt, model.SaltSize, len(salt))
	}
	if err := validateParams(d.params); err != nil {
		return nil, err
	}

	pw := []byte(password)
	defer memguard.WipeBytes(pw)

	return argon2.IDKey(pw, salt, d.params.Time, d.params.MemKiB, d.params.Par, model.KeySize), nil
}

// SaltFromPhrase validates a salt phrase and hashes it into a salt.
func SaltFromPhrase(phrase string) ([]byte, error) {
	if err := ValidateSaltPhrase(phrase); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(phrase))
	salt := make([]byte, model.SaltSize)
	copy(salt, sum[:model.SaltSize])
	return salt, nil
}

// ValidateSaltPhrase checks that phrase has at least eight characters and
// contains only letters and digits.
func ValidateSaltPhrase(phrase string) error {
	if n := utf8.RuneCountInString(phrase); n < MinSaltPhraseLen {
		return fmt.Errorf("%w: salt phrase must be at least %d characters, got %d", model.ErrInvalidSalt, MinSaltPhraseLen, n)
	}
	for _, r := range phrase {
		if r == utf8.RuneError || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return fmt.Errorf("%w: salt phrase contains disallowed character %q", model.ErrInvalidSalt, r)
		}
	}
	return nil
}

func validateParams(p model.KDFParams) error {
	switch {
	case p.Time < 1:
		return fmt.Errorf("%w: time cost must be at least 1", model.ErrHashFailure)
	case p.Par < 1:
		return fmt.Errorf("%w: parallelism must be at least 1", model.ErrHashFailure)
	case p.MemKiB < 8*uint32(p.Par):
		return fmt.Errorf("%w: memory must be at least %d KiB for parallelism %d", model.ErrHashFailure, 8*uint32(p.Par), p.Par)
	}
	return nil
}
