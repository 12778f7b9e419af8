package model

import "errors"

// Error kinds returned by key derivation, the cipher and the key store.
// Callers branch on them with errors.Is.
var (
	ErrInvalidSalt           = errors.New("invalid salt")
	ErrHashFailure           = errors.New("key derivation failed")
	ErrAuthenticationFailure = errors.New("authentication failed")
	ErrInvalidKeyLength      = errors.New("invalid key length")
	ErrIO                    = errors.New("i/o failure")
	ErrSerialization         = errors.New("malformed key store payload")
	ErrNotFound              = errors.New("not found")
)

// ErrorKind names the kind of a failure.
type ErrorKind string

const (
	KindInvalidSalt           ErrorKind = "invalid_salt"
	KindHashFailure           ErrorKind = "hash_failure"
	KindAuthenticationFailure ErrorKind = "authentication_failure"
	KindInvalidKeyLength      ErrorKind = "invalid_key_length"
	KindIO                    ErrorKind = "io"
	KindSerialization         ErrorKind = "serialization"
	KindNotFound              ErrorKind = "not_found"
	KindUnknown               ErrorKind = "unknown"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidSalt, KindInvalidSalt},
	{ErrHashFailure, KindHashFailure},
	{ErrAuthenticationFailure, KindAuthenticationFailure},
	{ErrInvalidKeyLength, KindInvalidKeyLength},
	{ErrIO, KindIO},
	{ErrSerialization, KindSerialization},
	{ErrNotFound, KindNotFound},
}

// KindOf reports the kind of err. It returns an empty kind for a nil error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
