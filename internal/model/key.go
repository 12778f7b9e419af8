package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	// KeySize is the length of derived keys and stored key material.
	KeySize = 32
	// SaltSize is the length of KDF salts.
	SaltSize = 16
	// NonceSize is the length of the envelope nonce.
	NonceSize = 12
	// TagSize is the length of the AEAD authentication tag.
	TagSize = 16
	// MinEnvelopeSize is the size of an envelope around an empty plaintext.
	MinEnvelopeSize = NonceSize + TagSize
)

// VersionLayout is the UTC timestamp layout appended to stored identifiers.
const VersionLayout = "20060102T150405Z"

const versionSeparator = "_"

// VersionedID identifies one write of a key under a base identifier.
type VersionedID struct {
	Base    string
	Version time.Time
}

// NewVersionedID stamps base with t truncated to whole seconds in UTC.
func NewVersionedID(base string, t time.Time) VersionedID {
	return VersionedID{Base: base, Version: t.UTC().Truncate(time.Second)}
}

// String returns the persisted form "<base>_<YYYYMMDDThhmmssZ>".
func (id VersionedID) String() string {
	return id.Base + versionSeparator + id.Version.UTC().Format(VersionLayout)
}

// ParseVersionedID splits a persisted identifier into base and version.
func ParseVersionedID(s string) (VersionedID, error) {
	i := strings.LastIndex(s, versionSeparator)
	if i < 0 {
		return VersionedID{}, fmt.Errorf("identifier %q has no version suffix", s)
	}
	version, err := time.Parse(VersionLayout, s[i+1:])
	if err != nil {
		return VersionedID{}, fmt.Errorf("identifier %q has malformed version: %w", s, err)
	}
	return VersionedID{Base: s[:i], Version: version.UTC()}, nil
}

// KeyEntry is a stored key together with its versioned identifier.
type KeyEntry struct {
	ID  VersionedID
	Key []byte
}
