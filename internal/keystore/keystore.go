// Package keystore keeps named 32-byte keys in a single encrypted object.
//
// The object is an envelope produced by package cipher under a master key
// derived from the store password. Every write re-encrypts and rewrites the
// whole key map. A wrong password and a damaged object are reported alike,
// as model.ErrAuthenticationFailure.
//
// A Store is a single-writer handle. It serialises its own methods but does
// not coordinate with other processes; callers that share a store file across
// processes must hold an external lock (see storage/file.Storage.Lock).
package keystore

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/filecoin-project/go-clock"

	"github.com/dtroode/gophkeeper-vault/internal/cipher"
	"github.com/dtroode/gophkeeper-vault/internal/kdf"
	"github.com/dtroode/gophkeeper-vault/internal/logger"
	"github.com/dtroode/gophkeeper-vault/internal/model"
)

// DefaultSaltPhrase salts the master key derivation unless WithSaltPhrase
// overrides it.
const DefaultSaltPhrase = "gophkeeperKeyStore1"

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("key store is closed")

type options struct {
	kdfParams  model.KDFParams
	saltPhrase string
	rand       io.Reader
	clock      clock.Clock
	logger     *logger.Logger
}

// Option configures Open.
type Option func(*options)

// WithKDFParams sets the Argon2id cost of the master key derivation.
func WithKDFParams(p model.KDFParams) Option {
	return func(o *options) { o.kdfParams = p }
}

// WithSaltPhrase sets the phrase the master key salt is hashed from.
// Stores written with one phrase can only be opened with the same phrase.
func WithSaltPhrase(phrase string) Option {
	return func(o *options) { o.saltPhrase = phrase }
}

// WithRandom replaces the nonce source.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.rand = r }
}

// WithClock replaces the clock used to version identifiers.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Store is an open key store.
type Store struct {
	mu        sync.Mutex
	storage   model.Storage
	name      string
	masterKey *memguard.Enclave
	keys      map[string][]byte
	cipher    *cipher.Cipher
	clock     clock.Clock
	logger    *logger.Logger
}

// Open derives the master key from password and loads the store object name
// from storage. A missing object yields an empty store; nothing is written
// until the first StoreKey.
func Open(ctx context.Context, storage model.Storage, name, password string, opts ...Option) (*Store, error) {
	o := options{
		kdfParams:  model.DefaultKDFParams,
		saltPhrase: DefaultSaltPhrase,
		rand:       rand.Reader,
		clock:      clock.New(),
		logger:     logger.NewWithWriter(0, io.Discard),
	}
	for _, opt := range opts {
		opt(&o)
	}
	l := o.logger.With("store", name)

	key, _, err := kdf.New(o.kdfParams).Derive(password, &o.saltPhrase)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}
	defer memguard.WipeBytes(key)

	s := &Store{
		storage: storage,
		name:    name,
		keys:    make(map[string][]byte),
		cipher:  cipher.New(cipher.WithRandom(o.rand)),
		clock:   o.clock,
		logger:  l,
	}

	exists, err := storage.Exists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to check key store: %w", model.ErrIO, err)
	}

	if exists {
		envelope, err := s.read(ctx)
		if err != nil {
			return nil, err
		}

		plaintext, err := s.cipher.Decrypt(envelope, key)
		if err != nil {
			l.Warn("Key store: rejected master key")
			return nil, fmt.Errorf("failed to open key store: %w", err)
		}
		defer memguard.WipeBytes(plaintext)

		s.keys, err = decode(plaintext)
		if err != nil {
			l.Error("Key store: malformed payload", "error", err.Error())
			return nil, err
		}
	}

	s.masterKey = memguard.NewEnclave(key)

	l.Info("Key store: opened", "entries", len(s.keys), "existing", exists)

	return s, nil
}

func (s *Store) read(ctx context.Context) ([]byte, error) {
	rc, err := s.storage.Download(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read key store: %w", model.ErrIO, err)
	}
	defer rc.Close()

	envelope, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read key store: %w", model.ErrIO, err)
	}
	return envelope, nil
}

// Name returns the storage name of the store object.
func (s *Store) Name() string {
	return s.name
}

// StoreKey adds key under id stamped with the current UTC second and rewrites
// the store object. Earlier entries with the same base identifier are kept.
// If that second is already taken for id the version moves forward one second
// at a time until it is free.
//
// On failure the in-memory map is left as it was before the call.
func (s *Store) StoreKey(ctx context.Context, id string, key []byte) (model.VersionedID, error) {
	if len(key) != model.KeySize {
		return model.VersionedID{}, fmt.Errorf("%w: key must be %d bytes, got %d", model.ErrInvalidKeyLength, model.KeySize, len(key))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.masterKey == nil {
		return model.VersionedID{}, ErrClosed
	}

	vid := model.NewVersionedID(id, s.clock.Now())
	for {
		if _, taken := s.keys[vid.String()]; !taken {
			break
		}
		vid.Version = vid.Version.Add(time.Second)
	}

	s.keys[vid.String()] = bytes.Clone(key)

	if err := s.persist(ctx); err != nil {
		memguard.WipeBytes(s.keys[vid.String()])
		delete(s.keys, vid.String())
		s.logger.Error("Key store: failed to persist key",
			"id", vid.String(),
			"error", err.Error())
		return model.VersionedID{}, err
	}

	s.logger.Info("Key store: key stored", "id", vid.String(), "entries", len(s.keys))

	return vid, nil
}

func (s *Store) persist(ctx context.Context) error {
	plaintext, err := encode(s.keys)
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(plaintext)

	master, err := s.masterKey.Open()
	if err != nil {
		return fmt.Errorf("failed to open master key: %w", err)
	}
	envelope, err := s.cipher.Encrypt(plaintext, master.Bytes())
	master.Destroy()
	if err != nil {
		return fmt.Errorf("failed to encrypt key store: %w", err)
	}

	if err := s.storage.Upload(ctx, s.name, bytes.NewReader(envelope)); err != nil {
		return fmt.Errorf("%w: failed to write key store: %w", model.ErrIO, err)
	}

	return nil
}

// RetrieveKey returns the key stored under the exact versioned identifier id,
// as returned by StoreKey (VersionedID.String).
func (s *Store) RetrieveKey(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, false
	}
	return bytes.Clone(key), true
}

// GetExact returns the entry for id.
func (s *Store) GetExact(id model.VersionedID) (model.KeyEntry, bool) {
	key, ok := s.RetrieveKey(id.String())
	if !ok {
		return model.KeyEntry{}, false
	}
	return model.KeyEntry{ID: id, Key: key}, true
}

// GetLatest returns the most recent entry stored under base.
func (s *Store) GetLatest(base string) (model.KeyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		latest model.VersionedID
		found  bool
	)
	for raw := range s.keys {
		vid, err := model.ParseVersionedID(raw)
		if err != nil || vid.Base != base {
			continue
		}
		if !found || vid.Version.After(latest.Version) {
			latest, found = vid, true
		}
	}
	if !found {
		return model.KeyEntry{}, false
	}

	return model.KeyEntry{ID: latest, Key: bytes.Clone(s.keys[latest.String()])}, true
}

// List returns all entries ordered by base identifier, then version.
func (s *Store) List() []model.KeyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]model.KeyEntry, 0, len(s.keys))
	for raw, key := range s.keys {
		vid, err := model.ParseVersionedID(raw)
		if err != nil {
			vid = model.VersionedID{Base: raw}
		}
		entries = append(entries, model.KeyEntry{ID: vid, Key: bytes.Clone(key)})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].ID, entries[j].ID
		if a.Base != b.Base {
			return a.Base < b.Base
		}
		return a.Version.Before(b.Version)
	})

	return entries
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Close drops the master key and wipes the in-memory key map. The store
// object is left as it is.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, key := range s.keys {
		memguard.WipeBytes(key)
		delete(s.keys, id)
	}
	s.masterKey = nil
}
