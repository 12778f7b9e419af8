package keystore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/gophkeeper-vault/internal/cipher"
	"github.com/dtroode/gophkeeper-vault/internal/kdf"
	servermocks "github.com/dtroode/gophkeeper-vault/internal/mocks"
	"github.com/dtroode/gophkeeper-vault/internal/model"
	"github.com/dtroode/gophkeeper-vault/internal/storage/file"
	"github.com/dtroode/gophkeeper-vault/internal/testutil"
)

const password = "correct-horse-battery-staple"

var epoch = time.Date(2026, 10, 18, 12, 30, 45, 0, time.UTC)

func newClock() *clock.Mock {
	c := clock.NewMock()
	c.Set(epoch)
	return c
}

func testOptions(c clock.Clock) []Option {
	return []Option{
		WithKDFParams(testutil.FastKDFParams),
		WithClock(c),
		WithLogger(testutil.MakeNoopLogger()),
	}
}

func storePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ks.bin")
}

func TestOpen_MissingFileStartsEmpty(t *testing.T) {
	path := storePath(t)

	s, err := OpenFile(context.Background(), path, password, testOptions(newClock())...)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, path, s.Name())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "open must not create the file")
}

func TestStoreKey_EndToEnd(t *testing.T) {
	ctx := context.Background()
	path := storePath(t)
	opts := testOptions(newClock())
	key := bytes.Repeat([]byte{0x2a}, 32)

	s, err := OpenFile(ctx, path, password, opts...)
	require.NoError(t, err)
	id, err := s.StoreKey(ctx, "api-token", key)
	require.NoError(t, err)
	assert.Equal(t, "api-token_20261018T123045Z", id.String())
	s.Close()

	reopened, err := OpenFile(ctx, path, password, opts...)
	require.NoError(t, err)

	got, ok := reopened.RetrieveKey(id.String())
	require.True(t, ok)
	assert.Equal(t, key, got)
}

func TestRetrieveKey_BaseIdentifierIsNotAnExactMatch(t *testing.T) {
	ctx := context.Background()
	s, err := OpenFile(ctx, storePath(t), password, testOptions(newClock())...)
	require.NoError(t, err)

	_, err = s.StoreKey(ctx, "api-token", testutil.Key(0x01))
	require.NoError(t, err)

	got, ok := s.RetrieveKey("api-token")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestStoreKey_SameBaseTwiceKeepsBoth(t *testing.T) {
	ctx := context.Background()
	path := storePath(t)
	opts := testOptions(newClock())

	s, err := OpenFile(ctx, path, password, opts...)
	require.NoError(t, err)

	first, err := s.StoreKey(ctx, "k", testutil.Key(0x01))
	require.NoError(t, err)
	second, err := s.StoreKey(ctx, "k", testutil.Key(0x02))
	require.NoError(t, err)

	assert.NotEqual(t, first.String(), second.String())
	assert.Equal(t, time.Second, second.Version.Sub(first.Version))

	reopened, err := OpenFile(ctx, path, password, opts...)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	k1, ok := reopened.RetrieveKey(first.String())
	require.True(t, ok)
	assert.Equal(t, testutil.Key(0x01), k1)
	k2, ok := reopened.RetrieveKey(second.String())
	require.True(t, ok)
	assert.Equal(t, testutil.Key(0x02), k2)
}

func TestStoreKey_InvalidLengthLeavesFileUnchanged(t *testing.T) {
	ctx := context.Background()
	path := storePath(t)

	s, err := OpenFile(ctx, path, password, testOptions(newClock())...)
	require.NoError(t, err)
	_, err = s.StoreKey(ctx, "k", testutil.Key(0x01))
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := s.StoreKey(ctx, "k", make([]byte, n))
		require.ErrorIs(t, err, model.ErrInvalidKeyLength, "length %d", n)
	}

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, s.Len())
}

func TestOpen_WrongPassword(t *testing.T) {
	ctx := context.Background()
	path := storePath(t)
	opts := testOptions(newClock())

	s, err := OpenFile(ctx, path, password, opts...)
	require.NoError(t, err)
	_, err = s.StoreKey(ctx, "k", testutil.Key(0x01))
	require.NoError(t, err)

	rejected, err := OpenFile(ctx, path, "Tr0ub4dor&3", opts...)
	assert.ErrorIs(t, err, model.ErrAuthenticationFailure)
	assert.Nil(t, rejected)
}

func TestOpen_WrongSaltPhrase(t *testing.T) {
	ctx := context.Background()
	path := storePath(t)
	opts := testOptions(newClock())

	s, err := OpenFile(ctx, path, password, opts...)
	require.NoError(t, err)
	_, err = s.StoreKey(ctx, "k", testutil.Key(0x01))
	require.NoError(t, err)

	_, err = OpenFile(ctx, path, password, append(opts, WithSaltPhrase("otherPhrase99"))...)
	assert.ErrorIs(t, err, model.ErrAuthenticationFailure)
}

func TestOpen_InvalidSaltPhrase(t *testing.T) {
	_, err := OpenFile(context.Background(), storePath(t), password,
		append(testOptions(newClock()), WithSaltPhrase("short"))...)
	assert.ErrorIs(t, err, model.ErrInvalidSalt)
}

func TestOpen_TamperedFile(t *testing.T) {
	ctx := context.Background()
	path := storePath(t)
	opts := testOptions(newClock())

	s, err := OpenFile(ctx, path, password, opts...)
	require.NoError(t, err)
	_, err = s.StoreKey(ctx, "k", testutil.Key(0x01))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, i := range []int{0, model.NonceSize, len(data) / 2, len(data) - 1} {
		tampered := bytes.Clone(data)
		tampered[i] ^= 0x80
		require.NoError(t, os.WriteFile(path, tampered, 0o600))

		_, err := OpenFile(ctx, path, password, opts...)
		assert.ErrorIs(t, err, model.ErrAuthenticationFailure, "byte %d", i)
	}

	require.NoError(t, os.WriteFile(path, data[:model.NonceSize-1], 0o600))
	_, err = OpenFile(ctx, path, password, opts...)
	assert.ErrorIs(t, err, model.ErrAuthenticationFailure)
}

func TestOpen_MalformedPayload(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "not json", plaintext: "not json"},
		{name: "unknown version", plaintext: `{"version":7,"keys":{}}`},
		{name: "short key", plaintext: `{"version":1,"keys":{"k_20261018T123045Z":"AAEC"}}`},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := storePath(t)
			phrase := DefaultSaltPhrase
			master, _, err := kdf.New(testutil.FastKDFParams).Derive(password, &phrase)
			require.NoError(t, err)
			envelope, err := cipher.New().Encrypt([]byte(tt.plaintext), master)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, envelope, 0o600))

			s, err := OpenFile(ctx, path, password, testOptions(newClock())...)
			assert.ErrorIs(t, err, model.ErrSerialization)
			assert.Nil(t, s)
		})
	}
}

func TestStoreKey_EveryWriteUsesFreshNonce(t *testing.T) {
	ctx := context.Background()
	path := storePath(t)
	c := newClock()

	s, err := OpenFile(ctx, path, password, testOptions(c)...)
	require.NoError(t, err)

	_, err = s.StoreKey(ctx, "a", testutil.Key(0x01))
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	c.Add(time.Minute)
	_, err = s.StoreKey(ctx, "b", testutil.Key(0x02))
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotEqual(t, first[:model.NonceSize], second[:model.NonceSize])
	assert.Greater(t, len(second), len(first), "whole map is rewritten")
}

func TestGetLatestAndList(t *testing.T) {
	ctx := context.Background()
	c := newClock()

	s, err := OpenFile(ctx, storePath(t), password, testOptions(c)...)
	require.NoError(t, err)

	_, ok := s.GetLatest("k")
	assert.False(t, ok)

	v1, err := s.StoreKey(ctx, "k", testutil.Key(0x01))
	require.NoError(t, err)
	c.Add(time.Hour)
	v2, err := s.StoreKey(ctx, "k", testutil.Key(0x02))
	require.NoError(t, err)
	other, err := s.StoreKey(ctx, "a", testutil.Key(0x03))
	require.NoError(t, err)

	latest, ok := s.GetLatest("k")
	require.True(t, ok)
	assert.Equal(t, v2, latest.ID)
	assert.Equal(t, testutil.Key(0x02), latest.Key)

	exact, ok := s.GetExact(v1)
	require.True(t, ok)
	assert.Equal(t, testutil.Key(0x01), exact.Key)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, []model.VersionedID{other, v1, v2}, []model.VersionedID{list[0].ID, list[1].ID, list[2].ID})
}

func TestGetLatest_BaseWithUnderscore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenFile(ctx, storePath(t), password, testOptions(newClock())...)
	require.NoError(t, err)

	id, err := s.StoreKey(ctx, "db_primary", testutil.Key(0x05))
	require.NoError(t, err)

	latest, ok := s.GetLatest("db_primary")
	require.True(t, ok)
	assert.Equal(t, id, latest.ID)

	_, ok = s.GetLatest("db")
	assert.False(t, ok)
}

func TestRetrieveKey_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, err := OpenFile(ctx, storePath(t), password, testOptions(newClock())...)
	require.NoError(t, err)

	input := testutil.Key(0x09)
	id, err := s.StoreKey(ctx, "k", input)
	require.NoError(t, err)
	input[0] = 0xff

	got, ok := s.RetrieveKey(id.String())
	require.True(t, ok)
	got[1] = 0xff

	again, _ := s.RetrieveKey(id.String())
	assert.Equal(t, testutil.Key(0x09), again)
}

func TestStoreKey_UploadFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	storage := &servermocks.Storage{}
	storage.On("Exists", mock.Anything, "ks.bin").Return(false, nil)
	storage.On("Upload", mock.Anything, "ks.bin", mock.Anything).Return(errors.New("disk full"))

	s, err := Open(ctx, storage, "ks.bin", password, testOptions(newClock())...)
	require.NoError(t, err)

	id, err := s.StoreKey(ctx, "k", testutil.Key(0x01))
	assert.ErrorIs(t, err, model.ErrIO)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, model.VersionedID{}, id)
	assert.Equal(t, 0, s.Len())

	storage.AssertExpectations(t)
}

func TestOpen_StorageFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("exists fails", func(t *testing.T) {
		storage := &servermocks.Storage{}
		storage.On("Exists", mock.Anything, "ks.bin").Return(false, errors.New("permission denied"))

		s, err := Open(ctx, storage, "ks.bin", password, testOptions(newClock())...)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, model.ErrIO)
	})

	t.Run("download fails", func(t *testing.T) {
		storage := &servermocks.Storage{}
		storage.On("Exists", mock.Anything, "ks.bin").Return(true, nil)
		storage.On("Download", mock.Anything, "ks.bin").Return(nil, errors.New("connection reset"))

		s, err := Open(ctx, storage, "ks.bin", password, testOptions(newClock())...)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, model.ErrIO)
		assert.NotErrorIs(t, err, model.ErrAuthenticationFailure)
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	path := storePath(t)

	s, err := OpenFile(ctx, path, password, testOptions(newClock())...)
	require.NoError(t, err)
	id, err := s.StoreKey(ctx, "k", testutil.Key(0x01))
	require.NoError(t, err)

	s.Close()

	_, ok := s.RetrieveKey(id.String())
	assert.False(t, ok)
	_, err = s.StoreKey(ctx, "k", testutil.Key(0x02))
	assert.ErrorIs(t, err, ErrClosed)

	reopened, err := OpenFile(ctx, path, password, testOptions(newClock())...)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
}

func TestOpen_WorksWithFileStorageRoot(t *testing.T) {
	ctx := context.Background()
	storage := file.New(t.TempDir())

	s, err := Open(ctx, storage, "team/keys.bin", password, testOptions(newClock())...)
	require.NoError(t, err)
	id, err := s.StoreKey(ctx, "deploy", testutil.Key(0x11))
	require.NoError(t, err)

	ok, err := storage.Exists(ctx, "team/keys.bin")
	require.NoError(t, err)
	assert.True(t, ok)

	reopened, err := Open(ctx, storage, "team/keys.bin", password, testOptions(newClock())...)
	require.NoError(t, err)
	entry, ok := reopened.GetExact(id)
	require.True(t, ok)
	assert.Equal(t, testutil.Key(0x11), entry.Key)
}
