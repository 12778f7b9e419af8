package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/facebookgo/atomicfile"
	lock "github.com/ipfs/go-fs-lock"

	"github.com/dtroode/gophkeeper-vault/internal/model"
)

const (
	filePerm = 0o600
	dirPerm  = 0o700

	// LockSuffix is appended to a store file name to form its lock file.
	LockSuffix = ".lock"
)

var _ model.Storage = (*Storage)(nil)

// Storage keeps objects as files. Relative keys are resolved against root;
// absolute keys are used as is.
type Storage struct {
	root string
}

// New creates a file storage rooted at root. An empty root means the
// working directory.
func New(root string) *Storage {
	return &Storage{root: root}
}

func (s *Storage) path(key string) string {
	if filepath.IsAbs(key) || s.root == "" {
		return filepath.Clean(key)
	}
	return filepath.Join(s.root, key)
}

// Upload replaces the file atomically: data goes to a temporary file that is
// renamed over the target only after a complete write.
func (s *Storage) Upload(_ context.Context, key string, reader io.Reader) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := atomicfile.New(p, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		_ = f.Abort()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to commit file: %w", err)
	}
	return nil
}

// Download opens the file for reading.
func (s *Storage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file %q: %w", key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete removes the file. Deleting a missing file is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists reports whether a regular file exists for key.
func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Lock takes an exclusive inter-process lock for the store file at key.
// The lock lives in "<key>.lock" next to the file and is released by
// closing the returned io.Closer.
func (s *Storage) Lock(key string) (io.Closer, error) {
	p := s.path(key)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	closer, err := lock.Lock(dir, filepath.Base(p)+LockSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %q: %w", key, err)
	}
	return closer, nil
}
