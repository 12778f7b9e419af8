package keystore

import (
	"context"

	"github.com/dtroode/gophkeeper-vault/internal/storage/file"
)

// OpenFile opens the store kept in the file at path.
func OpenFile(ctx context.Context, path, password string, opts ...Option) (*Store, error) {
	return Open(ctx, file.New(""), path, password, opts...)
}
