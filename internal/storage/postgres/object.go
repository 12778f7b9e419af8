package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/dtroode/gophkeeper-vault/internal/model"
)

var _ model.Storage = (*ObjectRepository)(nil)

// ObjectRepository stores named blobs in the vault_objects table.
type ObjectRepository struct {
	db *Connection
}

func NewObjectRepository(db *Connection) *ObjectRepository {
	return &ObjectRepository{
		db: db,
	}
}

func (r *ObjectRepository) Upload(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read object data: %w", err)
	}

	query := `INSERT INTO vault_objects (name, data)
			  VALUES ($1, $2)
			  ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`

	_, err = r.db.ExecContext(ctx, query, key, data)
	if err != nil {
		return fmt.Errorf("failed to upsert object: %w", err)
	}

	return nil
}

func (r *ObjectRepository) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	var data []byte
	query := `SELECT data FROM vault_objects WHERE name = $1`

	err := r.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("object %q: %w", key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *ObjectRepository) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM vault_objects WHERE name = $1`

	_, err := r.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

func (r *ObjectRepository) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM vault_objects WHERE name = $1)`

	err := r.db.QueryRowContext(ctx, query, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return exists, nil
}
