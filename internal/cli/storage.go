package cli

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dtroode/gophkeeper-vault/internal/config"
	"github.com/dtroode/gophkeeper-vault/internal/model"
	"github.com/dtroode/gophkeeper-vault/internal/storage/file"
	miniostorage "github.com/dtroode/gophkeeper-vault/internal/storage/minio"
	"github.com/dtroode/gophkeeper-vault/internal/storage/postgres"
)

// openStorage connects the configured backend. The returned func releases it.
func (a *App) openStorage(ctx context.Context) (model.Storage, func(), error) {
	switch a.cfg.KeyStore.Backend {
	case config.BackendMinio:
		minioClient, err := minio.New(a.cfg.Storage.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(a.cfg.Storage.AccessKey, a.cfg.Storage.SecretKey, ""),
			Secure: a.cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to create minio client: %w", model.ErrIO, err)
		}
		client, err := miniostorage.NewClient(ctx, minioClient, a.cfg.Storage.Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to initialize storage client: %w", model.ErrIO, err)
		}
		return client, func() {}, nil

	case config.BackendPostgres:
		db, err := postgres.NewConnection(ctx, a.cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to initialize storage: %w", model.ErrIO, err)
		}
		return postgres.NewObjectRepository(db), func() {
			if err := db.Close(); err != nil {
				a.logger.Error("failed to close database", "error", err)
			}
		}, nil

	default:
		return file.New(""), func() {}, nil
	}
}
