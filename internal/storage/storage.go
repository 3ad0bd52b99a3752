// Package storage provides content-addressed storage for encrypted file
// bytes. Content identifiers are opaque strings owned by the backend.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/conf"
)

// ContentStore is the storage contract the content pipeline and download
// executor depend on. Unpin is advisory: backends release the content but
// callers treat failures as best-effort.
type ContentStore interface {
	Put(ctx context.Context, data []byte, name string) (string, error)
	Get(ctx context.Context, contentID string) ([]byte, error)
	Unpin(ctx context.Context, contentID string) error
}

// New builds the configured backend.
func New(cfg conf.StorageConfig, logger *zap.Logger) (ContentStore, error) {
	switch cfg.Backend {
	case "ipfs":
		return NewIPFSStore(cfg.IPFS, logger), nil
	case "minio":
		return NewMinIOStore(cfg.MinIO, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
