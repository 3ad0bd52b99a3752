package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/conf"
)

// MinIOStore is a content-addressed store on top of a MinIO bucket: the
// object key is the SHA-256 of the content, so identical bytes dedupe to a
// single object.
type MinIOStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

func NewMinIOStore(cfg conf.MinIOConfig, logger *zap.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
		logger.Info("created storage bucket", zap.String("bucket", cfg.Bucket))
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (s *MinIOStore) Put(ctx context.Context, data []byte, name string) (string, error) {
	sum := sha256.Sum256(data)
	contentID := hex.EncodeToString(sum[:])

	// Identical content is already stored under the same key.
	if _, err := s.client.StatObject(ctx, s.bucket, contentID, minio.StatObjectOptions{}); err == nil {
		return contentID, nil
	}

	_, err := s.client.PutObject(ctx, s.bucket, contentID,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType:  "application/octet-stream",
			UserMetadata: map[string]string{"x-amz-meta-filename": name},
		})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	s.logger.Debug("content stored",
		zap.String("content_id", contentID),
		zap.Int("size", len(data)),
	)
	return contentID, nil
}

func (s *MinIOStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, contentID, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (s *MinIOStore) Unpin(ctx context.Context, contentID string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, contentID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
