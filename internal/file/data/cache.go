package data

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/file/biz"
)

const (
	fileCacheKeyPrefix = "file:meta:"
	fileCacheTTL       = 5 * time.Minute
)

// CachedFileRepo is a read-through Redis cache in front of the database
// repo. Mutations invalidate; cache failures degrade to the database.
type CachedFileRepo struct {
	inner  biz.FileRepo
	rdb    *redis.Client
	logger *zap.Logger
}

func NewCachedFileRepo(inner biz.FileRepo, rdb *redis.Client, logger *zap.Logger) biz.FileRepo {
	return &CachedFileRepo{inner: inner, rdb: rdb, logger: logger}
}

func (r *CachedFileRepo) Create(ctx context.Context, file *biz.FileRecord) error {
	return r.inner.Create(ctx, file)
}

func (r *CachedFileRepo) GetByFileID(ctx context.Context, fileID string) (*biz.FileRecord, error) {
	key := fileCacheKeyPrefix + fileID
	if raw, err := r.rdb.Get(ctx, key).Bytes(); err == nil {
		var file biz.FileRecord
		if err := json.Unmarshal(raw, &file); err == nil {
			return &file, nil
		}
		// Corrupt entry, drop it and fall through.
		r.rdb.Del(ctx, key)
	}

	file, err := r.inner.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(file); err == nil {
		if err := r.rdb.Set(ctx, key, raw, fileCacheTTL).Err(); err != nil {
			r.logger.Warn("file cache set failed",
				zap.String("file_id", fileID),
				zap.Error(err),
			)
		}
	}
	return file, nil
}

func (r *CachedFileRepo) ListByOwner(ctx context.Context, owner string) ([]*biz.FileRecord, error) {
	return r.inner.ListByOwner(ctx, owner)
}

func (r *CachedFileRepo) AppendDownload(ctx context.Context, fileID string, event biz.DownloadEvent) (int64, error) {
	count, err := r.inner.AppendDownload(ctx, fileID, event)
	if err == nil {
		r.invalidate(ctx, fileID)
	}
	return count, err
}

func (r *CachedFileRepo) Tombstone(ctx context.Context, fileID string) error {
	err := r.inner.Tombstone(ctx, fileID)
	if err == nil {
		r.invalidate(ctx, fileID)
	}
	return err
}

func (r *CachedFileRepo) invalidate(ctx context.Context, fileID string) {
	if err := r.rdb.Del(ctx, fileCacheKeyPrefix+fileID).Err(); err != nil {
		r.logger.Warn("file cache invalidation failed",
			zap.String("file_id", fileID),
			zap.Error(err),
		)
	}
}
