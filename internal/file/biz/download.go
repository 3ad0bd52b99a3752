package biz

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
	"github.com/chaindrop/chaindrop-backend/internal/pkg/filecrypto"
	"github.com/chaindrop/chaindrop-backend/internal/storage"
)

// DownloadResult carries the decrypted content back to the HTTP layer.
type DownloadResult struct {
	Data     []byte
	FileName string
	MimeType string
}

// DownloadUseCase executes downloads after the caller has obtained a
// Granted decision from the AccessGate for the same (file, requester) pair.
type DownloadUseCase struct {
	repo   FileRepo
	store  storage.ContentStore
	chain  ChainRecorder
	logger *zap.Logger
	now    func() time.Time
}

func NewDownloadUseCase(repo FileRepo, store storage.ContentStore, chainRec ChainRecorder, logger *zap.Logger) *DownloadUseCase {
	return &DownloadUseCase{
		repo:   repo,
		store:  store,
		chain:  chainRec,
		logger: logger,
		now:    time.Now,
	}
}

// Execute fetches and decrypts the content, records the download, and
// burns the file once the counter reaches its limit. Decryption failures
// surface before any counter or audit mutation.
func (uc *DownloadUseCase) Execute(ctx context.Context, fileID, requester string) (*DownloadResult, error) {
	file, err := uc.repo.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Tombstoned {
		return nil, apperrors.New(apperrors.ErrFileNotFound)
	}

	ciphertext, err := uc.store.Get(ctx, file.ContentID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable)
	}

	plaintext, err := filecrypto.Decrypt(ciphertext, file.EncryptionKey)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDecryptionFailed)
	}

	// Audit record on-chain is fire-and-forget; the user gets the bytes
	// whether or not the transaction lands.
	txHash, _ := uc.chain.TryRecordDownload(ctx, fileID, requester)

	count, err := uc.repo.AppendDownload(ctx, fileID, DownloadEvent{
		User:      requester,
		Timestamp: uc.now(),
		TxHash:    txHash,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	if file.BurnAfterDownload && count >= file.MaxDownloads {
		uc.burn(ctx, file)
	}

	uc.logger.Info("file downloaded",
		zap.String("file_id", fileID),
		zap.String("user", requester),
		zap.Int64("download_count", count),
		zap.String("tx_hash", txHash),
	)

	return &DownloadResult{
		Data:     plaintext,
		FileName: file.FileName,
		MimeType: file.MimeType,
	}, nil
}

// burn tombstones the record (audit history survives) and releases the
// stored content best-effort.
func (uc *DownloadUseCase) burn(ctx context.Context, file *FileRecord) {
	if err := uc.repo.Tombstone(ctx, file.FileID); err != nil {
		uc.logger.Error("tombstone failed",
			zap.String("file_id", file.FileID),
			zap.Error(err),
		)
		return
	}

	if err := uc.store.Unpin(ctx, file.ContentID); err != nil {
		uc.logger.Warn("content unpin failed",
			zap.String("file_id", file.FileID),
			zap.String("content_id", file.ContentID),
			zap.Error(err),
		)
	}
	if file.PreviewContentID != "" {
		if err := uc.store.Unpin(ctx, file.PreviewContentID); err != nil {
			uc.logger.Warn("preview unpin failed",
				zap.String("file_id", file.FileID),
				zap.Error(err),
			)
		}
	}

	uc.logger.Info("file burned after download",
		zap.String("file_id", file.FileID),
	)
}
