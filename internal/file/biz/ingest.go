package biz

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
	"github.com/chaindrop/chaindrop-backend/internal/pkg/filecrypto"
)

// IngestPolicy carries the sharing terms chosen at upload time. Price,
// expiry, max downloads and the burn flag are mirrored on-chain; the share
// password and link expiry stay off-chain only.
type IngestPolicy struct {
	Owner             string
	Price             int64
	ExpiryTime        int64
	MaxDownloads      int64
	BurnAfterDownload bool
	CrossChainEnabled bool
	SharePassword     string
	LinkExpiresAt     int64
}

// IngestItem is one file in a multi-file upload.
type IngestItem struct {
	Data     []byte
	FileName string
	MimeType string
}

// IngestResult reports per-item success or failure; one item failing never
// aborts the rest of the batch.
type IngestResult struct {
	FileID    string `json:"fileId,omitempty"`
	FileName  string `json:"fileName"`
	ShareLink string `json:"shareLink,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Ingest encrypts the raw bytes with a fresh key, uploads the ciphertext,
// derives a preview when possible, persists the record, and registers the
// terms on-chain best-effort. The off-chain record is the source of truth
// until the chain catches up.
func (uc *FileUseCase) Ingest(ctx context.Context, raw []byte, fileName, mimeType string, policy IngestPolicy) (*FileRecord, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	key, err := filecrypto.GenerateKey()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrFileIngestFailed)
	}

	ciphertext, err := filecrypto.Encrypt(raw, key)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrFileIngestFailed)
	}

	contentID, err := uc.store.Put(ctx, ciphertext, fileName)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageUnavailable)
	}

	// Previews are intentionally public and low-fidelity; they are stored
	// unencrypted and a failure here never fails ingestion.
	previewContentID, previewMime := "", ""
	if preview, pMime, ok := uc.previewer.Derive(raw, mimeType); ok {
		pcid, err := uc.store.Put(ctx, preview, "preview_"+fileName)
		if err != nil {
			uc.logger.Warn("preview upload failed",
				zap.String("file_name", fileName),
				zap.Error(err),
			)
		} else {
			previewContentID, previewMime = pcid, pMime
		}
	}

	file := &FileRecord{
		FileID:            newFileID(),
		FileName:          fileName,
		FileSize:          int64(len(raw)),
		ContentID:         contentID,
		PreviewContentID:  previewContentID,
		PreviewMime:       previewMime,
		EncryptionKey:     key,
		Owner:             policy.Owner,
		Price:             policy.Price,
		ExpiryTime:        policy.ExpiryTime,
		MaxDownloads:      policy.MaxDownloads,
		BurnAfterDownload: policy.BurnAfterDownload,
		CrossChainEnabled: policy.CrossChainEnabled,
		SharePasswordHash: hashSharePassword(policy.SharePassword),
		LinkExpiresAt:     policy.LinkExpiresAt,
		MimeType:          mimeType,
		CreatedAt:         uc.now(),
	}

	if err := uc.repo.Create(ctx, file); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrFileIngestFailed)
	}

	uc.chain.TryCreateFile(ctx, file.FileID, file.ContentID,
		big.NewInt(file.Price), file.ExpiryTime, file.MaxDownloads, file.BurnAfterDownload)

	uc.logger.Info("file ingested",
		zap.String("file_id", file.FileID),
		zap.String("file_name", file.FileName),
		zap.Int64("size", file.FileSize),
		zap.Bool("has_preview", previewContentID != ""),
	)
	return file, nil
}

// IngestAll processes a batch sequentially and independently.
func (uc *FileUseCase) IngestAll(ctx context.Context, items []IngestItem, policy IngestPolicy) []IngestResult {
	results := make([]IngestResult, 0, len(items))
	for _, item := range items {
		file, err := uc.Ingest(ctx, item.Data, item.FileName, item.MimeType, policy)
		if err != nil {
			uc.logger.Error("ingest failed",
				zap.String("file_name", item.FileName),
				zap.Error(err),
			)
			results = append(results, IngestResult{
				FileName: item.FileName,
				Error:    apperrors.GetMessage(apperrors.ExtractCode(err)),
			})
			continue
		}
		results = append(results, IngestResult{
			FileID:    file.FileID,
			FileName:  file.FileName,
			ShareLink: uc.ShareLink(file.FileID),
		})
	}
	return results
}
