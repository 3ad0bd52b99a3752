package biz

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/chain"
	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
	"github.com/chaindrop/chaindrop-backend/internal/pkg/filecrypto"
	"github.com/chaindrop/chaindrop-backend/internal/storage"
)

// FileRecord is the off-chain shadow of a shared file: on-chain terms as
// mirrored at creation, plus UI-only policy (share password, link expiry,
// preview) that has no on-chain representation.
type FileRecord struct {
	FileID            string
	FileName          string
	FileSize          int64
	ContentID         string
	PreviewContentID  string
	PreviewMime       string
	EncryptionKey     string // sensitive, never serialized outward
	Owner             string
	Price             int64 // settlement currency smallest unit
	ExpiryTime        int64 // unix, mirrored on-chain
	MaxDownloads      int64
	DownloadCount     int64
	BurnAfterDownload bool
	CrossChainEnabled bool
	SharePasswordHash string
	LinkExpiresAt     int64 // unix, 0 means no link expiry
	MimeType          string
	Tombstoned        bool
	CreatedAt         time.Time
	Downloads         []DownloadEvent
}

// DownloadEvent is an append-only audit record owned by one FileRecord.
type DownloadEvent struct {
	User      string
	Timestamp time.Time
	TxHash    string // empty when the chain write failed or was skipped
}

// FileRepo is the entitlement registry's persistence contract.
type FileRepo interface {
	Create(ctx context.Context, file *FileRecord) error
	GetByFileID(ctx context.Context, fileID string) (*FileRecord, error)
	ListByOwner(ctx context.Context, owner string) ([]*FileRecord, error)
	// AppendDownload inserts the event and atomically increments the
	// download counter, returning the new count.
	AppendDownload(ctx context.Context, fileID string, event DownloadEvent) (int64, error)
	Tombstone(ctx context.Context, fileID string) error
}

// ChainReader is the authoritative entitlement source.
type ChainReader interface {
	HasAccess(ctx context.Context, fileID, address string) (bool, error)
	GetFile(ctx context.Context, fileID string) (*chain.Terms, error)
}

// ChainRecorder covers the fire-and-forget audit writes.
type ChainRecorder interface {
	TryCreateFile(ctx context.Context, fileID, contentID string, price *big.Int, expiryTime, maxDownloads int64, burnAfterDownload bool) (string, bool)
	TryRecordDownload(ctx context.Context, fileID, address string) (string, bool)
}

// PreviewGenerator derives a public low-fidelity preview for supported
// formats; ok=false means the format yields no preview.
type PreviewGenerator interface {
	Derive(data []byte, mimeType string) (preview []byte, previewMime string, ok bool)
}

// FileUseCase owns ingestion and metadata reads.
type FileUseCase struct {
	repo        FileRepo
	store       storage.ContentStore
	chain       ChainRecorder
	previewer   PreviewGenerator
	frontendURL string
	logger      *zap.Logger
	now         func() time.Time
}

func NewFileUseCase(repo FileRepo, store storage.ContentStore, chainRec ChainRecorder, previewer PreviewGenerator, frontendURL string, logger *zap.Logger) *FileUseCase {
	return &FileUseCase{
		repo:        repo,
		store:       store,
		chain:       chainRec,
		previewer:   previewer,
		frontendURL: frontendURL,
		logger:      logger,
		now:         time.Now,
	}
}

// GetMetadata resolves a file for page display. Tombstoned records and
// expired share links are reported before anything else about the file.
func (uc *FileUseCase) GetMetadata(ctx context.Context, fileID string) (*FileRecord, error) {
	file, err := uc.repo.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Tombstoned {
		return nil, apperrors.New(apperrors.ErrFileNotFound)
	}
	if file.LinkExpiresAt > 0 && uc.now().Unix() >= file.LinkExpiresAt {
		return nil, apperrors.New(apperrors.ErrLinkExpired)
	}
	return file, nil
}

// ListByOwner returns the owner's files for the dashboard, newest first.
func (uc *FileUseCase) ListByOwner(ctx context.Context, owner string) ([]*FileRecord, error) {
	return uc.repo.ListByOwner(ctx, owner)
}

// GetPreview returns the stored preview bytes for a file, if any.
func (uc *FileUseCase) GetPreview(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := uc.repo.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	if file.Tombstoned || file.PreviewContentID == "" {
		return nil, "", apperrors.New(apperrors.ErrPreviewUnavailable)
	}

	data, err := uc.store.Get(ctx, file.PreviewContentID)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrStorageUnavailable)
	}
	return data, file.PreviewMime, nil
}

// ShareLink builds the public link for a file.
func (uc *FileUseCase) ShareLink(fileID string) string {
	return uc.frontendURL + "/file/" + fileID
}

func newFileID() string {
	return uuid.NewString()
}

func hashSharePassword(password string) string {
	if password == "" {
		return ""
	}
	return filecrypto.HashPassword(password)
}
