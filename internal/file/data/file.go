package data

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chaindrop/chaindrop-backend/internal/file/biz"
	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
)

// FilePO represents the database model for a shared file.
type FilePO struct {
	ID                uint   `gorm:"primarykey"`
	FileID            string `gorm:"type:uuid;not null;uniqueIndex"`
	FileName          string `gorm:"size:512;not null"`
	FileSize          int64  `gorm:"not null"`
	ContentID         string `gorm:"size:128;not null"`
	PreviewContentID  string `gorm:"size:128"`
	PreviewMime       string `gorm:"size:64"`
	EncryptionKey     string `gorm:"size:64;not null"`
	Owner             string `gorm:"size:64;not null;index"`
	Price             int64  `gorm:"not null;default:0"`
	ExpiryTime        int64  `gorm:"not null"`
	MaxDownloads      int64  `gorm:"not null;default:0"`
	DownloadCount     int64  `gorm:"not null;default:0"`
	BurnAfterDownload bool   `gorm:"not null;default:false"`
	CrossChainEnabled bool   `gorm:"not null;default:false"`
	SharePasswordHash string `gorm:"size:64"`
	LinkExpiresAt     int64  `gorm:"not null;default:0"`
	MimeType          string `gorm:"size:128"`
	Tombstoned        bool   `gorm:"not null;default:false"`
	TombstonedAt      *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (FilePO) TableName() string {
	return "files"
}

// DownloadEventPO is one row of the append-only download audit log.
type DownloadEventPO struct {
	ID        uint   `gorm:"primarykey"`
	FileID    string `gorm:"type:uuid;not null;index"`
	UserAddr  string `gorm:"size:64;not null"`
	TxHash    string `gorm:"size:80"`
	Timestamp time.Time
}

func (DownloadEventPO) TableName() string {
	return "download_events"
}

// FileRepo implements biz.FileRepo on PostgreSQL.
type FileRepo struct {
	db *gorm.DB
}

func NewFileRepo(db *gorm.DB) biz.FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) Create(ctx context.Context, file *biz.FileRecord) error {
	return r.db.WithContext(ctx).Create(toFilePO(file)).Error
}

func (r *FileRepo) GetByFileID(ctx context.Context, fileID string) (*biz.FileRecord, error) {
	var po FilePO
	if err := r.db.WithContext(ctx).Where("file_id = ?", fileID).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrFileNotFound)
		}
		return nil, err
	}

	var events []DownloadEventPO
	if err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("timestamp ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}

	return toFileRecord(&po, events), nil
}

func (r *FileRepo) ListByOwner(ctx context.Context, owner string) ([]*biz.FileRecord, error) {
	var pos []FilePO
	if err := r.db.WithContext(ctx).
		Where("owner = ? AND tombstoned = false", owner).
		Order("created_at DESC").
		Find(&pos).Error; err != nil {
		return nil, err
	}

	files := make([]*biz.FileRecord, len(pos))
	for i := range pos {
		files[i] = toFileRecord(&pos[i], nil)
	}
	return files, nil
}

// AppendDownload inserts the audit event and increments the counter in one
// transaction. The increment is done in SQL so concurrent downloads never
// lose a count.
func (r *FileRepo) AppendDownload(ctx context.Context, fileID string, event biz.DownloadEvent) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&FilePO{}).
			Where("file_id = ?", fileID).
			UpdateColumn("download_count", gorm.Expr("download_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.ErrFileNotFound)
		}

		if err := tx.Create(&DownloadEventPO{
			FileID:    fileID,
			UserAddr:  event.User,
			TxHash:    event.TxHash,
			Timestamp: event.Timestamp,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&FilePO{}).
			Where("file_id = ?", fileID).
			Select("download_count").
			Scan(&count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Tombstone soft-deletes the record; the row and its audit events survive.
func (r *FileRepo) Tombstone(ctx context.Context, fileID string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&FilePO{}).
		Where("file_id = ?", fileID).
		Updates(map[string]interface{}{
			"tombstoned":    true,
			"tombstoned_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	return nil
}

func toFilePO(f *biz.FileRecord) *FilePO {
	return &FilePO{
		FileID:            f.FileID,
		FileName:          f.FileName,
		FileSize:          f.FileSize,
		ContentID:         f.ContentID,
		PreviewContentID:  f.PreviewContentID,
		PreviewMime:       f.PreviewMime,
		EncryptionKey:     f.EncryptionKey,
		Owner:             f.Owner,
		Price:             f.Price,
		ExpiryTime:        f.ExpiryTime,
		MaxDownloads:      f.MaxDownloads,
		DownloadCount:     f.DownloadCount,
		BurnAfterDownload: f.BurnAfterDownload,
		CrossChainEnabled: f.CrossChainEnabled,
		SharePasswordHash: f.SharePasswordHash,
		LinkExpiresAt:     f.LinkExpiresAt,
		MimeType:          f.MimeType,
		Tombstoned:        f.Tombstoned,
		CreatedAt:         f.CreatedAt,
	}
}

func toFileRecord(po *FilePO, events []DownloadEventPO) *biz.FileRecord {
	f := &biz.FileRecord{
		FileID:            po.FileID,
		FileName:          po.FileName,
		FileSize:          po.FileSize,
		ContentID:         po.ContentID,
		PreviewContentID:  po.PreviewContentID,
		PreviewMime:       po.PreviewMime,
		EncryptionKey:     po.EncryptionKey,
		Owner:             po.Owner,
		Price:             po.Price,
		ExpiryTime:        po.ExpiryTime,
		MaxDownloads:      po.MaxDownloads,
		DownloadCount:     po.DownloadCount,
		BurnAfterDownload: po.BurnAfterDownload,
		CrossChainEnabled: po.CrossChainEnabled,
		SharePasswordHash: po.SharePasswordHash,
		LinkExpiresAt:     po.LinkExpiresAt,
		MimeType:          po.MimeType,
		Tombstoned:        po.Tombstoned,
		CreatedAt:         po.CreatedAt,
	}
	for _, e := range events {
		f.Downloads = append(f.Downloads, biz.DownloadEvent{
			User:      e.UserAddr,
			Timestamp: e.Timestamp,
			TxHash:    e.TxHash,
		})
	}
	return f
}
