package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chaindrop/chaindrop-backend/internal/file/biz"
)

func TestFileConverters(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	record := &biz.FileRecord{
		FileID:            "7cf9a7de-0000-4000-8000-000000000001",
		FileName:          "report.pdf",
		FileSize:          1024,
		ContentID:         "QmExampleCID",
		PreviewContentID:  "QmPreviewCID",
		PreviewMime:       "image/png",
		EncryptionKey:     "deadbeef",
		Owner:             "0xowner",
		Price:             5_000_000,
		ExpiryTime:        now.Add(24 * time.Hour).Unix(),
		MaxDownloads:      3,
		BurnAfterDownload: true,
		CrossChainEnabled: true,
		SharePasswordHash: "abc123",
		LinkExpiresAt:     now.Add(12 * time.Hour).Unix(),
		MimeType:          "application/pdf",
		CreatedAt:         now,
	}

	po := toFilePO(record)
	assert.Equal(t, record.FileID, po.FileID)
	assert.Equal(t, record.Price, po.Price)
	assert.Equal(t, record.MaxDownloads, po.MaxDownloads)
	assert.True(t, po.BurnAfterDownload)
	assert.True(t, po.CrossChainEnabled)

	events := []DownloadEventPO{
		{FileID: record.FileID, UserAddr: "0xbuyer", TxHash: "0xabc", Timestamp: now},
		{FileID: record.FileID, UserAddr: "0xother", TxHash: "", Timestamp: now.Add(time.Minute)},
	}
	back := toFileRecord(po, events)
	assert.Equal(t, record.FileID, back.FileID)
	assert.Equal(t, record.EncryptionKey, back.EncryptionKey)
	assert.Equal(t, record.SharePasswordHash, back.SharePasswordHash)
	assert.Equal(t, record.LinkExpiresAt, back.LinkExpiresAt)
	assert.Len(t, back.Downloads, 2)
	assert.Equal(t, "0xbuyer", back.Downloads[0].User)
	assert.Equal(t, "0xabc", back.Downloads[0].TxHash)
	assert.Empty(t, back.Downloads[1].TxHash)
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "files", FilePO{}.TableName())
	assert.Equal(t, "download_events", DownloadEventPO{}.TableName())
}
