package biz

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
	"github.com/chaindrop/chaindrop-backend/internal/pkg/filecrypto"
)

func newTestFileUseCase(repo *fakeFileRepo, store *fakeStore, ch *fakeChain, prev PreviewGenerator) *FileUseCase {
	if prev == nil {
		prev = &fakePreviewer{}
	}
	return NewFileUseCase(repo, store, ch, prev, "https://drop.example", zap.NewNop())
}

func TestIngestHappyPath(t *testing.T) {
	repo := newFakeFileRepo()
	store := newFakeStore()
	ch := &fakeChain{recordOK: true}
	uc := newTestFileUseCase(repo, store, ch, nil)

	raw := []byte("the quick brown fox")
	file, err := uc.Ingest(context.Background(), raw, "fox.txt", "text/plain", IngestPolicy{
		Owner:        "0xowner",
		Price:        5_000_000,
		ExpiryTime:   1893456000,
		MaxDownloads: 3,
	})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if file.FileID == "" {
		t.Error("file id not generated")
	}
	if file.FileSize != int64(len(raw)) {
		t.Errorf("size = %d, want %d", file.FileSize, len(raw))
	}
	if file.EncryptionKey == "" {
		t.Error("encryption key not generated")
	}

	// Stored bytes must be ciphertext that round-trips with the record's key.
	stored, err := store.Get(context.Background(), file.ContentID)
	if err != nil {
		t.Fatalf("stored content missing: %v", err)
	}
	plain, err := filecrypto.Decrypt(stored, file.EncryptionKey)
	if err != nil {
		t.Fatalf("stored content does not decrypt: %v", err)
	}
	if string(plain) != string(raw) {
		t.Error("decrypted content mismatch")
	}

	if _, err := repo.GetByFileID(context.Background(), file.FileID); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
	if ch.createFileCalls != 1 {
		t.Errorf("expected one on-chain registration, got %d", ch.createFileCalls)
	}
}

func TestIngestStorageFailure(t *testing.T) {
	repo := newFakeFileRepo()
	store := newFakeStore()
	store.putErr = errors.New("gateway timeout")
	uc := newTestFileUseCase(repo, store, &fakeChain{}, nil)

	_, err := uc.Ingest(context.Background(), []byte("data"), "a.bin", "", IngestPolicy{})
	if !apperrors.Is(err, apperrors.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if len(repo.files) != 0 {
		t.Error("record persisted despite storage failure")
	}
}

func TestIngestPasswordHashed(t *testing.T) {
	repo := newFakeFileRepo()
	uc := newTestFileUseCase(repo, newFakeStore(), &fakeChain{}, nil)

	file, err := uc.Ingest(context.Background(), []byte("x"), "x.txt", "text/plain",
		IngestPolicy{SharePassword: "hunter2"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if file.SharePasswordHash == "hunter2" || file.SharePasswordHash == "" {
		t.Error("share password stored without hashing")
	}
	if !filecrypto.VerifyPassword("hunter2", file.SharePasswordHash) {
		t.Error("stored hash does not verify the original password")
	}
}

func TestIngestPreviewBestEffort(t *testing.T) {
	t.Run("preview stored", func(t *testing.T) {
		store := newFakeStore()
		uc := newTestFileUseCase(newFakeFileRepo(), store, &fakeChain{},
			&fakePreviewer{preview: []byte("blurry"), mime: "image/png", ok: true})

		file, err := uc.Ingest(context.Background(), []byte("img"), "p.png", "image/png", IngestPolicy{})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if file.PreviewContentID == "" || file.PreviewMime != "image/png" {
			t.Errorf("preview not recorded: %+v", file)
		}
	})

	t.Run("no preview for unsupported format", func(t *testing.T) {
		uc := newTestFileUseCase(newFakeFileRepo(), newFakeStore(), &fakeChain{}, &fakePreviewer{})
		file, err := uc.Ingest(context.Background(), []byte("zip"), "a.zip", "application/zip", IngestPolicy{})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if file.PreviewContentID != "" {
			t.Error("unexpected preview content id")
		}
	})
}

func TestIngestAllPartialFailure(t *testing.T) {
	repo := newFakeFileRepo()

	items := []IngestItem{
		{Data: []byte("one"), FileName: "one.txt", MimeType: "text/plain"},
		{Data: []byte("two"), FileName: "two.txt", MimeType: "text/plain"},
		{Data: []byte("three"), FileName: "three.txt", MimeType: "text/plain"},
	}

	// Fail only the second upload.
	calls := 0
	store := &selectiveFailStore{inner: newFakeStore(), failOn: 2, calls: &calls}
	uc := NewFileUseCase(repo, store, &fakeChain{}, &fakePreviewer{}, "https://drop.example", zap.NewNop())
	results := uc.IngestAll(context.Background(), items, IngestPolicy{Owner: "0xowner"})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Error != "" || results[0].FileID == "" {
		t.Errorf("first item should succeed: %+v", results[0])
	}
	if results[1].Error == "" {
		t.Errorf("second item should fail: %+v", results[1])
	}
	if results[2].Error != "" || results[2].FileID == "" {
		t.Errorf("third item should succeed after a failure: %+v", results[2])
	}
	if results[0].ShareLink != "https://drop.example/file/"+results[0].FileID {
		t.Errorf("unexpected share link %q", results[0].ShareLink)
	}
}

type selectiveFailStore struct {
	inner  *fakeStore
	failOn int
	calls  *int
}

func (s *selectiveFailStore) Put(ctx context.Context, data []byte, name string) (string, error) {
	*s.calls++
	if *s.calls == s.failOn {
		return "", errors.New("injected put failure")
	}
	return s.inner.Put(ctx, data, name)
}

func (s *selectiveFailStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	return s.inner.Get(ctx, contentID)
}

func (s *selectiveFailStore) Unpin(ctx context.Context, contentID string) error {
	return s.inner.Unpin(ctx, contentID)
}
