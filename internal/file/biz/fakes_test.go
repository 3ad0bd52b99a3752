package biz

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/chaindrop/chaindrop-backend/internal/chain"
	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
)

type fakeFileRepo struct {
	mu        sync.Mutex
	files     map[string]*FileRecord
	createErr error
	appendErr error
}

func newFakeFileRepo(files ...*FileRecord) *fakeFileRepo {
	r := &fakeFileRepo{files: make(map[string]*FileRecord)}
	for _, f := range files {
		r.files[f.FileID] = f
	}
	return r
}

func (r *fakeFileRepo) Create(ctx context.Context, file *FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.files[file.FileID] = file
	return nil
}

func (r *fakeFileRepo) GetByFileID(ctx context.Context, fileID string) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[fileID]
	if !ok {
		return nil, apperrors.New(apperrors.ErrFileNotFound)
	}
	cp := *file
	return &cp, nil
}

func (r *fakeFileRepo) ListByOwner(ctx context.Context, owner string) ([]*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*FileRecord
	for _, f := range r.files {
		if f.Owner == owner {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) AppendDownload(ctx context.Context, fileID string, event DownloadEvent) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return 0, r.appendErr
	}
	file, ok := r.files[fileID]
	if !ok {
		return 0, apperrors.New(apperrors.ErrFileNotFound)
	}
	file.Downloads = append(file.Downloads, event)
	file.DownloadCount++
	return file.DownloadCount, nil
}

func (r *fakeFileRepo) Tombstone(ctx context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[fileID]
	if !ok {
		return apperrors.New(apperrors.ErrFileNotFound)
	}
	file.Tombstoned = true
	return nil
}

type fakeChain struct {
	mu sync.Mutex

	hasAccess    bool
	hasAccessErr error
	terms        *chain.Terms
	termsErr     error
	downloadTx   string
	recordOK     bool

	hasAccessCalls      int
	getFileCalls        int
	createFileCalls     int
	recordDownloadCalls int
}

func (c *fakeChain) HasAccess(ctx context.Context, fileID, address string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasAccessCalls++
	return c.hasAccess, c.hasAccessErr
}

func (c *fakeChain) GetFile(ctx context.Context, fileID string) (*chain.Terms, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getFileCalls++
	return c.terms, c.termsErr
}

func (c *fakeChain) TryCreateFile(ctx context.Context, fileID, contentID string, price *big.Int, expiryTime, maxDownloads int64, burnAfterDownload bool) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createFileCalls++
	return "0xcreate", c.recordOK
}

func (c *fakeChain) TryRecordDownload(ctx context.Context, fileID, address string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordDownloadCalls++
	return c.downloadTx, c.recordOK
}

type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	putErr   error
	getErr   error
	unpinned []string
	putCalls int
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Put(ctx context.Context, data []byte, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putCalls++
	if s.putErr != nil {
		return "", s.putErr
	}
	s.nextID++
	cid := fmt.Sprintf("cid-%d", s.nextID)
	s.objects[cid] = data
	return cid, nil
}

func (s *fakeStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[contentID]
	if !ok {
		return nil, fmt.Errorf("no such content %s", contentID)
	}
	return data, nil
}

func (s *fakeStore) Unpin(ctx context.Context, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unpinned = append(s.unpinned, contentID)
	delete(s.objects, contentID)
	return nil
}

type fakePreviewer struct {
	preview []byte
	mime    string
	ok      bool
}

func (p *fakePreviewer) Derive(data []byte, mimeType string) ([]byte, string, bool) {
	return p.preview, p.mime, p.ok
}
