package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/conf"
)

// IPFSStore talks to a Pinata-compatible pinning service for uploads and an
// IPFS HTTP gateway for fetches.
type IPFSStore struct {
	cfg        conf.IPFSConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewIPFSStore(cfg conf.IPFSConfig, logger *zap.Logger) *IPFSStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &IPFSStore{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Put pins the given bytes and returns the resulting content identifier.
func (s *IPFSStore) Put(ctx context.Context, data []byte, name string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}

	meta, _ := json.Marshal(map[string]string{"name": name})
	if err := writer.WriteField("pinataMetadata", string(meta)); err != nil {
		return "", fmt.Errorf("write metadata field: %w", err)
	}
	if err := writer.WriteField("pinataOptions", `{"cidVersion":0}`); err != nil {
		return "", fmt.Errorf("write options field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.APIURL+"/pinning/pinFileToIPFS", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	s.setAuth(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin upload: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read pin response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pin upload: unexpected status %d: %s", resp.StatusCode, respData)
	}

	var pin pinResponse
	if err := json.Unmarshal(respData, &pin); err != nil {
		return "", fmt.Errorf("decode pin response: %w", err)
	}
	if pin.IpfsHash == "" {
		return "", fmt.Errorf("pin response missing content id")
	}

	s.logger.Debug("content pinned",
		zap.String("content_id", pin.IpfsHash),
		zap.Int("size", len(data)),
	)
	return pin.IpfsHash, nil
}

// Get fetches content through the gateway.
func (s *IPFSStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.cfg.GatewayURL+"/ipfs/"+url.PathEscape(contentID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway fetch: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Unpin releases pinned content. The bytes may remain reachable on the
// network until garbage collected; callers only rely on the pin going away.
func (s *IPFSStore) Unpin(ctx context.Context, contentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		s.cfg.APIURL+"/pinning/unpin/"+url.PathEscape(contentID), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.setAuth(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unpin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unpin: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (s *IPFSStore) setAuth(req *http.Request) {
	if s.cfg.APIKey != "" {
		req.Header.Set("pinata_api_key", s.cfg.APIKey)
		req.Header.Set("pinata_secret_api_key", s.cfg.APISecret)
	}
}
