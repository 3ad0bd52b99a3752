package service

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaindrop/chaindrop-backend/internal/chain"
	"github.com/chaindrop/chaindrop-backend/internal/file/biz"
	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
	"github.com/chaindrop/chaindrop-backend/internal/pkg/response"
)

// priceDecimals is the fractional precision accepted in the price form
// field (settlement currency smallest unit).
const priceDecimals = 6

type FileService struct {
	files     *biz.FileUseCase
	gate      *biz.AccessGate
	downloads *biz.DownloadUseCase
	logger    *zap.Logger
}

func NewFileService(files *biz.FileUseCase, gate *biz.AccessGate, downloads *biz.DownloadUseCase, logger *zap.Logger) *FileService {
	return &FileService{
		files:     files,
		gate:      gate,
		downloads: downloads,
		logger:    logger,
	}
}

func (s *FileService) RegisterRoutes(r *gin.RouterGroup) {
	files := r.Group("/files")
	{
		files.POST("", s.Upload)
		files.GET("", s.ListByOwner)
		files.GET("/:id", s.GetMetadata)
		files.GET("/:id/preview", s.GetPreview)
		files.POST("/:id/verify-password", s.VerifyPassword)
		files.POST("/:id/download", s.Download)
	}
}

// FileMetadataResponse is the outward view of a file. The encryption key
// and password hash never leave the server.
type FileMetadataResponse struct {
	FileID            string `json:"fileId"`
	FileName          string `json:"fileName"`
	FileSize          int64  `json:"fileSize"`
	MimeType          string `json:"mimeType"`
	Owner             string `json:"owner"`
	Price             string `json:"price"`
	ExpiryTime        int64  `json:"expiryTime"`
	MaxDownloads      int64  `json:"maxDownloads"`
	DownloadCount     int64  `json:"downloadCount"`
	BurnAfterDownload bool   `json:"burnAfterDownload"`
	CrossChainEnabled bool   `json:"crossChainEnabled"`
	HasPassword       bool   `json:"hasPassword"`
	HasPreview        bool   `json:"hasPreview"`
	LinkExpiresAt     int64  `json:"linkExpiresAt,omitempty"`
	CreatedAt         string `json:"createdAt"`
	ShareLink         string `json:"shareLink"`
}

// lockedMetadataResponse is the reduced view served while the password
// gate is unsatisfied: enough to render the unlock page, nothing more.
type lockedMetadataResponse struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	HasPassword bool   `json:"hasPassword"`
	HasPreview  bool   `json:"hasPreview"`
	Locked      bool   `json:"locked"`
}

func (s *FileService) toMetadata(file *biz.FileRecord) *FileMetadataResponse {
	return &FileMetadataResponse{
		FileID:            file.FileID,
		FileName:          file.FileName,
		FileSize:          file.FileSize,
		MimeType:          file.MimeType,
		Owner:             file.Owner,
		Price:             chain.FormatUnits(file.Price, priceDecimals),
		ExpiryTime:        file.ExpiryTime,
		MaxDownloads:      file.MaxDownloads,
		DownloadCount:     file.DownloadCount,
		BurnAfterDownload: file.BurnAfterDownload,
		CrossChainEnabled: file.CrossChainEnabled,
		HasPassword:       file.SharePasswordHash != "",
		HasPreview:        file.PreviewContentID != "",
		LinkExpiresAt:     file.LinkExpiresAt,
		CreatedAt:         file.CreatedAt.Format(time.RFC3339),
		ShareLink:         s.files.ShareLink(file.FileID),
	}
}

// Upload accepts a multipart batch of files sharing one policy.
func (s *FileService) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "multipart form required")
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		response.BadRequest(c, "no files provided")
		return
	}

	creator := c.PostForm("creator")
	if creator == "" {
		response.BadRequest(c, "creator address required")
		return
	}

	policy, err := s.parsePolicy(c, creator)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	items := make([]biz.IngestItem, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			response.BadRequest(c, "unreadable file "+h.Filename)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			response.BadRequest(c, "unreadable file "+h.Filename)
			return
		}
		items = append(items, biz.IngestItem{
			Data:     data,
			FileName: h.Filename,
			MimeType: h.Header.Get("Content-Type"),
		})
	}

	results := s.files.IngestAll(c.Request.Context(), items, policy)
	response.Created(c, gin.H{"results": results})
}

func (s *FileService) parsePolicy(c *gin.Context, creator string) (biz.IngestPolicy, error) {
	policy := biz.IngestPolicy{Owner: creator}

	if v := c.PostForm("price"); v != "" {
		price, err := chain.ParseUnits(v, priceDecimals)
		if err != nil || !price.IsInt64() || price.Sign() < 0 {
			return policy, fmt.Errorf("invalid price %q", v)
		}
		policy.Price = price.Int64()
	}

	now := time.Now()
	expiryHours, err := strconv.ParseInt(c.DefaultPostForm("expiryHours", "24"), 10, 64)
	if err != nil || expiryHours <= 0 {
		return policy, fmt.Errorf("invalid expiryHours %q", c.PostForm("expiryHours"))
	}
	policy.ExpiryTime = now.Add(time.Duration(expiryHours) * time.Hour).Unix()

	maxDownloads, err := strconv.ParseInt(c.DefaultPostForm("maxDownloads", "0"), 10, 64)
	if err != nil || maxDownloads < 0 {
		return policy, fmt.Errorf("invalid maxDownloads %q", c.PostForm("maxDownloads"))
	}
	policy.MaxDownloads = maxDownloads

	policy.BurnAfterDownload = c.PostForm("burnAfterDownload") == "true"
	policy.CrossChainEnabled = c.PostForm("enableCrossChain") == "true"
	policy.SharePassword = c.PostForm("sharePassword")

	if v := c.PostForm("linkExpiryHours"); v != "" {
		hours, err := strconv.ParseInt(v, 10, 64)
		if err != nil || hours <= 0 {
			return policy, fmt.Errorf("invalid linkExpiryHours %q", v)
		}
		policy.LinkExpiresAt = now.Add(time.Duration(hours) * time.Hour).Unix()
	}

	return policy, nil
}

// ListByOwner serves the uploader's dashboard.
func (s *FileService) ListByOwner(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		response.BadRequest(c, "owner query parameter required")
		return
	}

	files, err := s.files.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		s.logger.Error("list files failed", zap.String("owner", owner), zap.Error(err))
		response.Error(c, err)
		return
	}

	out := make([]*FileMetadataResponse, len(files))
	for i, f := range files {
		out[i] = s.toMetadata(f)
	}
	response.Success(c, gin.H{"files": out})
}

// GetMetadata serves the share page. Password-locked files yield only the
// reduced view until the caller presents a valid password or view token.
func (s *FileService) GetMetadata(c *gin.Context) {
	fileID := c.Param("id")

	file, err := s.files.GetMetadata(c.Request.Context(), fileID)
	if err != nil {
		response.Error(c, err)
		return
	}

	proof := biz.AccessProof{
		Password:  c.Query("password"),
		ViewToken: c.GetHeader("X-View-Token"),
	}
	if !s.gate.PasswordSatisfied(file, proof) {
		response.Success(c, &lockedMetadataResponse{
			FileID:      file.FileID,
			FileName:    file.FileName,
			HasPassword: true,
			HasPreview:  file.PreviewContentID != "",
			Locked:      true,
		})
		return
	}

	response.Success(c, s.toMetadata(file))
}

// GetPreview serves the public low-fidelity preview; it is intentionally
// not behind the password gate.
func (s *FileService) GetPreview(c *gin.Context) {
	data, mimeType, err := s.files.GetPreview(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, mimeType, data)
}

type verifyPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// VerifyPassword checks the share password and returns a short-lived view
// token on success.
func (s *FileService) VerifyPassword(c *gin.Context) {
	var req verifyPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "password required")
		return
	}

	valid, token, err := s.gate.VerifyPassword(c.Request.Context(), c.Param("id"), req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"valid":     valid,
		"viewToken": token,
	})
}

type downloadRequest struct {
	Address   string `json:"address" binding:"required"`
	Password  string `json:"password"`
	ViewToken string `json:"viewToken"`
}

// Download gates and then serves the decrypted file as an attachment.
func (s *FileService) Download(c *gin.Context) {
	fileID := c.Param("id")

	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "requester address required")
		return
	}

	decision, err := s.gate.Decide(c.Request.Context(), fileID, req.Address, biz.AccessProof{
		Password:  req.Password,
		ViewToken: req.ViewToken,
	})
	if err != nil {
		s.logger.Error("access decision failed", zap.String("file_id", fileID), zap.Error(err))
		response.Error(c, err)
		return
	}

	switch decision.Status {
	case biz.DecisionNotFound:
		response.Error(c, apperrors.New(apperrors.ErrFileNotFound))
		return
	case biz.DecisionLinkExpired:
		response.Error(c, apperrors.New(apperrors.ErrLinkExpired))
		return
	case biz.DecisionDenied:
		response.Denied(c, http.StatusForbidden, apperrors.ErrAccessDenied, decision.Reason)
		return
	}

	result, err := s.downloads.Execute(c.Request.Context(), fileID, req.Address)
	if err != nil {
		response.Error(c, err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": result.FileName})
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, result.MimeType, result.Data)
}
