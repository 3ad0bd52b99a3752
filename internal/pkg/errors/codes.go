package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer = 1000
	ErrInvalidParams  = 1001
	ErrNotFound       = 1002
	ErrUnavailable    = 1003
	ErrInconsistent   = 1004

	// File errors (2000-2999)
	ErrFileNotFound       = 2000
	ErrLinkExpired        = 2001
	ErrAccessDenied       = 2002
	ErrStorageUnavailable = 2003
	ErrDecryptionFailed   = 2004
	ErrPreviewUnavailable = 2005
	ErrFileIngestFailed   = 2006

	// Payment errors (3000-3999)
	ErrOrderNotFound      = 3000
	ErrCrossChainDisabled = 3001
	ErrSwapUnavailable    = 3002
	ErrOrderCreateFailed  = 3003
)

// codeMap maps error codes to their definitions
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "success"},

	ErrInternalServer: {ErrInternalServer, http.StatusInternalServerError, "internal server error"},
	ErrInvalidParams:  {ErrInvalidParams, http.StatusBadRequest, "invalid parameters"},
	ErrNotFound:       {ErrNotFound, http.StatusNotFound, "resource not found"},
	ErrUnavailable:    {ErrUnavailable, http.StatusServiceUnavailable, "downstream service unavailable"},
	ErrInconsistent:   {ErrInconsistent, http.StatusInternalServerError, "on-chain and off-chain state disagree"},

	ErrFileNotFound:       {ErrFileNotFound, http.StatusNotFound, "file not found"},
	ErrLinkExpired:        {ErrLinkExpired, http.StatusGone, "share link has expired"},
	ErrAccessDenied:       {ErrAccessDenied, http.StatusForbidden, "access denied"},
	ErrStorageUnavailable: {ErrStorageUnavailable, http.StatusServiceUnavailable, "content storage unavailable"},
	ErrDecryptionFailed:   {ErrDecryptionFailed, http.StatusInternalServerError, "decryption failed"},
	ErrPreviewUnavailable: {ErrPreviewUnavailable, http.StatusNotFound, "preview not available"},
	ErrFileIngestFailed:   {ErrFileIngestFailed, http.StatusInternalServerError, "file ingestion failed"},

	ErrOrderNotFound:      {ErrOrderNotFound, http.StatusNotFound, "payment order not found"},
	ErrCrossChainDisabled: {ErrCrossChainDisabled, http.StatusForbidden, "cross-chain payments not enabled for this file"},
	ErrSwapUnavailable:    {ErrSwapUnavailable, http.StatusServiceUnavailable, "swap provider unavailable"},
	ErrOrderCreateFailed:  {ErrOrderCreateFailed, http.StatusBadGateway, "failed to create swap order"},
}

// GetMessage returns the message for an error code
func GetMessage(code int) string {
	if c, ok := codeMap[code]; ok {
		return c.Message
	}
	return fmt.Sprintf("unknown error (code: %d)", code)
}

// GetHTTPStatus returns the HTTP status for an error code
func GetHTTPStatus(code int) int {
	if c, ok := codeMap[code]; ok {
		return c.Status
	}
	return http.StatusInternalServerError
}
