package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/chaindrop/chaindrop-backend/internal/pkg/errors"
)

// Response is the unified API response envelope
type Response struct {
	Code    int         `json:"code"`              // business error code (0 means success)
	Message string      `json:"message,omitempty"` // human-readable message
	Reason  string      `json:"reason,omitempty"`  // machine-readable denial reason
	Data    interface{} `json:"data"`
}

// Success writes a 200 response
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

// Created writes a 201 response
func Created(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusCreated, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

// Error writes an error response from an AppError (or a generic 500)
func Error(c *gin.Context, err error) {
	code := apperrors.ExtractCode(err)
	c.JSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.GetMessage(code),
		Data:    struct{}{},
	})
}

// Denied writes a denial with a machine-readable reason, so the UI can
// distinguish "pay first" from a generic server error.
func Denied(c *gin.Context, httpStatus int, code int, reason string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: apperrors.GetMessage(code),
		Reason:  reason,
		Data:    struct{}{},
	})
}

// BadRequest writes a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    apperrors.ErrInvalidParams,
		Message: message,
		Data:    struct{}{},
	})
}
