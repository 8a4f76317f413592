package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// SuccessResponse represents a standard API success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// RespondError writes an error response
func RespondError(c *gin.Context, statusCode int, errorMsg string) {
	c.JSON(statusCode, ErrorResponse{
		Error: errorMsg,
		Code:  statusCode,
	})
}

// RespondSuccess writes a success response
func RespondSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// Common error messages
const (
	ErrInvalidRequest   = "invalid request"
	ErrUnauthorized     = "unauthorized"
	ErrNotFound         = "not found"
	ErrInternalServer   = "internal server error"
	ErrPrinterNotFound  = "printer not found"
	ErrDeliveryFailed   = "delivery failed"
	ErrRegistryDisabled = "printer registry not available"
	ErrSessionsDisabled = "controller session not configured"
)
