package utils

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"compliance-rag-assistant/internal/pipeline"
	"compliance-rag-assistant/models"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 for a body that does not decode
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "invalid_input", message, details)
}

// RespondWithInternalError sends a 500 and aborts the chain
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
	c.Abort()
}

// ClassifyError maps a pipeline error to an HTTP status and a stable error
// code. Messages are safe to show to end users.
func ClassifyError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		return http.StatusBadRequest, "empty_question", "Please enter a question."
	// backend errors wrap the caller's deadline, so it is checked first
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "The request took too long. Please try again."
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "The AI service is busy. Please try again shortly."
	case errors.Is(err, models.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "embedding_unavailable", "The embedding service is unavailable. Please try again later."
	case errors.Is(err, models.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model_unavailable", "The answer model is unavailable. Please try again later."
	case errors.Is(err, models.ErrDimensionMismatch):
		return http.StatusInternalServerError, "index_rebuild_required", "The document index must be rebuilt before questions can be answered."
	case errors.Is(err, models.ErrConfiguration):
		return http.StatusInternalServerError, "configuration_error", "The service is misconfigured."
	default:
		return http.StatusInternalServerError, "internal_error", "Something went wrong while answering."
	}
}

// RespondWithPipelineError writes the error envelope for err, with a
// Retry-After header when the backend sent a hint.
func RespondWithPipelineError(c *gin.Context, err error) {
	status, code, message := ClassifyError(err)
	var details interface{}
	if d, ok := models.RetryAfter(err); ok && d > 0 {
		secs := int(math.Ceil(d.Seconds()))
		c.Header("Retry-After", strconv.Itoa(secs))
		details = gin.H{"retry_after": secs}
	}
	_ = c.Error(err)
	RespondWithError(c, status, code, message, details)
}
