package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes carried in ErrorInfo.Code.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_ERROR"
	CodeTargetFailed = "TARGET_FAILED"
	CodeUnavailable  = "UNAVAILABLE"
)

// headerRequestID is written by the request logging middleware before the
// handler runs.
const headerRequestID = "X-Request-ID"

// Response is the envelope of every API reply.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func requestID(c *gin.Context) string {
	return c.Writer.Header().Get(headerRequestID)
}

// Success sends a 200 response wrapping data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
	})
}

// Error aborts the chain with an error envelope.
func Error(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
		RequestID: requestID(c),
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeNotFound, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeInternal, message)
}

// BadGateway reports a forwarded command that failed downstream.
func BadGateway(c *gin.Context, message string) {
	Error(c, http.StatusBadGateway, CodeTargetFailed, message)
}

// ServiceUnavailable reports a transient generator failure such as a clock
// regression.
func ServiceUnavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, CodeUnavailable, message)
}
