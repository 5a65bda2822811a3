package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noesislabs/noesis/internal/resilience"
)

// Stable error codes carried in every error response alongside the message.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeRateLimited      = "RATE_LIMITED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeConfigError      = "CONFIG_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

var codeStatus = map[string]int{
	CodeUnauthorized:               http.StatusUnauthorized,
	CodeForbidden:                  http.StatusForbidden,
	CodeRateLimited:                http.StatusTooManyRequests,
	CodeValidationFailed:           http.StatusBadRequest,
	CodeBadRequest:                 http.StatusBadRequest,
	CodeNotFound:                   http.StatusNotFound,
	CodeConfigError:                http.StatusInternalServerError,
	resilience.CodeUpstreamTimeout: http.StatusGatewayTimeout,
	resilience.CodeUpstreamError:   http.StatusServiceUnavailable,
	CodeInternalError:              http.StatusInternalServerError,
}

// fail writes the uniform error envelope. Unknown codes map to 500.
func fail(c *gin.Context, code, message string) {
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

// failErr classifies an error from the core layers. Resilience errors keep
// their code; anything else is internal.
func failErr(c *gin.Context, err error) {
	if se, ok := resilience.AsServiceError(err); ok {
		fail(c, se.Code, se.Error())
		return
	}
	fail(c, CodeInternalError, err.Error())
}
