package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pickupper/backend/internal/logutil"
	"github.com/pickupper/backend/internal/model"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(code model.ErrorCode) int {
	switch code {
	case model.CodeIncorrectCredentials,
		model.CodeBadRequest,
		model.CodeCheckViolation,
		model.CodeForeignKeyError,
		model.CodeUniqueViolation:
		return http.StatusBadRequest
	case model.CodeUnauthorized:
		return http.StatusUnauthorized
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with the public body of err. Server-side failures are logged with their cause.
func writeError(c *gin.Context, err error) {
	status := StatusFor(model.CodeOf(err))
	if status >= http.StatusInternalServerError {
		log := logutil.GetOrDefault(c.Request.Context())
		log.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, model.PublicError(err))
}
