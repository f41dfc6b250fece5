// Package response writes JSON error bodies for API handlers.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/calculus-api/internal/apperr"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// Status maps a service error to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error": message}. Untyped errors are logged and answered
// with a generic message.
func Error(c *gin.Context, log *logger.Logger, err error, msg string) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// BadRequest writes a 400 with message.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
