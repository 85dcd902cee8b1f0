// internal/api/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"freight-resale-api-server/internal/api/middleware"
	"freight-resale-api-server/internal/auth"
	"freight-resale-api-server/internal/models"

	"github.com/gin-gonic/gin"
)

// statusOf maps an error class to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		c.Error(err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func callerID(c *gin.Context) string {
	return c.GetString(middleware.KeyUserID)
}
