// internal/api/handlers/notification_handler.go
package handlers

import (
	"net/http"
	"strconv"

	"freight-resale-api-server/internal/notify"

	"github.com/gin-gonic/gin"
)

const defaultNotificationLimit = 50

type DashboardSource interface {
	Dashboard() notify.Dashboard
}

type NotificationHandler struct {
	Store     notify.MessageStore
	Dashboard DashboardSource
}

func (h *NotificationHandler) List(c *gin.Context) {
	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	list, err := h.Store.ListByUser(c.Request.Context(), callerID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.Store.MarkRead(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDashboard returns the admin counters.
func (h *NotificationHandler) GetDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.Dashboard.Dashboard())
}
