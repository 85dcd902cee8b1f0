// internal/api/handlers/container_handler.go
package handlers

import (
	"net/http"
	"strings"

	"freight-resale-api-server/internal/market"
	"freight-resale-api-server/internal/models"

	"github.com/gin-gonic/gin"
)

type ContainerHandler struct {
	Market *market.Service
}

type ContainerStatusPayload struct {
	Status  string `json:"status" binding:"required"`
	Message string `json:"message"`
}

func (h *ContainerHandler) CreateContainer(c *gin.Context) {
	var payload market.NewContainer
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	container, err := h.Market.CreateContainer(c.Request.Context(), callerID(c), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, container)
}

func (h *ContainerHandler) UpdateStatus(c *gin.Context) {
	var payload ContainerStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to := models.ContainerStatus(strings.ToUpper(payload.Status))
	container, err := h.Market.ChangeContainerStatus(c.Request.Context(), callerID(c), c.Param("id"), to, payload.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, container)
}
