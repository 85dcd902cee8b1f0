// internal/api/handlers/resale_handler.go
package handlers

import (
	"net/http"

	"freight-resale-api-server/internal/market"

	"github.com/gin-gonic/gin"
)

// ResaleHandler serves forwarders reselling offers they won.
type ResaleHandler struct {
	Market *market.Service
}

func (h *ResaleHandler) CreateResale(c *gin.Context) {
	req, err := h.Market.CreateResaleRequest(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *ResaleHandler) CancelResale(c *gin.Context) {
	if err := h.Market.CancelResaleRequest(c.Request.Context(), c.Param("id"), callerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ResaleHandler) ConfirmResale(c *gin.Context) {
	var payload ConfirmPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Market.ConfirmResale(c.Request.Context(), c.Param("id"), payload.OfferID, callerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "confirmed", "requestId": c.Param("id"), "offerId": payload.OfferID})
}

func (h *ResaleHandler) ListMine(c *gin.Context) {
	listPosted(c, h.Market, true)
}
