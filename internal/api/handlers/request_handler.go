// internal/api/handlers/request_handler.go
package handlers

import (
	"context"
	"net/http"
	"strings"

	"freight-resale-api-server/internal/market"
	"freight-resale-api-server/internal/models"

	"github.com/gin-gonic/gin"
)

// DocumentArchive stores JSON snapshots and returns their URL.
type DocumentArchive interface {
	PutJSON(ctx context.Context, objectKey string, v any) (string, error)
}

// RequestHandler serves primary requests and the bids placed on them.
type RequestHandler struct {
	Market  *market.Service
	Archive DocumentArchive
}

type ConfirmPayload struct {
	OfferID string `json:"offerId" binding:"required"`
}

func (h *RequestHandler) CreateRequest(c *gin.Context) {
	var payload market.NewRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := h.Market.CreateRequest(c.Request.Context(), callerID(c), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// ListMine lists the caller's primary requests, optionally filtered by ?status=.
func (h *RequestHandler) ListMine(c *gin.Context) {
	listPosted(c, h.Market, false)
}

func listPosted(c *gin.Context, svc *market.Service, resale bool) {
	filter := market.ListFilter{Resale: resale, Status: strings.ToUpper(c.Query("status"))}
	rows, err := svc.ListPostedRequests(c.Request.Context(), callerID(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []market.PostedRequest{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h *RequestHandler) ListBidders(c *gin.Context) {
	offers, err := h.Market.ListBidders(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if offers == nil {
		offers = []models.Offer{}
	}
	c.JSON(http.StatusOK, offers)
}

func (h *RequestHandler) SubmitOffer(c *gin.Context) {
	var payload market.NewOffer
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	offer, err := h.Market.SubmitOffer(c.Request.Context(), callerID(c), c.Param("id"), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

// Confirm closes a primary auction in favour of one offer.
func (h *RequestHandler) Confirm(c *gin.Context) {
	var payload ConfirmPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Market.ConfirmPrimary(c.Request.Context(), c.Param("id"), payload.OfferID, callerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "confirmed", "requestId": c.Param("id"), "offerId": payload.OfferID})
}

func (h *RequestHandler) BillOfLading(c *gin.Context) {
	bl, err := h.Market.BillOfLading(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bl)
}

// ArchiveBillOfLading stores the current B/L snapshot in the document archive.
func (h *RequestHandler) ArchiveBillOfLading(c *gin.Context) {
	if h.Archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Document archive is not configured"})
		return
	}
	bl, err := h.Market.BillOfLading(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	url, err := h.Archive.PutJSON(c.Request.Context(), "bills/"+bl.Number+".json", bl)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url, "billOfLading": bl})
}
