// internal/api/handlers/history_handler.go
package handlers

import (
	"net/http"
	"time"

	"freight-resale-api-server/internal/market"

	"github.com/gin-gonic/gin"
)

const historyDateLayout = "2006-01-02"

// HistoryHandler serves the settled-deal history of the caller.
type HistoryHandler struct {
	Market *market.Service
}

func (h *HistoryHandler) List(c *gin.Context) {
	from, err := parseDay(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := parseDay(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
		return
	}

	entries, err := h.Market.TransactionHistory(c.Request.Context(), callerID(c), from, to, c.Query("keyword"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(historyDateLayout, s)
}
