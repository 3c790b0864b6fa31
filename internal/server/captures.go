package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type captureRequest struct {
	// Amount in minor units. Zero captures the full remaining
	// authorization.
	Amount int64 `json:"amount"`
}

func (s *Server) CaptureOrder(c *gin.Context) {
	order, err := s.resolveOrder(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount < 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.gw.Capture().PerformCapture(c.Request.Context(), order, req.Amount)
	if err != nil {
		s.obsMetrics.RecordCapture(c.Request.Context(), s.cfg.Gateway.ID, "refused")
		AbortWithError(c, err)
		return
	}

	captured := result.Response.Approved()
	outcome := "declined"
	if captured {
		outcome = "captured"
	}
	s.obsMetrics.RecordCapture(c.Request.Context(), s.cfg.Gateway.ID, outcome)

	c.JSON(http.StatusOK, gin.H{
		"captured":       captured,
		"captured_total": result.Captured,
		"completed":      result.Completed,
		"transaction_id": result.Response.TransactionID,
		"message":        result.Response.Message(),
	})
}

type bulkCaptureRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type bulkCaptureItem struct {
	OrderID       string `json:"order_id"`
	Captured      bool   `json:"captured"`
	CapturedTotal int64  `json:"captured_total"`
	Completed     bool   `json:"completed"`
	Error         string `json:"error,omitempty"`
}

// BulkCapture captures every listed order in turn. Failures are isolated
// per order; one refusal never stops the batch.
func (s *Server) BulkCapture(c *gin.Context) {
	var req bulkCaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.OrderIDs) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	ids := make([]snowflake.ID, 0, len(req.OrderIDs))
	for _, raw := range req.OrderIDs {
		parsed, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || parsed == 0 {
			AbortWithError(c, invalidRequestError())
			return
		}
		ids = append(ids, parsed)
	}

	results := s.gw.Capture().BulkCapture(c.Request.Context(), ids)

	items := make([]bulkCaptureItem, 0, len(results))
	for _, r := range results {
		item := bulkCaptureItem{OrderID: r.OrderID.String()}
		if r.Err != nil {
			item.Error = r.Err.Error()
		} else if r.Result != nil {
			item.Captured = r.Result.Response.Approved()
			item.CapturedTotal = r.Result.Captured
			item.Completed = r.Result.Completed
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{"results": items})
}
