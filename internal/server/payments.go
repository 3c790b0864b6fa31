package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/payrail/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/payrail/internal/order/domain"
)

type payOrderRequest struct {
	Type          string `json:"type"`
	AccountNumber string `json:"account_number"`
	ExpMonth      int    `json:"exp_month"`
	ExpYear       int    `json:"exp_year"`
	CSC           string `json:"csc"`

	RoutingNumber string `json:"routing_number"`
	AccountType   string `json:"account_type"`
	CheckNumber   string `json:"check_number"`

	TokenID string `json:"token_id"`
}

type paymentResultResponse struct {
	Outcome       string `json:"outcome"`
	Message       string `json:"message,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	RedirectURL   string `json:"redirect_url,omitempty"`
}

func (s *Server) PayOrder(c *gin.Context) {
	order, err := s.resolveOrder(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req payOrderRequest
	if !s.gw.Capabilities().Hosted {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	attempt := &gatewaydomain.PaymentAttempt{
		Type:          gatewaydomain.PaymentType(strings.TrimSpace(req.Type)),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		ExpMonth:      req.ExpMonth,
		ExpYear:       req.ExpYear,
		CSC:           strings.TrimSpace(req.CSC),
		RoutingNumber: strings.TrimSpace(req.RoutingNumber),
		AccountType:   strings.TrimSpace(req.AccountType),
		CheckNumber:   strings.TrimSpace(req.CheckNumber),
		TokenID:       strings.TrimSpace(req.TokenID),
		CustomerIP:    c.ClientIP(),
	}
	if attempt.Type == "" {
		attempt.Type = gatewaydomain.PaymentTypeCreditCard
	}

	result, err := s.gw.ProcessPayment(c.Request.Context(), order, attempt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordTransaction(c.Request.Context(), s.cfg.Gateway.ID, string(result.Outcome))
	c.JSON(http.StatusOK, toPaymentResultResponse(result))
}

func (s *Server) ListOrderNotes(c *gin.Context) {
	orderID, err := parseSnowflakeParam(c, "order_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	notes, err := s.orderSvc.ListNotes(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) RefundOrder(c *gin.Context) {
	order, err := s.resolveOrder(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Amount < 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.gw.Refund(c.Request.Context(), order, req.Amount, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":        resp.Outcome,
		"transaction_id": resp.TransactionID,
		"message":        resp.Message(),
	})
}

func (s *Server) VoidOrder(c *gin.Context) {
	order, err := s.resolveOrder(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.gw.Void(c.Request.Context(), order)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":        resp.Outcome,
		"transaction_id": resp.TransactionID,
		"message":        resp.Message(),
	})
}

func (s *Server) resolveOrder(c *gin.Context) (*orderdomain.Order, error) {
	orderID, err := parseSnowflakeParam(c, "order_id")
	if err != nil {
		return nil, err
	}
	return s.orderSvc.Get(c.Request.Context(), orderID)
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	parsed, err := snowflake.ParseString(raw)
	if err != nil || parsed == 0 {
		return 0, invalidRequestError()
	}
	return parsed, nil
}

func toPaymentResultResponse(result *gatewaydomain.PaymentResult) paymentResultResponse {
	if result == nil {
		return paymentResultResponse{Outcome: string(gatewaydomain.OutcomeFailed)}
	}
	return paymentResultResponse{
		Outcome:       string(result.Outcome),
		Message:       result.Message,
		TransactionID: result.TransactionID,
		RedirectURL:   result.RedirectURL,
	}
}
